package transport

import (
	"net"
	"testing"
	"time"
)

func listenUDP(t *testing.T) net.PacketConn {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket() error = %v", err)
	}
	t.Cleanup(func() { pc.Close() })
	return pc
}

func TestLossyPacketConnRates(t *testing.T) {
	tests := []struct {
		name string
		rate float64
	}{
		{"none", 0},
		{"all", 1},
		{"clamped high", 3},
		{"clamped low", -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := listenUDP(t)
			c := NewLossyPacketConn(listenUDP(t), tt.rate)
			for i := 0; i < 20; i++ {
				n, err := c.WriteTo([]byte{0, 0}, sink.LocalAddr())
				if err != nil || n != 2 {
					t.Fatalf("WriteTo() = %d, %v", n, err)
				}
			}
			wantDropped := uint64(0)
			if tt.rate >= 1 {
				wantDropped = 20
			}
			if got := c.Dropped(); got != wantDropped {
				t.Errorf("Dropped() = %d, want %d", got, wantDropped)
			}
			if got := c.Sent() + c.Dropped(); got != 20 {
				t.Errorf("Sent()+Dropped() = %d, want 20", got)
			}
		})
	}
}

func TestLossyPacketConnSeedIsReproducible(t *testing.T) {
	sink := listenUDP(t)
	pattern := func() []bool {
		c := NewLossyPacketConn(listenUDP(t), 0.5, WithSeed(42))
		var out []bool
		for i := 0; i < 64; i++ {
			before := c.Dropped()
			c.WriteTo([]byte{0, 0}, sink.LocalAddr())
			out = append(out, c.Dropped() > before)
		}
		return out
	}
	a, b := pattern(), pattern()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("drop patterns differ at %d", i)
		}
	}
}

func TestLossyPacketConnPassesThrough(t *testing.T) {
	sink := listenUDP(t)
	c := NewLossyPacketConn(listenUDP(t), 0)
	if _, err := c.WriteTo([]byte("hi"), sink.LocalAddr()); err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}
	sink.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 16)
	n, _, err := sink.ReadFrom(buf)
	if err != nil {
		t.Fatalf("ReadFrom() error = %v", err)
	}
	if string(buf[:n]) != "hi" {
		t.Errorf("received %q, want %q", buf[:n], "hi")
	}
}

func TestLossyConnDropsWrites(t *testing.T) {
	sink := listenUDP(t)
	conn, err := net.Dial("udp", sink.LocalAddr().String())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	c := NewLossyConn(conn, 1)
	if n, err := c.Write([]byte("lost")); err != nil || n != 4 {
		t.Errorf("Write() = %d, %v", n, err)
	}
	if c.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", c.Dropped())
	}
}
