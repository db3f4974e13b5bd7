package model

import (
	"net/netip"
	"testing"
)

func TestRoomPredicates(t *testing.T) {
	tests := []struct {
		name               string
		room               Room
		main, out, isMovie bool
		str                string
	}{
		{"main", MainRoom, true, false, false, "main"},
		{"out", OutOfSystem, false, true, false, "out-of-system"},
		{"zero", Room{}, false, true, false, "out-of-system"},
		{"movie", MovieRoom("Up"), false, false, true, "movie:Up"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.room.IsMain() != tc.main || tc.room.IsOutOfSystem() != tc.out || tc.room.IsMovie() != tc.isMovie {
				t.Errorf("predicates = (%v, %v, %v), want (%v, %v, %v)",
					tc.room.IsMain(), tc.room.IsOutOfSystem(), tc.room.IsMovie(), tc.main, tc.out, tc.isMovie)
			}
			if got := tc.room.String(); got != tc.str {
				t.Errorf("String() = %q, want %q", got, tc.str)
			}
		})
	}
}

func TestRoomComparable(t *testing.T) {
	if MovieRoom("Up") != MovieRoom("Up") {
		t.Error("equal movie rooms compare unequal")
	}
	if MovieRoom("Up") == MovieRoom("Heat") {
		t.Error("different movie rooms compare equal")
	}
	// A movie titled like a sentinel's display name is still a movie room.
	if MovieRoom("main") == MainRoom {
		t.Error("movie room equals MainRoom")
	}
}

func TestMovieIPv4(t *testing.T) {
	m := Movie{ID: 1, Title: "Up", Addr: netip.MustParseAddrPort("127.0.0.1:1991")}
	got, err := m.IPv4()
	if err != nil {
		t.Fatalf("IPv4() error = %v", err)
	}
	if got != [4]byte{127, 0, 0, 1} {
		t.Errorf("IPv4() = %v", got)
	}

	m.Addr = netip.MustParseAddrPort("[::ffff:10.0.0.1]:80")
	if got, err := m.IPv4(); err != nil || got != [4]byte{10, 0, 0, 1} {
		t.Errorf("IPv4() mapped = %v, %v", got, err)
	}

	m.Addr = netip.MustParseAddrPort("[2001:db8::1]:80")
	if _, err := m.IPv4(); err == nil {
		t.Error("IPv4() of IPv6 address error = nil")
	}
}
