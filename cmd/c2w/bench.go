package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/c2w-dev/c2w/pkg/client"
	"github.com/c2w-dev/c2w/pkg/directory"
	"github.com/c2w-dev/c2w/pkg/model"
	"github.com/c2w-dev/c2w/pkg/server"
	"github.com/c2w-dev/c2w/pkg/transport"
)

type profile struct {
	Name         string
	Clients      int
	Duration     time.Duration
	Rate         float64
	PayloadBytes int
}

var profiles = map[string]profile{
	"fast": {
		Name:         "fast",
		Clients:      20,
		Duration:     10 * time.Second,
		Rate:         2,
		PayloadBytes: 24,
	},
	"standard": {
		Name:         "standard",
		Clients:      100,
		Duration:     30 * time.Second,
		Rate:         5,
		PayloadBytes: 24,
	},
	"stress": {
		Name:         "stress",
		Clients:      300,
		Duration:     60 * time.Second,
		Rate:         10,
		PayloadBytes: 64,
	},
}

type benchConfig struct {
	Profile      string
	Clients      int
	Duration     time.Duration
	Rate         float64
	PayloadBytes int
	Transport    string
	LossRate     float64
	JSONOutput   string
}

type benchCounters struct {
	chatsSent      atomic.Uint64
	chatsReceived  atomic.Uint64
	loginFailures  atomic.Uint64
	sendFailures   atomic.Uint64
	tokenMalformed atomic.Uint64
}

func benchCmd() *cobra.Command {
	var (
		profileName string
		cfg         benchConfig
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure chat fan-out latency against an in-process server",
		Long: `Start a server on loopback, log in many clients, and have each send
chat messages at a fixed rate. Every chat carries its send time, so each
delivery to another client yields one latency sample.

Examples:
  c2w bench --profile fast
  c2w bench --clients 50 --transport udp --loss-rate 0.1 --json report.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			base, ok := profiles[strings.ToLower(strings.TrimSpace(profileName))]
			if !ok {
				return fmt.Errorf("unknown profile %q", profileName)
			}
			flags := cmd.Flags()
			cfg.Profile = base.Name
			if !flags.Changed("clients") {
				cfg.Clients = base.Clients
			}
			if !flags.Changed("duration") {
				cfg.Duration = base.Duration
			}
			if !flags.Changed("rate") {
				cfg.Rate = base.Rate
			}
			if !flags.Changed("payload-bytes") {
				cfg.PayloadBytes = base.PayloadBytes
			}
			if err := cfg.validate(); err != nil {
				return err
			}
			return runBench(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&profileName, "profile", "standard", "fast, standard or stress")
	flags.IntVar(&cfg.Clients, "clients", 0, "Number of concurrent clients")
	flags.DurationVar(&cfg.Duration, "duration", 0, "Benchmark duration")
	flags.Float64Var(&cfg.Rate, "rate", 0, "Chat messages per second per client")
	flags.IntVar(&cfg.PayloadBytes, "payload-bytes", 0, "Padding bytes per chat message")
	flags.StringVarP(&cfg.Transport, "transport", "t", "tcp", "tcp or udp")
	flags.Float64Var(&cfg.LossRate, "loss-rate", 0, "Drop this fraction of server datagrams (udp)")
	flags.StringVar(&cfg.JSONOutput, "json", "", "Write a JSON report to this path ('-' for stdout)")

	return cmd
}

func (c benchConfig) validate() error {
	switch {
	case c.Clients < 2:
		return stderrors.New("--clients must be >= 2")
	case c.Duration <= 0:
		return stderrors.New("--duration must be > 0")
	case c.Rate <= 0:
		return stderrors.New("--rate must be > 0")
	case c.PayloadBytes < 0:
		return stderrors.New("--payload-bytes must be >= 0")
	case c.Transport != "tcp" && c.Transport != "udp":
		return fmt.Errorf("--transport %q: want tcp or udp", c.Transport)
	case c.LossRate < 0 || c.LossRate >= 1:
		return stderrors.New("--loss-rate must be in [0, 1)")
	}
	return nil
}

// benchProxy records a latency sample for every chat that carries a
// token.
type benchProxy struct {
	client.NopProxy
	ready    chan struct{}
	counters *benchCounters
	samples  *sampleSet
}

// sampleSet collects latency samples from every client's read loop.
type sampleSet struct {
	mu      sync.Mutex
	samples []time.Duration
	closed  bool
}

func (s *sampleSet) add(d time.Duration) {
	s.mu.Lock()
	if !s.closed {
		s.samples = append(s.samples, d)
	}
	s.mu.Unlock()
}

// close stops collection and returns the samples sorted.
func (s *sampleSet) close() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	sort.Slice(s.samples, func(i, j int) bool { return s.samples[i] < s.samples[j] })
	return s.samples
}

func (p *benchProxy) InitComplete([]model.User, []model.Movie) { offer(p.ready, struct{}{}) }

func (p *benchProxy) ChatReceived(_, text string) {
	sent, ok := parseToken(text)
	if !ok {
		p.counters.tokenMalformed.Add(1)
		return
	}
	p.counters.chatsReceived.Add(1)
	p.samples.add(time.Since(sent))
}

// makeToken encodes the client, its message seq and the send time,
// padded to payloadBytes.
func makeToken(clientID int, seq uint64, payloadBytes int) string {
	token := fmt.Sprintf("%d:%d:%d:", clientID, seq, time.Now().UnixNano())
	if pad := payloadBytes - len(token); pad > 0 {
		token += strings.Repeat("x", pad)
	}
	return token
}

func parseToken(text string) (time.Time, bool) {
	parts := strings.SplitN(text, ":", 4)
	if len(parts) != 4 {
		return time.Time{}, false
	}
	ns, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, ns), true
}

func runBench(ctx context.Context, cfg benchConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	registry := prometheus.NewRegistry()
	srv := server.New(directory.New(directory.WithLogger(logger)),
		server.WithLogger(logger),
		server.WithRegistry(registry),
		server.WithConfig(server.Config{MailboxSize: 4096}),
	)
	defer srv.Shutdown(context.Background())

	addr, err := startBenchServer(ctx, srv, cfg, logger)
	if err != nil {
		return err
	}

	samples := &sampleSet{}
	var counters benchCounters
	clients := make([]*client.Client, cfg.Clients)
	dialFn := client.DialStream
	if cfg.Transport == "udp" {
		dialFn = client.DialDatagram
	}

	// Log everyone in before the clock starts so every chat has the full
	// room as recipients.
	loginCtx, cancelLogin := context.WithTimeout(ctx, 30*time.Second)
	defer cancelLogin()
	var loginWG sync.WaitGroup
	for i := range clients {
		loginWG.Add(1)
		go func(id int) {
			defer loginWG.Done()
			proxy := &benchProxy{ready: make(chan struct{}, 1), counters: &counters, samples: samples}
			c, err := dialFn(loginCtx, addr, proxy, client.Options{Logger: logger})
			if err != nil {
				counters.loginFailures.Add(1)
				return
			}
			if err := c.Login(fmt.Sprintf("bench-%04d", id)); err != nil {
				counters.loginFailures.Add(1)
				c.Close()
				return
			}
			select {
			case <-proxy.ready:
				clients[id] = c
			case <-loginCtx.Done():
				counters.loginFailures.Add(1)
				c.Close()
			}
		}(i)
	}
	loginWG.Wait()
	if n := counters.loginFailures.Load(); n > 0 {
		closeAll(clients)
		return fmt.Errorf("%d of %d clients failed to log in", n, cfg.Clients)
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	var before runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)

	start := time.Now()
	var wg sync.WaitGroup
	for id, c := range clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runBenchClient(runCtx, c, id, cfg, &counters)
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	// Let in-flight chats land before tearing the clients down.
	time.Sleep(200 * time.Millisecond)
	latencies := samples.close()
	closeAll(clients)

	var after runtime.MemStats
	runtime.ReadMemStats(&after)

	report := buildReport(cfg, elapsed, latencies, &counters, registry, before, after)

	writeSummary(os.Stderr, report)
	if cfg.JSONOutput != "" {
		if err := writeJSON(cfg.JSONOutput, report); err != nil {
			return fmt.Errorf("write json: %w", err)
		}
	}
	return nil
}

func startBenchServer(ctx context.Context, srv *server.Server, cfg benchConfig, logger *slog.Logger) (string, error) {
	if cfg.Transport == "udp" {
		pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
		if err != nil {
			return "", err
		}
		var conn net.PacketConn = pc
		if cfg.LossRate > 0 {
			conn = transport.NewLossyPacketConn(pc, cfg.LossRate, transport.WithLogger(logger))
		}
		go srv.ServeDatagram(ctx, conn)
		return pc.LocalAddr().String(), nil
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	go srv.ServeStream(ctx, ln)
	return ln.Addr().String(), nil
}

func runBenchClient(ctx context.Context, c *client.Client, id int, cfg benchConfig, counters *benchCounters) {
	period := time.Duration(float64(time.Second) / cfg.Rate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		seq++
		if err := c.SendChat(makeToken(id, seq, cfg.PayloadBytes)); err != nil {
			counters.sendFailures.Add(1)
			return
		}
		counters.chatsSent.Add(1)
	}
}

func closeAll(clients []*client.Client) {
	for _, c := range clients {
		if c != nil {
			c.Close()
		}
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := int(math.Ceil(float64(len(sorted))*p)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// counterTotal sums every series of the named counter family.
func counterTotal(g prometheus.Gatherer, name string) uint64 {
	families, err := g.Gather()
	if err != nil {
		return 0
	}
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return uint64(total)
}

type benchReport struct {
	Version    string         `json:"version"`
	Run        runInfo        `json:"run"`
	Workload   workloadInfo   `json:"workload"`
	LatencyMS  latencyInfo    `json:"latency_ms"`
	Throughput throughputInfo `json:"throughput"`
	Server     serverInfo     `json:"server"`
	GC         gcInfo         `json:"gc"`
	Errors     errorInfo      `json:"errors"`
}

type runInfo struct {
	Timestamp string `json:"timestamp"`
	Go        string `json:"go"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	CPUs      int    `json:"cpus"`
}

type workloadInfo struct {
	Profile       string  `json:"profile"`
	Transport     string  `json:"transport"`
	Clients       int     `json:"clients"`
	DurationMS    int64   `json:"duration_ms"`
	RatePerClient float64 `json:"rate_per_client"`
	PayloadBytes  int     `json:"payload_bytes"`
	LossRate      float64 `json:"loss_rate"`
}

type latencyInfo struct {
	Samples int     `json:"samples"`
	Min     float64 `json:"min"`
	P50     float64 `json:"p50"`
	P95     float64 `json:"p95"`
	P99     float64 `json:"p99"`
	Max     float64 `json:"max"`
}

type throughputInfo struct {
	ChatsSent      uint64  `json:"chats_sent"`
	ChatsDelivered uint64  `json:"chats_delivered"`
	DeliveryRatio  float64 `json:"delivery_ratio"`
	DeliveriesPerS float64 `json:"deliveries_per_sec"`
}

type serverInfo struct {
	FramesReceived uint64 `json:"frames_received"`
	FramesSent     uint64 `json:"frames_sent"`
	Retransmits    uint64 `json:"retransmits"`
	Exhausted      uint64 `json:"retry_exhausted"`
	MailboxDropped uint64 `json:"mailbox_dropped"`
}

type gcInfo struct {
	AllocMB      float64 `json:"alloc_mb"`
	NumGC        uint32  `json:"num_gc"`
	PauseTotalMS float64 `json:"pause_total_ms"`
}

type errorInfo struct {
	LoginFailures  uint64 `json:"login_failures"`
	SendFailures   uint64 `json:"send_failures"`
	TokenMalformed uint64 `json:"token_malformed"`
}

func buildReport(
	cfg benchConfig,
	elapsed time.Duration,
	latencies []time.Duration,
	counters *benchCounters,
	registry prometheus.Gatherer,
	before, after runtime.MemStats,
) benchReport {
	sent := counters.chatsSent.Load()
	delivered := counters.chatsReceived.Load()
	expected := sent * uint64(cfg.Clients-1)

	report := benchReport{
		Version: version,
		Run: runInfo{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Go:        runtime.Version(),
			OS:        runtime.GOOS,
			Arch:      runtime.GOARCH,
			CPUs:      runtime.NumCPU(),
		},
		Workload: workloadInfo{
			Profile:       cfg.Profile,
			Transport:     cfg.Transport,
			Clients:       cfg.Clients,
			DurationMS:    cfg.Duration.Milliseconds(),
			RatePerClient: cfg.Rate,
			PayloadBytes:  cfg.PayloadBytes,
			LossRate:      cfg.LossRate,
		},
		LatencyMS: latencyInfo{
			Samples: len(latencies),
			Min:     ms(percentile(latencies, 0)),
			P50:     ms(percentile(latencies, 0.50)),
			P95:     ms(percentile(latencies, 0.95)),
			P99:     ms(percentile(latencies, 0.99)),
			Max:     ms(percentile(latencies, 1)),
		},
		Throughput: throughputInfo{
			ChatsSent:      sent,
			ChatsDelivered: delivered,
		},
		Server: serverInfo{
			FramesReceived: counterTotal(registry, "c2w_server_frames_received_total"),
			FramesSent:     counterTotal(registry, "c2w_server_frames_sent_total"),
			Retransmits:    counterTotal(registry, "c2w_server_retransmits_total"),
			Exhausted:      counterTotal(registry, "c2w_server_retry_exhausted_total"),
			MailboxDropped: counterTotal(registry, "c2w_server_mailbox_dropped_total"),
		},
		GC: gcInfo{
			AllocMB:      float64(after.TotalAlloc-before.TotalAlloc) / (1024 * 1024),
			NumGC:        after.NumGC - before.NumGC,
			PauseTotalMS: float64(after.PauseTotalNs-before.PauseTotalNs) / float64(time.Millisecond),
		},
		Errors: errorInfo{
			LoginFailures:  counters.loginFailures.Load(),
			SendFailures:   counters.sendFailures.Load(),
			TokenMalformed: counters.tokenMalformed.Load(),
		},
	}
	if expected > 0 {
		report.Throughput.DeliveryRatio = float64(delivered) / float64(expected)
	}
	if elapsed > 0 {
		report.Throughput.DeliveriesPerS = float64(delivered) / elapsed.Seconds()
	}
	return report
}

func writeSummary(w io.Writer, report benchReport) {
	fmt.Fprintln(w, "=== c2w Chat Benchmark ===")
	fmt.Fprintf(w, "Profile: %s\n", report.Workload.Profile)
	fmt.Fprintf(w, "Transport: %s", report.Workload.Transport)
	if report.Workload.LossRate > 0 {
		fmt.Fprintf(w, " (%.0f%% loss)", report.Workload.LossRate*100)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Clients: %d\n", report.Workload.Clients)
	fmt.Fprintf(w, "Duration: %s\n", time.Duration(report.Workload.DurationMS)*time.Millisecond)
	fmt.Fprintf(w, "Target per-client rate: %.2f chats/s\n", report.Workload.RatePerClient)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Chats sent: %d\n", report.Throughput.ChatsSent)
	fmt.Fprintf(w, "Deliveries: %d (%.1f%% of expected, %.1f/s)\n",
		report.Throughput.ChatsDelivered, report.Throughput.DeliveryRatio*100, report.Throughput.DeliveriesPerS)
	fmt.Fprintf(w, "Errors: login %d, send %d, malformed %d\n",
		report.Errors.LoginFailures, report.Errors.SendFailures, report.Errors.TokenMalformed)
	fmt.Fprintln(w)

	if report.LatencyMS.Samples == 0 {
		fmt.Fprintln(w, "No latency samples recorded.")
	} else {
		fmt.Fprintln(w, "Fan-out latency (sender SendChat -> recipient ChatReceived):")
		fmt.Fprintf(w, "  min: %.2f ms\n", report.LatencyMS.Min)
		fmt.Fprintf(w, "  p50: %.2f ms\n", report.LatencyMS.P50)
		fmt.Fprintf(w, "  p95: %.2f ms\n", report.LatencyMS.P95)
		fmt.Fprintf(w, "  p99: %.2f ms\n", report.LatencyMS.P99)
		fmt.Fprintf(w, "  max: %.2f ms\n", report.LatencyMS.Max)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Server:")
	fmt.Fprintf(w, "  frames in:   %d\n", report.Server.FramesReceived)
	fmt.Fprintf(w, "  frames out:  %d\n", report.Server.FramesSent)
	fmt.Fprintf(w, "  retransmits: %d\n", report.Server.Retransmits)
	fmt.Fprintf(w, "  exhausted:   %d\n", report.Server.Exhausted)
	fmt.Fprintf(w, "  dropped:     %d\n", report.Server.MailboxDropped)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Go runtime / GC (process-wide):")
	fmt.Fprintf(w, "  alloc:    %.2f MB\n", report.GC.AllocMB)
	fmt.Fprintf(w, "  num_gc:   %d\n", report.GC.NumGC)
	fmt.Fprintf(w, "  gc_pause: %.2f ms (total)\n", report.GC.PauseTotalMS)
}

func writeJSON(path string, report benchReport) error {
	var out io.Writer
	if path == "-" {
		out = os.Stdout
	} else {
		file, err := os.Create(path)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
