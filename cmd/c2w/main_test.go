package main

import (
	"context"
	stderrors "errors"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/c2w-dev/c2w/internal/config"
	"github.com/c2w-dev/c2w/internal/errors"
	"github.com/c2w-dev/c2w/pkg/directory"
	"github.com/c2w-dev/c2w/pkg/model"
	"github.com/c2w-dev/c2w/pkg/server"
)

func errorCode(err error) string {
	var ce *errors.Error
	if stderrors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

func TestToken(t *testing.T) {
	before := time.Now()
	token := makeToken(7, 42, 64)
	if len(token) != 64 {
		t.Errorf("len(token) = %d, want 64", len(token))
	}
	sent, ok := parseToken(token)
	if !ok {
		t.Fatalf("parseToken(%q) failed", token)
	}
	if sent.Before(before.Truncate(time.Microsecond)) || sent.After(time.Now()) {
		t.Errorf("sent = %v, want between %v and now", sent, before)
	}

	for _, bad := range []string{"", "hello", "1:2:x:", "1:2"} {
		if _, ok := parseToken(bad); ok {
			t.Errorf("parseToken(%q) ok, want failure", bad)
		}
	}
}

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	tests := []struct {
		p    float64
		want time.Duration
	}{
		{0, 1},
		{0.5, 5},
		{0.95, 10},
		{1, 10},
	}
	for _, tt := range tests {
		if got := percentile(sorted, tt.p); got != tt.want {
			t.Errorf("percentile(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
	if got := percentile(nil, 0.5); got != 0 {
		t.Errorf("percentile(nil) = %v, want 0", got)
	}
}

func TestBenchConfigValidate(t *testing.T) {
	valid := benchConfig{Clients: 2, Duration: time.Second, Rate: 1, Transport: "tcp"}
	if err := valid.validate(); err != nil {
		t.Fatalf("validate() = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*benchConfig)
	}{
		{"one client", func(c *benchConfig) { c.Clients = 1 }},
		{"no duration", func(c *benchConfig) { c.Duration = 0 }},
		{"no rate", func(c *benchConfig) { c.Rate = 0 }},
		{"transport", func(c *benchConfig) { c.Transport = "sctp" }},
		{"loss", func(c *benchConfig) { c.LossRate = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			if err := c.validate(); err == nil {
				t.Error("validate() = nil, want error")
			}
		})
	}
}

func TestProbe(t *testing.T) {
	dir := directory.New()
	if err := dir.AddMovie(model.Movie{ID: 1, Title: "Film", Addr: netip.MustParseAddrPort("127.0.0.1:5000")}); err != nil {
		t.Fatal(err)
	}
	srv := server.New(dir, server.WithConfig(server.Config{RetransmitTimeout: 20 * time.Millisecond}))
	t.Cleanup(func() { srv.Shutdown(context.Background()) })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go srv.ServeStream(context.Background(), ln)

	opts := probeOptions{
		transport: "tcp",
		name:      "probe",
		room:      "Film",
		chat:      "hello",
		timeout:   5 * time.Second,
		retry:     20 * time.Millisecond,
	}
	if err := runProbe(context.Background(), ln.Addr().String(), opts); err != nil {
		t.Fatalf("runProbe() = %v", err)
	}
	if dir.Exists("probe") {
		t.Error("probe still registered after leaving")
	}

	// A taken name is reported as a probe failure.
	if err := dir.Register("taken", model.MainRoom, "test/taken"); err != nil {
		t.Fatal(err)
	}
	opts.name = "taken"
	err = runProbe(context.Background(), ln.Addr().String(), opts)
	if code := errorCode(err); code != "C203" {
		t.Errorf("runProbe(taken) code = %q, want C203 (err %v)", code, err)
	}
	if err != nil && !strings.Contains(err.Error(), "taken") {
		t.Errorf("error %q does not name the user", err)
	}
}

func TestBindReportsBusyPort(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer busy.Close()

	cfg := config.New()
	cfg.Server.Stream = busy.Addr().String()
	cfg.Server.Datagram = ""
	cfg.Server.Admin = ""

	_, err = bind(cfg, nil)
	if code := errorCode(err); code != "C201" {
		t.Errorf("bind() code = %q, want C201 (err %v)", code, err)
	}
}

func TestLoadCatalog(t *testing.T) {
	tmp := t.TempDir()
	catalogYAML := `movies:
  - title: Film
    host: 127.0.0.1
    port: 5000
`
	if err := os.WriteFile(filepath.Join(tmp, "movies.yaml"), []byte(catalogYAML), 0644); err != nil {
		t.Fatal(err)
	}
	cfg := config.New()
	cfg.Catalog.File = "movies.yaml"
	if err := cfg.SaveTo(filepath.Join(tmp, config.ConfigFileName)); err != nil {
		t.Fatal(err)
	}

	movies, err := loadCatalog(context.Background(), cfg)
	if err != nil {
		t.Fatalf("loadCatalog() = %v", err)
	}
	if len(movies) != 1 || movies[0].Title != "Film" || movies[0].ID != 1 {
		t.Errorf("movies = %+v, want one movie Film with id 1", movies)
	}

	cfg.Catalog.File = "missing.yaml"
	if _, err := loadCatalog(context.Background(), cfg); errorCode(err) != "C200" {
		t.Errorf("loadCatalog(missing) code = %q, want C200", errorCode(err))
	}

	cfg.Catalog.File = ""
	movies, err = loadCatalog(context.Background(), cfg)
	if err != nil || movies != nil {
		t.Errorf("loadCatalog(none) = %v, %v; want nil, nil", movies, err)
	}
}

func TestInit(t *testing.T) {
	tmp := t.TempDir()
	if err := runInit(tmp, "movies.yaml", false); err != nil {
		t.Fatalf("runInit() = %v", err)
	}
	cfg, err := config.Load(tmp)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.Catalog.File != "movies.yaml" {
		t.Errorf("Catalog.File = %q, want movies.yaml", cfg.Catalog.File)
	}
	if err := runInit(tmp, "", false); err == nil {
		t.Error("runInit() over existing file = nil, want error")
	}
	if err := runInit(tmp, "", true); err != nil {
		t.Errorf("runInit(force) = %v", err)
	}
}

func TestErrorPrinter(t *testing.T) {
	tests := []struct {
		format  string
		noColor bool
		want    errors.Output
		wantErr bool
	}{
		{"text", true, errors.OutputText, false},
		{"json", false, errors.OutputJSON, false},
		{"xml", true, errors.OutputText, true},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			p, err := errorPrinter(tt.format, tt.noColor)
			if (err != nil) != tt.wantErr {
				t.Errorf("errorPrinter(%q) error = %v, wantErr %v", tt.format, err, tt.wantErr)
			}
			if p.Output != tt.want {
				t.Errorf("Output = %q, want %q", p.Output, tt.want)
			}
			if p.Color && (tt.noColor || p.Output == errors.OutputJSON) {
				t.Error("Color = true, want false")
			}
		})
	}
}
