package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/c2w-dev/c2w/internal/config"
	"github.com/c2w-dev/c2w/internal/errors"
	"github.com/c2w-dev/c2w/pkg/admin"
	"github.com/c2w-dev/c2w/pkg/catalog"
	"github.com/c2w-dev/c2w/pkg/directory"
	"github.com/c2w-dev/c2w/pkg/model"
	"github.com/c2w-dev/c2w/pkg/server"
	"github.com/c2w-dev/c2w/pkg/transport"
)

const shutdownTimeout = 5 * time.Second

func serveCmd() *cobra.Command {
	var (
		configPath string
		stream     string
		datagram   string
		adminAddr  string
		catalogArg string
		lossRate   float64
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the c2w server",
		Long: `Run the c2w server on the configured transports.

Settings come from c2w.json (see 'c2w init'); flags override them.
An empty address disables that listener. The admin listener serves
/healthz, /directory, /metrics and the WebSocket transport at /ws.

Examples:
  c2w serve
  c2w serve --config /etc/c2w/c2w.json
  c2w serve --datagram= --catalog movies.yaml
  c2w serve --loss-rate 0.2 --log-level debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("stream") {
				cfg.Server.Stream = stream
			}
			if flags.Changed("datagram") {
				cfg.Server.Datagram = datagram
			}
			if flags.Changed("admin") {
				cfg.Server.Admin = adminAddr
			}
			if flags.Changed("catalog") {
				cfg.Catalog.File = catalogArg
				cfg.Catalog.S3 = nil
			}
			if flags.Changed("loss-rate") {
				cfg.Server.LossRate = lossRate
			}
			if flags.Changed("log-level") {
				cfg.Log.Level = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			return runServe(cmd.Context(), cfg, os.Stderr)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "Path to c2w.json (default ./c2w.json if present)")
	flags.StringVar(&stream, "stream", "", "TCP listen address")
	flags.StringVar(&datagram, "datagram", "", "UDP listen address")
	flags.StringVar(&adminAddr, "admin", "", "Admin HTTP listen address")
	flags.StringVar(&catalogArg, "catalog", "", "Movie catalog file (JSON or YAML)")
	flags.Float64Var(&lossRate, "loss-rate", 0, "Drop this fraction of outgoing datagrams")
	flags.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, logOut io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := newLogger(cfg, logOut)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	movies, err := loadCatalog(ctx, cfg)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	dir := directory.New(
		directory.WithLogger(logger),
		directory.WithStreamer(catalog.NewLogStreamer(logger, registry)),
	)
	if err := catalog.Populate(dir, movies); err != nil {
		return errors.New("C200").Wrap(err)
	}

	srv := server.New(dir,
		server.WithLogger(logger),
		server.WithRegistry(registry),
		server.WithConfig(server.Config{
			RetransmitTimeout: cfg.Timeout(),
			MaxRetries:        cfg.ARQ.MaxRetries,
			MailboxSize:       cfg.Server.MailboxSize,
		}),
	)

	ls, err := bind(cfg, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if ls.stream != nil {
		g.Go(func() error {
			return serveErr("stream", srv.ServeStream(gctx, ls.stream))
		})
	}
	if ls.datagram != nil {
		g.Go(func() error {
			return serveErr("datagram", srv.ServeDatagram(gctx, ls.datagram))
		})
	}
	var httpSrv *http.Server
	if ls.admin != nil {
		httpSrv = &http.Server{
			Handler:           admin.New(srv, admin.WithLogger(logger)),
			ReadHeaderTimeout: 5 * time.Second,
		}
		logger.Info("admin listening", "addr", ls.admin.Addr().String())
		g.Go(func() error {
			err := httpSrv.Serve(ls.admin)
			if stderrors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("admin: %w", err)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if httpSrv != nil {
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("admin shutdown", "error", err)
			}
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return errors.FromError(err, "C202")
	}
	return nil
}

func serveErr(name string, err error) error {
	if err == nil || stderrors.Is(err, server.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

type listeners struct {
	stream   net.Listener
	datagram net.PacketConn
	admin    net.Listener
}

func (l *listeners) close() {
	if l.stream != nil {
		l.stream.Close()
	}
	if l.datagram != nil {
		l.datagram.Close()
	}
	if l.admin != nil {
		l.admin.Close()
	}
}

// bind opens every configured listener, or none.
func bind(cfg *config.Config, logger *slog.Logger) (*listeners, error) {
	ls := &listeners{}
	var err error
	if addr := cfg.Server.Stream; addr != "" {
		if ls.stream, err = net.Listen("tcp", addr); err != nil {
			ls.close()
			return nil, listenError("server.stream", addr, err)
		}
	}
	if addr := cfg.Server.Datagram; addr != "" {
		pc, err := net.ListenPacket("udp", addr)
		if err != nil {
			ls.close()
			return nil, listenError("server.datagram", addr, err)
		}
		if rate := cfg.Server.LossRate; rate > 0 {
			logger.Warn("dropping outgoing datagrams", "rate", rate)
			ls.datagram = transport.NewLossyPacketConn(pc, rate, transport.WithLogger(logger))
		} else {
			ls.datagram = pc
		}
	}
	if addr := cfg.Server.Admin; addr != "" {
		if ls.admin, err = net.Listen("tcp", addr); err != nil {
			ls.close()
			return nil, listenError("server.admin", addr, err)
		}
	}
	return ls, nil
}

func listenError(field, addr string, err error) error {
	return errors.New("C201").
		WithDetail(fmt.Sprintf("%s = %q", field, addr)).
		WithSuggestion("Pick a free port, or disable the listener with --" + field[len("server."):] + "=").
		Wrap(err)
}

// loadCatalog reads the movie catalog from the configured source.
func loadCatalog(ctx context.Context, cfg *config.Config) ([]model.Movie, error) {
	if path := cfg.CatalogPath(); path != "" {
		movies, err := catalog.LoadFile(path)
		if err != nil {
			return nil, errors.New("C200").WithDetail("Reading " + path).Wrap(err)
		}
		return movies, nil
	}
	if s3 := cfg.Catalog.S3; s3 != nil {
		client := catalog.NewS3Client(catalog.S3Options{
			Region:          s3.Region,
			Endpoint:        s3.Endpoint,
			UsePathStyle:    s3.PathStyle,
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		})
		movies, err := catalog.LoadS3(ctx, client, s3.Bucket, s3.Key)
		if err != nil {
			return nil, errors.New("C200").
				WithDetail(fmt.Sprintf("Reading s3://%s/%s", s3.Bucket, s3.Key)).
				WithSuggestion("Check the bucket, key and AWS_* credentials").
				Wrap(err)
		}
		return movies, nil
	}
	return nil, nil
}
