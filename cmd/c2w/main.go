package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/c2w-dev/c2w/internal/config"
	"github.com/c2w-dev/c2w/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
   ___ ___
  / __|_  )_ __ __
 | (__ / /\ V  V /
  \___/___|\_/\_/
`

func main() {
	rootCmd := &cobra.Command{
		Use:   "c2w",
		Short: "Chat while watching: a movie-room chat server",
		Long: `c2w runs the chat-while-watching directory server and its tools.

Users log in, land in the main room, and may move into one room per
movie. The server keeps every client's view of who is where up to
date, relays chat within a room, and retransmits until each message is
acknowledged. Clients connect over TCP, UDP or WebSocket.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var errorFormat string
	var noColor bool
	rootCmd.PersistentFlags().StringVar(&errorFormat, "error-format", "text", "How to print a failure: text or json")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored error output")

	rootCmd.AddCommand(
		initCmd(),
		serveCmd(),
		probeCmd(),
		benchCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		p, perr := errorPrinter(errorFormat, noColor)
		if perr != nil {
			p.Print(os.Stderr, perr)
		}
		p.Print(os.Stderr, err)
		os.Exit(1)
	}
}

// errorPrinter builds the failure printer from the root flags. An invalid
// format falls back to text and is reported alongside the failure.
func errorPrinter(format string, noColor bool) (errors.Printer, error) {
	p := errors.NewPrinter(os.Stderr)
	if noColor {
		p.Color = false
	}
	out, err := errors.ParseOutput(format)
	if err != nil {
		return p, err
	}
	p.Output = out
	if out == errors.OutputJSON {
		p.Color = false
	}
	return p, nil
}

// printBanner prints the c2w ASCII art banner.
func printBanner() {
	fmt.Print(banner)
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// loadConfig reads path, or c2w.json in the working directory when path
// is empty, falling back to defaults when there is none.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if config.Exists(".") {
		return config.Load(".")
	}
	return config.New(), nil
}

// newLogger builds the process logger from the log section.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel()}
	var h slog.Handler
	if cfg.Log.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}
