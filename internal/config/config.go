package config

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/c2w-dev/c2w/internal/errors"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "c2w.json"

	// DefaultStreamAddr is the default stream (TCP) listen address.
	DefaultStreamAddr = ":1991"

	// DefaultDatagramAddr is the default datagram (UDP) listen address.
	DefaultDatagramAddr = ":1992"

	// DefaultAdminAddr is the default admin HTTP listen address.
	DefaultAdminAddr = "127.0.0.1:8080"

	// DefaultMailboxSize is the default per-peer mailbox buffer.
	DefaultMailboxSize = 256

	// DefaultTimeoutMs is the default retransmission interval.
	DefaultTimeoutMs = 500

	// DefaultMaxRetries is the default retransmission bound.
	DefaultMaxRetries = 100

	// DefaultLogLevel is the default log level.
	DefaultLogLevel = "info"

	// DefaultLogFormat is the default log format.
	DefaultLogFormat = "text"

	// DefaultS3Region is used when the S3 catalog names no region.
	DefaultS3Region = "us-east-1"
)

// Config represents the complete c2w.json configuration.
type Config struct {
	// Server contains listener and peer settings.
	Server ServerConfig `json:"server"`

	// ARQ contains the retransmission settings.
	ARQ ARQConfig `json:"arq"`

	// Catalog names where the movie catalog is read from.
	Catalog CatalogConfig `json:"catalog"`

	// Log contains logging settings.
	Log LogConfig `json:"log"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ServerConfig contains listener settings. An empty address disables the
// listener.
type ServerConfig struct {
	// Stream is the TCP listen address.
	Stream string `json:"stream"`

	// Datagram is the UDP listen address.
	Datagram string `json:"datagram"`

	// Admin is the HTTP listen address for health, metrics, the
	// directory snapshot and the WebSocket transport.
	Admin string `json:"admin"`

	// MailboxSize is the buffer of each peer's mailbox.
	MailboxSize int `json:"mailboxSize,omitempty"`

	// LossRate drops this fraction of outgoing datagrams. Testing only.
	LossRate float64 `json:"lossRate,omitempty"`
}

// ARQConfig contains retransmission settings.
type ARQConfig struct {
	// TimeoutMs is the retransmission interval in milliseconds.
	TimeoutMs int `json:"timeoutMs,omitempty"`

	// MaxRetries bounds retransmissions of one message.
	MaxRetries int `json:"maxRetries,omitempty"`
}

// CatalogConfig names the movie catalog source. At most one of File and
// S3 is set; with neither the server runs without movies.
type CatalogConfig struct {
	// File is a JSON or YAML catalog, relative to the config file.
	File string `json:"file,omitempty"`

	// S3 locates a catalog object in a bucket.
	S3 *S3Config `json:"s3,omitempty"`
}

// S3Config locates a catalog object.
type S3Config struct {
	Bucket    string `json:"bucket"`
	Key       string `json:"key"`
	Region    string `json:"region,omitempty"`
	Endpoint  string `json:"endpoint,omitempty"`
	PathStyle bool   `json:"pathStyle,omitempty"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level,omitempty"`

	// Format is text or json.
	Format string `json:"format,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Stream:      DefaultStreamAddr,
			Datagram:    DefaultDatagramAddr,
			Admin:       DefaultAdminAddr,
			MailboxSize: DefaultMailboxSize,
		},
		ARQ: ARQConfig{
			TimeoutMs:  DefaultTimeoutMs,
			MaxRetries: DefaultMaxRetries,
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// Load reads configuration from the specified directory.
// It looks for c2w.json in the directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("C100").
				WithDetail("No " + filepath.Base(path) + " found in " + filepath.Dir(path)).
				WithSuggestion("Run 'c2w init' to write a default configuration")
		}
		return nil, errors.New("C100").Wrap(err)
	}

	cfg := New()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, decodeError(path, data, err)
	}

	cfg.configPath = path
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeError(path string, data []byte, err error) error {
	var syntaxErr *json.SyntaxError
	if stderrors.As(err, &syntaxErr) {
		return errors.New("C101").
			WithOffset(path, data, syntaxErr.Offset).
			WithSuggestion("Check that " + filepath.Base(path) + " is valid JSON").
			Wrap(err)
	}
	var typeErr *json.UnmarshalTypeError
	if stderrors.As(err, &typeErr) {
		return errors.New("C102").
			WithOffset(path, data, typeErr.Offset).
			WithDetail(fmt.Sprintf("Field %q expects a %s, got a JSON %s.", typeErr.Field, typeErr.Type, typeErr.Value)).
			Wrap(err)
	}
	if stderrors.Is(err, io.EOF) {
		return errors.New("C101").WithDetail(filepath.Base(path) + " is empty.")
	}
	// Unknown fields carry no offset.
	return errors.New("C102").WithDetail(err.Error())
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("C100").Wrap(err)
	}

	// Add newline at end of file
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("C100").Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for zero numeric fields.
func (c *Config) applyDefaults() {
	if c.Server.MailboxSize == 0 {
		c.Server.MailboxSize = DefaultMailboxSize
	}
	if c.ARQ.TimeoutMs == 0 {
		c.ARQ.TimeoutMs = DefaultTimeoutMs
	}
	if c.ARQ.MaxRetries == 0 {
		c.ARQ.MaxRetries = DefaultMaxRetries
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
	if c.Catalog.S3 != nil && c.Catalog.S3.Region == "" {
		c.Catalog.S3.Region = DefaultS3Region
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	addrs := []struct{ field, addr string }{
		{"server.stream", c.Server.Stream},
		{"server.datagram", c.Server.Datagram},
		{"server.admin", c.Server.Admin},
	}
	enabled := 0
	for _, a := range addrs {
		if a.addr == "" {
			continue
		}
		enabled++
		if err := checkAddr(a.addr); err != nil {
			return errors.New("C103").
				WithDetail(fmt.Sprintf("%s = %q: %v", a.field, a.addr, err)).
				WithSuggestion("Use host:port, for example \":1991\" or \"127.0.0.1:1991\"")
		}
	}
	if enabled == 0 {
		return errors.New("C104").
			WithSuggestion("Set server.stream, server.datagram or server.admin")
	}

	if c.Server.MailboxSize < 0 {
		return valueError("server.mailboxSize must not be negative")
	}
	if c.Server.LossRate < 0 || c.Server.LossRate >= 1 {
		return valueError("server.lossRate must be in [0, 1)")
	}
	if c.ARQ.TimeoutMs < 0 {
		return valueError("arq.timeoutMs must not be negative")
	}
	if c.ARQ.MaxRetries < 0 {
		return valueError("arq.maxRetries must not be negative")
	}

	if s3 := c.Catalog.S3; s3 != nil {
		if c.Catalog.File != "" {
			return errors.New("C105").
				WithDetail(fmt.Sprintf("catalog.file = %q and catalog.s3 are both set.", c.Catalog.File))
		}
		if s3.Bucket == "" || s3.Key == "" {
			return valueError("catalog.s3 needs both bucket and key")
		}
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		return valueError(err.Error())
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return valueError(fmt.Sprintf("log.format = %q; want text or json", c.Log.Format))
	}
	return nil
}

func valueError(detail string) error {
	return errors.New("C102").WithDetail(detail)
}

func checkAddr(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("port %q out of range", port)
	}
	return nil
}

// Timeout returns the retransmission interval.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.ARQ.TimeoutMs) * time.Millisecond
}

// CatalogPath returns the catalog file path, resolved against the config
// file's directory. Empty when no file catalog is configured.
func (c *Config) CatalogPath() string {
	if c.Catalog.File == "" {
		return ""
	}
	if filepath.IsAbs(c.Catalog.File) || c.configPath == "" {
		return c.Catalog.File
	}
	return filepath.Join(c.Dir(), c.Catalog.File)
}

// LogLevel returns the configured slog level.
func (c *Config) LogLevel() slog.Level {
	level, _ := parseLevel(c.Log.Level)
	return level
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log.level = %q; want debug, info, warn or error", s)
}

// Exists checks if a c2w.json file exists in the directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}
