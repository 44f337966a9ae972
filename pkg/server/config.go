package server

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"answer/pkg/http"
)

// Defaults applied by New to zero Config fields.
const (
	DefaultAddr         = ":8080"
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 30 * time.Second
)

// Config holds server configuration.
type Config struct {
	Addr       string
	ServerName string

	// ReadTimeout bounds the wait for one complete request, including the
	// idle time before it starts. WriteTimeout bounds sending one response.
	// Negative values disable the deadline.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// DrainTimeout bounds how long a closing connection keeps reading
	// after it has stopped writing.
	DrainTimeout time.Duration

	MaxHeaderBytes int
	MaxBodyBytes   int64

	// IOURing serves accepted TCP connections through a shared io_uring
	// where the platform supports it.
	IOURing bool

	// StaticDir, when set, serves files for paths that match no route.
	StaticDir string

	// Logger receives connection and error logs. Nil disables logging.
	Logger *zerolog.Logger
}

func (cfg Config) withDefaults() Config {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.ServerName == "" {
		cfg.ServerName = http.DefaultServerName
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.DrainTimeout == 0 {
		cfg.DrainTimeout = http.DefaultDrainTimeout
	}
	if cfg.Logger == nil {
		nop := zerolog.Nop()
		cfg.Logger = &nop
	}
	return cfg
}

func (cfg Config) connConfig() http.ConnConfig {
	return http.ConnConfig{
		ServerName:     cfg.ServerName,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		ReadTimeout:    positive(cfg.ReadTimeout),
		WriteTimeout:   positive(cfg.WriteTimeout),
		DrainTimeout:   cfg.DrainTimeout,
	}
}

func positive(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

// ConfigFromEnv reads configuration from environment variables named
// prefix + "_ADDR", "_SERVER_NAME", "_READ_TIMEOUT", "_WRITE_TIMEOUT",
// "_DRAIN_TIMEOUT", "_MAX_HEADER_BYTES", "_MAX_BODY_BYTES", "_IOURING" and
// "_STATIC". Unset variables leave the field zero.
func ConfigFromEnv(prefix string) (Config, error) {
	lookup := func(name string) (string, bool) {
		v, ok := os.LookupEnv(prefix + "_" + name)
		return v, ok && v != ""
	}
	var cfg Config
	var err error

	if v, ok := lookup("ADDR"); ok {
		cfg.Addr = v
	}
	if v, ok := lookup("SERVER_NAME"); ok {
		cfg.ServerName = v
	}
	if v, ok := lookup("STATIC"); ok {
		cfg.StaticDir = v
	}
	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"READ_TIMEOUT", &cfg.ReadTimeout},
		{"WRITE_TIMEOUT", &cfg.WriteTimeout},
		{"DRAIN_TIMEOUT", &cfg.DrainTimeout},
	}
	for _, d := range durations {
		if v, ok := lookup(d.name); ok {
			if *d.dst, err = time.ParseDuration(v); err != nil {
				return cfg, fmt.Errorf("server: %s_%s: %w", prefix, d.name, err)
			}
		}
	}
	if v, ok := lookup("MAX_HEADER_BYTES"); ok {
		if cfg.MaxHeaderBytes, err = strconv.Atoi(v); err != nil {
			return cfg, fmt.Errorf("server: %s_MAX_HEADER_BYTES: %w", prefix, err)
		}
	}
	if v, ok := lookup("MAX_BODY_BYTES"); ok {
		if cfg.MaxBodyBytes, err = strconv.ParseInt(v, 10, 64); err != nil {
			return cfg, fmt.Errorf("server: %s_MAX_BODY_BYTES: %w", prefix, err)
		}
	}
	if v, ok := lookup("IOURING"); ok {
		if cfg.IOURing, err = strconv.ParseBool(v); err != nil {
			return cfg, fmt.Errorf("server: %s_IOURING: %w", prefix, err)
		}
	}
	return cfg, nil
}
