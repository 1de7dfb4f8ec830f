package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

const (
	CONFIG_ENV_PREFIX = "MT5_SERVER"
	CONFIG_FILE       = "mt5-server.toml"
	CONFIG_DIR        = "mt5-server"

	DefaultListen          = ":8080"
	DefaultRoot            = "/home/root/MT5"
	DefaultLogSuffix       = ".log"
	DefaultTailLines       = 100
	DefaultCompileTimeout  = 30 * time.Second
	DefaultExecuteTimeout  = 60 * time.Second
	DefaultLockTimeout     = 15 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultRatePerMinute   = 60
	DefaultRateBurst       = 10
)

// Config is built once at startup and handed to the constructors that need it.
type Config struct {
	Listen          string
	ShutdownTimeout time.Duration
	MT5             MT5Config
	Logs            LogsConfig
	RateLimit       RateLimitConfig
}

type MT5Config struct {
	Root           string
	ScriptsDir     string
	LogsDir        string
	Compiler       string
	Terminal       string
	Launcher       []string
	CompileTimeout time.Duration
	ExecuteTimeout time.Duration
	LockTimeout    time.Duration
}

type LogsConfig struct {
	Suffix    string
	TailLines int
}

type RateLimitConfig struct {
	PerMinute int
	Burst     int
}

func Default() *Config {
	return &Config{
		Listen:          DefaultListen,
		ShutdownTimeout: DefaultShutdownTimeout,
		MT5: MT5Config{
			Root:           DefaultRoot,
			CompileTimeout: DefaultCompileTimeout,
			ExecuteTimeout: DefaultExecuteTimeout,
			LockTimeout:    DefaultLockTimeout,
		},
		Logs: LogsConfig{
			Suffix:    DefaultLogSuffix,
			TailLines: DefaultTailLines,
		},
		RateLimit: RateLimitConfig{
			PerMinute: DefaultRatePerMinute,
			Burst:     DefaultRateBurst,
		},
	}
}

// Resolve fills any path left empty from the MT5 root using the terminal's standard layout.
func (c *Config) Resolve() {
	if c.MT5.ScriptsDir == "" && c.MT5.Root != "" {
		c.MT5.ScriptsDir = filepath.Join(c.MT5.Root, "MQL5", "Scripts")
	}
	if c.MT5.LogsDir == "" && c.MT5.Root != "" {
		c.MT5.LogsDir = filepath.Join(c.MT5.Root, "Logs")
	}
	if c.MT5.Compiler == "" && c.MT5.Root != "" {
		c.MT5.Compiler = filepath.Join(c.MT5.Root, "metaeditor64.exe")
	}
	if c.MT5.Terminal == "" && c.MT5.Root != "" {
		c.MT5.Terminal = filepath.Join(c.MT5.Root, "terminal64.exe")
	}
	if c.Logs.Suffix == "" {
		c.Logs.Suffix = DefaultLogSuffix
	}
}

func (c *Config) Validate() error {
	var errs []error

	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	if c.MT5.ScriptsDir == "" {
		errs = append(errs, errors.New("scripts directory is required, set mt5.root or mt5.scripts_dir"))
	}
	if c.MT5.LogsDir == "" {
		errs = append(errs, errors.New("logs directory is required, set mt5.root or mt5.logs_dir"))
	}
	if c.MT5.Compiler == "" {
		errs = append(errs, errors.New("compiler path is required"))
	}
	if c.MT5.Terminal == "" {
		errs = append(errs, errors.New("terminal path is required"))
	}
	if c.MT5.CompileTimeout <= 0 {
		errs = append(errs, fmt.Errorf("compile timeout must be positive, got %s", c.MT5.CompileTimeout))
	}
	if c.MT5.ExecuteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("execute timeout must be positive, got %s", c.MT5.ExecuteTimeout))
	}
	if c.MT5.LockTimeout <= 0 {
		errs = append(errs, fmt.Errorf("lock timeout must be positive, got %s", c.MT5.LockTimeout))
	}
	if c.Logs.TailLines <= 0 {
		errs = append(errs, fmt.Errorf("log tail lines must be positive, got %d", c.Logs.TailLines))
	}
	if c.RateLimit.PerMinute < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("rate limit values cannot be negative"))
	}

	return errors.Join(errs...)
}

// WriteTimeout covers the longest a request can take: waiting out the script lock,
// then the slowest process invocation, then writing the response.
func (c *Config) WriteTimeout() time.Duration {
	longest := c.MT5.ExecuteTimeout
	if c.MT5.CompileTimeout > longest {
		longest = c.MT5.CompileTimeout
	}
	return c.MT5.LockTimeout + longest + 15*time.Second
}
