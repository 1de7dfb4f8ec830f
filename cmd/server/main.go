package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"mt5-command-server/internal/build"
	"mt5-command-server/internal/config"
	"mt5-command-server/internal/logging"
	"mt5-command-server/internal/server"

	"github.com/joho/godotenv"
	"github.com/paularlott/cli"
	cli_toml "github.com/paularlott/cli/toml"
	"github.com/rs/zerolog/log"
)

func main() {
	// Reconfigured from the flags in PreRun
	logging.Configure("info", "console", os.Stderr)

	// A missing .env is fine
	_ = godotenv.Load()

	var configFile = config.CONFIG_FILE

	cmd := &cli.Command{
		Name:        "mt5-server",
		Usage:       "Remote command server for a MetaTrader 5 terminal",
		Description: `mt5-server accepts MQL5 scripts over HTTP, compiles them with MetaEditor, runs them on the terminal and serves the terminal logs.`,
		Version:     build.Version,
		ConfigFile: cli_toml.NewConfigFile(&configFile, func() []string {
			paths := []string{"."}

			home, err := os.UserHomeDir()
			if err == nil {
				paths = append(paths, home)
			}

			paths = append(paths, filepath.Join(home, ".config", config.CONFIG_DIR))

			return paths
		}),
		MaxArgs: cli.NoArgs,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Name and path to the configuration file to use.",
				DefaultText: config.CONFIG_FILE + " in the current directory, $HOME/ or $HOME/.config/" + config.CONFIG_DIR + "/" + config.CONFIG_FILE,
				EnvVars:     []string{config.CONFIG_ENV_PREFIX + "_CONFIG"},
				AssignTo:    &configFile,
			},
			&cli.StringFlag{
				Name:         "log-level",
				Usage:        "Log level one of trace, debug, info, warn, error, fatal, panic",
				ConfigPath:   []string{"log.level"},
				EnvVars:      []string{config.CONFIG_ENV_PREFIX + "_LOGLEVEL"},
				DefaultValue: "info",
			},
			&cli.StringFlag{
				Name:         "log-format",
				Usage:        "Log output format, console or json",
				ConfigPath:   []string{"log.format"},
				EnvVars:      []string{config.CONFIG_ENV_PREFIX + "_LOGFORMAT"},
				DefaultValue: "console",
			},
			&cli.StringFlag{
				Name:         "listen",
				Aliases:      []string{"l"},
				Usage:        "The address and port to listen on.",
				ConfigPath:   []string{"listen"},
				EnvVars:      []string{config.CONFIG_ENV_PREFIX + "_LISTEN"},
				DefaultValue: config.DefaultListen,
			},
			&cli.IntFlag{
				Name:         "shutdown-timeout",
				Usage:        "Seconds to wait for in-flight requests when shutting down.",
				ConfigPath:   []string{"server.shutdown_timeout"},
				EnvVars:      []string{config.CONFIG_ENV_PREFIX + "_SHUTDOWN_TIMEOUT"},
				DefaultValue: int(config.DefaultShutdownTimeout / time.Second),
			},
			&cli.StringFlag{
				Name:         "mt5-root",
				Usage:        "The MetaTrader 5 installation directory.",
				ConfigPath:   []string{"mt5.root"},
				EnvVars:      []string{config.CONFIG_ENV_PREFIX + "_MT5_ROOT"},
				DefaultValue: config.DefaultRoot,
			},
			&cli.StringFlag{
				Name:        "scripts-dir",
				Usage:       "Directory scripts are written to and compiled in.",
				DefaultText: "<mt5-root>/MQL5/Scripts",
				ConfigPath:  []string{"mt5.scripts_dir"},
				EnvVars:     []string{config.CONFIG_ENV_PREFIX + "_SCRIPTS_DIR"},
			},
			&cli.StringFlag{
				Name:        "logs-dir",
				Usage:       "Directory holding the terminal logs.",
				DefaultText: "<mt5-root>/Logs",
				ConfigPath:  []string{"mt5.logs_dir"},
				EnvVars:     []string{config.CONFIG_ENV_PREFIX + "_LOGS_DIR"},
			},
			&cli.StringFlag{
				Name:        "compiler",
				Usage:       "Path to the MetaEditor compiler.",
				DefaultText: "<mt5-root>/metaeditor64.exe",
				ConfigPath:  []string{"mt5.compiler"},
				EnvVars:     []string{config.CONFIG_ENV_PREFIX + "_COMPILER"},
			},
			&cli.StringFlag{
				Name:        "terminal",
				Usage:       "Path to the MetaTrader 5 terminal.",
				DefaultText: "<mt5-root>/terminal64.exe",
				ConfigPath:  []string{"mt5.terminal"},
				EnvVars:     []string{config.CONFIG_ENV_PREFIX + "_TERMINAL"},
			},
			&cli.StringSliceFlag{
				Name:       "launcher",
				Usage:      "Command placed in front of the MT5 binaries, for example wine. May be given multiple times.",
				ConfigPath: []string{"mt5.launcher"},
				EnvVars:    []string{config.CONFIG_ENV_PREFIX + "_LAUNCHER"},
			},
			&cli.IntFlag{
				Name:         "compile-timeout",
				Usage:        "Seconds allowed for a compile.",
				ConfigPath:   []string{"mt5.compile_timeout"},
				EnvVars:      []string{config.CONFIG_ENV_PREFIX + "_COMPILE_TIMEOUT"},
				DefaultValue: int(config.DefaultCompileTimeout / time.Second),
			},
			&cli.IntFlag{
				Name:         "execute-timeout",
				Usage:        "Seconds allowed for a script execution.",
				ConfigPath:   []string{"mt5.execute_timeout"},
				EnvVars:      []string{config.CONFIG_ENV_PREFIX + "_EXECUTE_TIMEOUT"},
				DefaultValue: int(config.DefaultExecuteTimeout / time.Second),
			},
			&cli.IntFlag{
				Name:         "lock-timeout",
				Usage:        "Seconds a request waits for another request on the same script before giving up.",
				ConfigPath:   []string{"mt5.lock_timeout"},
				EnvVars:      []string{config.CONFIG_ENV_PREFIX + "_LOCK_TIMEOUT"},
				DefaultValue: int(config.DefaultLockTimeout / time.Second),
			},
			&cli.StringFlag{
				Name:         "log-suffix",
				Usage:        "File suffix of the terminal log files.",
				ConfigPath:   []string{"logs.suffix"},
				EnvVars:      []string{config.CONFIG_ENV_PREFIX + "_LOG_SUFFIX"},
				DefaultValue: config.DefaultLogSuffix,
			},
			&cli.IntFlag{
				Name:         "log-tail-lines",
				Usage:        "Number of trailing log lines returned by get-logs.",
				ConfigPath:   []string{"logs.tail_lines"},
				EnvVars:      []string{config.CONFIG_ENV_PREFIX + "_LOG_TAIL_LINES"},
				DefaultValue: config.DefaultTailLines,
			},
			&cli.IntFlag{
				Name:         "rate-limit",
				Usage:        "Upload and execute requests allowed per client per minute, 0 disables the limit.",
				ConfigPath:   []string{"rate_limit.per_minute"},
				EnvVars:      []string{config.CONFIG_ENV_PREFIX + "_RATE_LIMIT"},
				DefaultValue: config.DefaultRatePerMinute,
			},
			&cli.IntFlag{
				Name:         "rate-limit-burst",
				Usage:        "Burst size for the per client rate limit.",
				ConfigPath:   []string{"rate_limit.burst"},
				EnvVars:      []string{config.CONFIG_ENV_PREFIX + "_RATE_LIMIT_BURST"},
				DefaultValue: config.DefaultRateBurst,
			},
		},
		PreRun: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if err := logging.Configure(cmd.GetString("log-level"), cmd.GetString("log-format"), os.Stderr); err != nil {
				return ctx, err
			}
			return ctx, nil
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			cfg := buildConfig(cmd)
			cfg.Resolve()

			srv, err := server.New(cfg, nil)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			return srv.Run(ctx)
		},
	}

	err := cmd.Execute(context.Background())
	if err != nil {
		log.Error().Err(err).Msg("mt5-server failed")
		fmt.Println("Error:", err)
		os.Exit(1)
	}

	os.Exit(0)
}

func buildConfig(cmd *cli.Command) *config.Config {
	cfg := config.Default()

	cfg.Listen = cmd.GetString("listen")
	cfg.ShutdownTimeout = time.Duration(cmd.GetInt("shutdown-timeout")) * time.Second

	cfg.MT5.Root = cmd.GetString("mt5-root")
	cfg.MT5.ScriptsDir = cmd.GetString("scripts-dir")
	cfg.MT5.LogsDir = cmd.GetString("logs-dir")
	cfg.MT5.Compiler = cmd.GetString("compiler")
	cfg.MT5.Terminal = cmd.GetString("terminal")
	cfg.MT5.Launcher = cmd.GetStringSlice("launcher")
	cfg.MT5.CompileTimeout = time.Duration(cmd.GetInt("compile-timeout")) * time.Second
	cfg.MT5.ExecuteTimeout = time.Duration(cmd.GetInt("execute-timeout")) * time.Second
	cfg.MT5.LockTimeout = time.Duration(cmd.GetInt("lock-timeout")) * time.Second

	cfg.Logs.Suffix = cmd.GetString("log-suffix")
	cfg.Logs.TailLines = cmd.GetInt("log-tail-lines")

	cfg.RateLimit.PerMinute = cmd.GetInt("rate-limit")
	cfg.RateLimit.Burst = cmd.GetInt("rate-limit-burst")

	return cfg
}
