package main

import (
	"context"
	"os"

	"mt5-command-server/internal/build"
	"mt5-command-server/internal/logging"

	"github.com/joho/godotenv"
	"github.com/paularlott/cli"
	"github.com/rs/zerolog/log"
)

const envPrefix = "MT5_CLIENT"

func main() {
	logging.Configure("warn", "console", os.Stderr)

	// A missing .env is fine
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:        "mt5-client",
		Usage:       "Client for the MT5 command server",
		Description: `mt5-client uploads, compiles and runs MQL5 scripts on a remote MT5 command server and fetches the terminal logs.`,
		Version:     build.Version,
		Commands: []*cli.Command{
			healthCmd,
			uploadCmd,
			executeCmd,
			logsCmd,
		},
	}

	err := cmd.Execute(context.Background())
	if err != nil {
		log.Error().Err(err).Msg("mt5-client failed")
		os.Exit(1)
	}

	os.Exit(0)
}
