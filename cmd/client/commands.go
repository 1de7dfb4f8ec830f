package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"mt5-command-server/internal/apiclient"
	"mt5-command-server/internal/rest"

	"github.com/paularlott/cli"
)

// connectionFlags are shared by every subcommand
func connectionFlags(extra ...cli.Flag) []cli.Flag {
	return append([]cli.Flag{
		&cli.StringFlag{
			Name:         "server",
			Aliases:      []string{"s"},
			Usage:        "The address of the MT5 command server.",
			EnvVars:      []string{envPrefix + "_SERVER"},
			DefaultValue: "http://localhost:8080",
		},
		&cli.BoolFlag{
			Name:    "msgpack",
			Usage:   "Use msgpack instead of JSON on the wire.",
			EnvVars: []string{envPrefix + "_MSGPACK"},
		},
		&cli.IntFlag{
			Name:         "timeout",
			Usage:        "Request timeout in seconds.",
			EnvVars:      []string{envPrefix + "_TIMEOUT"},
			DefaultValue: int(apiclient.DefaultTimeout / time.Second),
		},
	}, extra...)
}

func accountFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "account",
		Aliases: []string{"a"},
		Usage:   "The trading account the request is made for.",
		EnvVars: []string{envPrefix + "_ACCOUNT"},
	}
}

func requireAccount(cmd *cli.Command) (string, error) {
	account := cmd.GetString("account")
	if account == "" {
		return "", fmt.Errorf("--account is required")
	}
	return account, nil
}

func newClient(cmd *cli.Command) (*apiclient.Client, error) {
	client, err := apiclient.NewClient(cmd.GetString("server"))
	if err != nil {
		return nil, err
	}

	client.SetTimeout(time.Duration(cmd.GetInt("timeout")) * time.Second)
	if cmd.GetBool("msgpack") {
		client.SetContentType(rest.ContentTypeMsgPack)
	}
	return client, nil
}

var healthCmd = &cli.Command{
	Name:        "health",
	Usage:       "Check the server is up",
	Description: "Query the health endpoint of the server.",
	MaxArgs:     cli.NoArgs,
	Flags:       connectionFlags(),
	Run: func(ctx context.Context, cmd *cli.Command) error {
		client, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer client.Close()

		resp, err := client.Health(ctx)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}

		fmt.Printf("%s at %s: %s\n", resp.Status, resp.Timestamp, resp.Message)
		return nil
	},
}

var uploadCmd = &cli.Command{
	Name:        "upload",
	Usage:       "Upload and compile a script",
	Description: "Upload an MQL5 source file to the server and compile it.",
	Arguments: []cli.Argument{
		&cli.StringArg{
			Name:     "file",
			Usage:    "Path to the .mq5 file",
			Required: true,
		},
	},
	MaxArgs: cli.NoArgs,
	Flags: connectionFlags(
		accountFlag(),
		&cli.StringFlag{
			Name:  "name",
			Usage: "Filename to store the script under, defaults to the file's base name.",
		},
	),
	Run: func(ctx context.Context, cmd *cli.Command) error {
		account, err := requireAccount(cmd)
		if err != nil {
			return err
		}

		path := cmd.GetStringArg("file")
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read script: %w", err)
		}

		filename := cmd.GetString("name")
		if filename == "" {
			filename = filepath.Base(path)
		}

		client, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer client.Close()

		resp, err := client.UploadScript(ctx, filename, string(content), account)
		if err != nil {
			return fmt.Errorf("upload failed: %w", err)
		}

		fmt.Println(resp.Message)
		if resp.Compiled {
			fmt.Printf("'%s' compiled successfully.\n", resp.Filename)
		} else {
			fmt.Printf("'%s' failed to compile, check the logs.\n", resp.Filename)
		}
		return nil
	},
}

var executeCmd = &cli.Command{
	Name:        "execute",
	Usage:       "Run a compiled script",
	Description: "Run a previously uploaded and compiled script on the terminal.",
	Arguments: []cli.Argument{
		&cli.StringArg{
			Name:     "script",
			Usage:    "Name of the script to run",
			Required: true,
		},
	},
	MaxArgs: cli.NoArgs,
	Flags:   connectionFlags(accountFlag()),
	Run: func(ctx context.Context, cmd *cli.Command) error {
		account, err := requireAccount(cmd)
		if err != nil {
			return err
		}

		client, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer client.Close()

		resp, err := client.ExecuteScript(ctx, cmd.GetStringArg("script"), account)
		if err != nil {
			return fmt.Errorf("execute failed: %w", err)
		}

		fmt.Println(resp.Message)
		if !resp.Result {
			return fmt.Errorf("script '%s' did not run successfully", resp.Script)
		}
		return nil
	},
}

var logsCmd = &cli.Command{
	Name:        "logs",
	Usage:       "Show the terminal logs",
	Description: "Print the last lines of the newest terminal log.",
	MaxArgs:     cli.NoArgs,
	Flags:       connectionFlags(),
	Run: func(ctx context.Context, cmd *cli.Command) error {
		client, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer client.Close()

		resp, err := client.GetLogs(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch logs: %w", err)
		}

		fmt.Print(resp.Logs)
		if len(resp.Logs) > 0 && resp.Logs[len(resp.Logs)-1] != '\n' {
			fmt.Println()
		}
		return nil
	},
}
