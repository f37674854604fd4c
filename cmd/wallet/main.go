package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
)

func main() {
	app := &cli.App{
		Name:  "wallet",
		Usage: "Local Solana wallet",
		Description: `Holds keys in an encrypted .cwt keystore, sends SOL and tracks
each transfer until it is confirmed, failed or expired.

Configuration is read from the environment (SOLANA_RPC_URL, SOLANA_FILE_PATH, ...).`,
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Commands: []*cli.Command{
			serveCommand(),
			generateCommand(),
			importCommand(),
			addressCommand(),
			balanceCommand(),
			sendCommand(),
			statusCommand(),
			{
				Name:  "keystore",
				Usage: "Keystore maintenance commands",
				Subcommands: []*cli.Command{
					rekeyCommand(),
				},
			},
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "simulate",
				Usage: "Use an in-process simulated ledger instead of SOLANA_RPC_URL",
			},
			&cli.Uint64Flag{
				Name:  "sim-balance",
				Usage: "Lamports credited to the active key in simulate mode",
				Value: 10_000_000_000,
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
