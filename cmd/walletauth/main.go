// Command walletauth serves wallet signature authentication over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// Build information, set via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := App().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "walletauth:", err)
		os.Exit(1)
	}
}

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "walletauth",
		Usage:   "Wallet signature authentication service",
		Version: fmt.Sprintf("%s (commit: %s)", Version, Commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file",
				EnvVars: []string{"WALLETAUTH_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP server",
		Action: func(c *cli.Context) error {
			cfg, log, err := loadConfig(c.String("config"))
			if err != nil {
				return err
			}
			return serve(c.Context, cfg, log)
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply the Postgres schema",
		Action: func(c *cli.Context) error {
			cfg, log, err := loadConfig(c.String("config"))
			if err != nil {
				return err
			}
			return migrate(c.Context, cfg, log)
		},
	}
}
