package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"cdigit/internal/platform/config"
	"cdigit/internal/platform/logger"
)

var version = "dev"

var flagConfig *cli.StringFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Value:   "",
	Usage:   "path to a YAML, JSON or TOML config file; CDIGIT_* environment variables override it",
	EnvVars: []string{"CDIGIT_CONFIG"},
}
var flagLogJSON *cli.BoolFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var flagLogDebug *cli.BoolFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}

func main() {
	app := &cli.App{
		Name:           "cdigit",
		Usage:          "branch voucher approval and signature binding service",
		Version:        version,
		DefaultCommand: "serve",
		Flags:          []cli.Flag{flagConfig, flagLogJSON, flagLogDebug},
		Commands: []*cli.Command{
			serveCommand,
			tokenCommand,
			exportAuditCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file named by --config and lets the global
// log flags win over the file.
func loadConfig(cCtx *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(cCtx.String(flagConfig.Name))
	if err != nil {
		return nil, err
	}
	if cCtx.IsSet(flagLogJSON.Name) {
		cfg.Log.JSON = cCtx.Bool(flagLogJSON.Name)
	}
	if cCtx.IsSet(flagLogDebug.Name) {
		cfg.Log.Debug = cCtx.Bool(flagLogDebug.Name)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logger.New(logger.Options{
		JSON:    cfg.Log.JSON,
		Debug:   cfg.Log.Debug,
		Service: "cdigit",
		Version: version,
		Writer:  os.Stderr,
	})
}
