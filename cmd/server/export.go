package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"cdigit/internal/audit"
	"cdigit/internal/platform/config"
)

var flagExportFormat *cli.StringFlag = &cli.StringFlag{
	Name:  "format",
	Value: string(audit.FormatJSON),
	Usage: "export format: json, csv or xlsx",
}
var flagExportCategory *cli.StringFlag = &cli.StringFlag{
	Name:  "category",
	Usage: "export a single category; all categories when empty",
}

var exportAuditCommand = &cli.Command{
	Name:  "export-audit",
	Usage: "write the persisted audit logs to stdout",
	Flags: []cli.Flag{flagExportFormat, flagExportCategory},
	Action: func(cCtx *cli.Context) error {
		cfg, err := loadConfig(cCtx)
		if err != nil {
			return err
		}
		if cfg.Store.Driver == config.DriverMemory {
			return fmt.Errorf("export-audit needs a durable store; store.driver is %q", cfg.Store.Driver)
		}
		format, err := audit.ParseFormat(cCtx.String(flagExportFormat.Name))
		if err != nil {
			return err
		}
		var category audit.Category
		if raw := cCtx.String(flagExportCategory.Name); raw != "" {
			if category, err = audit.ParseCategory(raw); err != nil {
				return err
			}
		}

		ctx := cCtx.Context
		log := newLogger(cfg)
		be, err := openBackend(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer be.Close()

		trail := audit.NewTrail(cfg.Audit.Capacity, audit.WithLogger(log), audit.WithStore(be.kv))
		if err := trail.Load(ctx); err != nil {
			return fmt.Errorf("load audit logs: %w", err)
		}
		return trail.Export(cCtx.App.Writer, time.Now(), format, category)
	},
}
