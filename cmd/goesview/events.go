package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/goesview/internal/app"
	"github.com/MrSnakeDoc/goesview/internal/config"
	"github.com/MrSnakeDoc/goesview/internal/logger"
)

func newEventsCmd() *cobra.Command {
	var listen, triggerFile string

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Serve the update broadcaster",
		Long: `Watches the trigger file touched by the ingestion pipeline and pushes an
update event to every connected viewer when it changes.`,
		Example: `  goesview events --trigger-file /var/www/goes/.trigger`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(listen, config.DefaultEventsAddr)
			if triggerFile != "" {
				cfg.TriggerFile = triggerFile
			}
			if err := cfg.ValidateEvents(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			log := newLogger(cfg)
			defer func() { _ = log.Sync() }()

			e, err := app.NewEvents(cmd.Context(), cfg, log)
			if err != nil {
				log.Error("broadcaster failed to start", logger.Error(err))
				return err
			}
			return e.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default "+config.DefaultEventsAddr+", env GOESVIEW_LISTEN_ADDR)")
	cmd.Flags().StringVar(&triggerFile, "trigger-file", "", "file touched after each ingest (env GOESVIEW_TRIGGER_FILE)")
	return cmd
}
