package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/goesview/internal/app"
	"github.com/MrSnakeDoc/goesview/internal/config"
	"github.com/MrSnakeDoc/goesview/internal/logger"
)

func newViewerCmd() *cobra.Command {
	var listen, baseURL, eventsURL string

	cmd := &cobra.Command{
		Use:   "viewer",
		Short: "Serve the image viewer",
		Long: `Lists satellites and images from the listing server, keeps the newest
image on screen and reconciles whenever the broadcaster pushes an update.`,
		Example: `  # Follow a broadcaster
  goesview viewer --base-url https://wx.example.org --events-url https://wx.example.org/events

  # Poll only, every 5 minutes (GOESVIEW_RESYNC_INTERVAL)
  goesview viewer --base-url https://wx.example.org`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(listen, config.DefaultViewerAddr)
			if baseURL != "" {
				cfg.BaseURL = strings.TrimRight(baseURL, "/")
			}
			if eventsURL != "" {
				cfg.EventsURL = eventsURL
			}
			if err := cfg.ValidateViewer(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			log := newLogger(cfg)
			defer func() { _ = log.Sync() }()

			v, err := app.NewViewer(cmd.Context(), cfg, log)
			if err != nil {
				log.Error("viewer failed to start", logger.Error(err))
				return err
			}
			return v.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default "+config.DefaultViewerAddr+", env GOESVIEW_LISTEN_ADDR)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "listing server, scheme and host (env GOESVIEW_BASE_URL)")
	cmd.Flags().StringVar(&eventsURL, "events-url", "", "broadcaster SSE endpoint (env GOESVIEW_EVENTS_URL)")
	return cmd
}
