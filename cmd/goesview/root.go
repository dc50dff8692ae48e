package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/goesview/internal/config"
	"github.com/MrSnakeDoc/goesview/internal/logger"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "goesview",
		Short: "Live viewer for GOES satellite imagery",
		Long: `goesview shows the newest GOES image published on a directory-listing
server and switches to new images as soon as the ingestion pipeline
announces them.

Run "goesview events" next to the ingestion pipeline and "goesview viewer"
wherever the images are displayed. Configuration comes from GOESVIEW_*
environment variables; a .env file in the working directory is loaded first.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	cmd.AddCommand(newViewerCmd(), newEventsCmd())
	return cmd
}

// loadConfig reads the environment and applies the command's default address
// when neither the flag nor GOESVIEW_LISTEN_ADDR set one.
func loadConfig(listen, defaultAddr string) *config.Config {
	cfg := config.Load()
	switch {
	case listen != "":
		cfg.ListenAddr = listen
	case cfg.ListenAddr == "":
		cfg.ListenAddr = defaultAddr
	}
	return cfg
}

func newLogger(cfg *config.Config) logger.Logger {
	return logger.New(cfg.LogLevel, cfg.PrettyLog)
}
