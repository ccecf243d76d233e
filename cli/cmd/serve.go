package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/convoflow/convoflow/gateway"
)

var (
	configPath string
	listenAddr string
	flowsDir   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve flows over HTTP",
	Long: `Serve starts the HTTP gateway: conversation start/step endpoints for
channel adapters plus CRUD for flow definitions.

Example:

  convoflow serve --config convoflow.yaml
  convoflow serve --listen 0.0.0.0:9000 --flows ./flows`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := gateway.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if listenAddr != "" {
			cfg.Listen = listenAddr
		}
		if flowsDir != "" {
			cfg.FlowsDir = flowsDir
		}

		logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
		slog.SetDefault(logger)

		srv, err := gateway.New(cfg, logger)
		if err != nil {
			return fmt.Errorf("initializing server: %w", err)
		}
		defer srv.Close()

		return srv.Run()
	},
}

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "listen address, overrides config")
	serveCmd.Flags().StringVar(&flowsDir, "flows", "", "flow definitions directory, overrides config")
}
