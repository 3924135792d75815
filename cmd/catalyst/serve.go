package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/catalystpanel/catalyst/pkg/agent"
	"github.com/catalystpanel/catalyst/pkg/config"
	"github.com/catalystpanel/catalyst/pkg/log"
	"github.com/catalystpanel/catalyst/pkg/manager"
	"github.com/catalystpanel/catalyst/pkg/metrics"
	"github.com/catalystpanel/catalyst/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control plane",
	Long: `Start the control plane: the JSON API, the agent gateway, the SFTP
surface, and the metrics collector. Configuration comes from the
environment (CATALYST_DATA_DIR, CATALYST_HTTP_ADDR, CATALYST_GATEWAY_ADDR,
SERVER_DATA_PATH, SFTP_PORT, S3_*).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromEnv()
		log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})
		metrics.SetVersion(Version)

		mgr, err := manager.NewManager(cfg)
		if err != nil {
			return fmt.Errorf("create manager: %w", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := mgr.Start(ctx); err != nil {
			return fmt.Errorf("start manager: %w", err)
		}

		srv := server.New(mgr)
		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			fmt.Printf("received %s, shutting down\n", sig)
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("http server: %w", err)
			}
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
		return mgr.Shutdown()
	},
}

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run a node agent",
	Long: `Connect to the control plane gateway as a node agent. The agent
authenticates with the node id and agent key minted at registration,
executes lifecycle commands, and reports status, logs, and metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		nodeID, _ := cmd.Flags().GetString("node-id")
		key, _ := cmd.Flags().GetString("key")
		gatewayAddr, _ := cmd.Flags().GetString("gateway")
		dataDir, _ := cmd.Flags().GetString("data-dir")

		if nodeID == "" || key == "" {
			return fmt.Errorf("--node-id and --key are required")
		}

		log.Init(log.Config{Level: log.Level(envOr("LOG_LEVEL", "info"))})

		a := agent.New(agent.Config{
			NodeID:  nodeID,
			Key:     key,
			DataDir: dataDir,
		})
		if err := a.Connect(gatewayAddr); err != nil {
			return fmt.Errorf("connect to gateway: %w", err)
		}
		defer a.Close()
		fmt.Printf("agent %s connected to %s\n", nodeID, gatewayAddr)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		return nil
	},
}

func init() {
	agentCmd.Flags().String("node-id", "", "node id from registration")
	agentCmd.Flags().String("key", "", "agent key from registration")
	agentCmd.Flags().String("gateway", "127.0.0.1:7000", "gateway address")
	agentCmd.Flags().String("data-dir", "", "agent working directory")
}
