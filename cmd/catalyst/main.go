package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	apiAddr string
	token   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "catalyst",
	Short: "Catalyst - control plane for game-server workloads",
	Long: `Catalyst manages container-based game servers across a fleet of
worker nodes: lifecycle, resource and address arbitration, transfers,
templates, and an SFTP file surface, behind one JSON API.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Catalyst version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVar(&apiAddr, "api",
		envOr("CATALYST_API", "http://127.0.0.1:8080"), "control plane API address")
	rootCmd.PersistentFlags().StringVar(&token,
		"token", os.Getenv("CATALYST_TOKEN"), "session token")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(nodeCmd)
	rootCmd.AddCommand(templateCmd)
	rootCmd.AddCommand(workloadCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
