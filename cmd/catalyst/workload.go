package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/catalystpanel/catalyst/pkg/client"
)

var workloadCmd = &cobra.Command{
	Use:     "workload",
	Aliases: []string{"server"},
	Short:   "Manage game-server workloads",
}

var workloadCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a workload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		nodeID, _ := cmd.Flags().GetString("node")
		templateID, _ := cmd.Flags().GetString("template")
		memory, _ := cmd.Flags().GetInt64("memory-mb")
		cores, _ := cmd.Flags().GetFloat64("cpu-cores")
		disk, _ := cmd.Flags().GetInt64("disk-mb")
		network, _ := cmd.Flags().GetString("network-mode")
		networkName, _ := cmd.Flags().GetString("network-name")
		port, _ := cmd.Flags().GetInt("port")
		env, _ := cmd.Flags().GetStringToString("env")

		c := client.New(apiAddr, token)
		w, err := c.CreateWorkload(context.Background(), client.CreateWorkloadRequest{
			Name:        args[0],
			NodeID:      nodeID,
			TemplateID:  templateID,
			MemoryMB:    memory,
			CPUCores:    cores,
			DiskMB:      disk,
			NetworkMode: network,
			NetworkName: networkName,
			PrimaryPort: port,
			Environment: env,
		})
		if err != nil {
			return err
		}
		fmt.Printf("workload %s created on node %s\n", w.ID, w.NodeID)
		if w.PrimaryIP != "" {
			fmt.Printf("primary ip: %s\n", w.PrimaryIP)
		}
		return nil
	},
}

var workloadListCmd = &cobra.Command{
	Use:   "list",
	Short: "List visible workloads",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(apiAddr, token)
		workloads, err := c.ListWorkloads(context.Background())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tNODE\tSTATUS\tCRASHES")
		for _, wl := range workloads {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", wl.ID, wl.Name, wl.NodeID, wl.Status, wl.CrashCount)
		}
		return w.Flush()
	},
}

// action builds the simple lifecycle subcommands, which differ only in the
// path segment they post.
func action(use, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(apiAddr, token)
			if err := c.LifecycleAction(context.Background(), args[0], path); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}
}

var workloadSuspendCmd = &cobra.Command{
	Use:   "suspend <id>",
	Short: "Suspend a workload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		c := client.New(apiAddr, token)
		if err := c.Suspend(context.Background(), args[0], reason); err != nil {
			return err
		}
		fmt.Println("suspended")
		return nil
	},
}

var workloadTransferCmd = &cobra.Command{
	Use:   "transfer <id> <target-node-id>",
	Short: "Move a stopped workload to another node",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, _ := cmd.Flags().GetString("mode")
		c := client.New(apiAddr, token)
		if err := c.Transfer(context.Background(), args[0], args[1], mode); err != nil {
			return err
		}
		fmt.Println("transfer started")
		return nil
	},
}

var workloadLogsCmd = &cobra.Command{
	Use:   "logs <id>",
	Short: "Show recent workload logs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		c := client.New(apiAddr, token)
		logs, err := c.WorkloadLogs(context.Background(), args[0], limit)
		if err != nil {
			return err
		}
		for _, l := range logs {
			fmt.Printf("%s [%s] %s\n", l.Timestamp.Format("2006-01-02 15:04:05"), l.Stream, l.Line)
		}
		return nil
	},
}

var workloadDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a stopped workload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(apiAddr, token)
		if err := c.DeleteWorkload(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Println("workload deleted")
		return nil
	},
}

func init() {
	workloadCreateCmd.Flags().String("node", "", "node id to place the workload on")
	workloadCreateCmd.Flags().String("template", "", "template id")
	workloadCreateCmd.Flags().Int64("memory-mb", 0, "memory allocation in MiB")
	workloadCreateCmd.Flags().Float64("cpu-cores", 0, "CPU core allocation")
	workloadCreateCmd.Flags().Int64("disk-mb", 0, "disk allocation in MiB")
	workloadCreateCmd.Flags().String("network-mode", "bridge", "bridge, macvlan-dhcp, or macvlan-static")
	workloadCreateCmd.Flags().String("network-name", "", "named network for macvlan modes")
	workloadCreateCmd.Flags().Int("port", 0, "primary port")
	workloadCreateCmd.Flags().StringToString("env", nil, "environment overrides")

	workloadSuspendCmd.Flags().String("reason", "", "suspension reason")
	workloadTransferCmd.Flags().String("mode", "", "backup mode: local, s3, or stream")
	workloadLogsCmd.Flags().Int("limit", 100, "number of entries")

	workloadCmd.AddCommand(workloadCreateCmd)
	workloadCmd.AddCommand(workloadListCmd)
	workloadCmd.AddCommand(workloadDeleteCmd)
	workloadCmd.AddCommand(action("install", "Install a workload", "install"))
	workloadCmd.AddCommand(action("start", "Start a workload", "start"))
	workloadCmd.AddCommand(action("stop", "Stop a workload", "stop"))
	workloadCmd.AddCommand(action("restart", "Restart a workload", "restart"))
	workloadCmd.AddCommand(action("unsuspend", "Lift a suspension", "unsuspend"))
	workloadCmd.AddCommand(action("reset-crashes", "Reset the crash counter", "reset-crashes"))
	workloadCmd.AddCommand(workloadSuspendCmd)
	workloadCmd.AddCommand(workloadTransferCmd)
	workloadCmd.AddCommand(workloadLogsCmd)
}
