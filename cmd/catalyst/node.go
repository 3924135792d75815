package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/catalystpanel/catalyst/pkg/client"
)

var loginCmd = &cobra.Command{
	Use:   "login <user-id>",
	Short: "Create a session and print its token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(apiAddr, "")
		res, err := c.Login(context.Background(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("export CATALYST_TOKEN=%s\n", res.Token)
		fmt.Fprintf(os.Stderr, "session for %s expires %s\n", res.UserID, res.ExpiresAt)
		return nil
	},
}

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Manage worker nodes",
}

var nodeRegisterCmd = &cobra.Command{
	Use:   "register <name>",
	Short: "Register a worker node and print its agent key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		address, _ := cmd.Flags().GetString("address")
		memory, _ := cmd.Flags().GetInt64("memory-mb")
		cores, _ := cmd.Flags().GetFloat64("cpu-cores")

		c := client.New(apiAddr, token)
		node, err := c.RegisterNode(context.Background(), args[0], address, memory, cores)
		if err != nil {
			return err
		}
		fmt.Printf("node %s registered\n", node.ID)
		fmt.Printf("agent key (shown once): %s\n", node.AgentKey)
		fmt.Printf("run on the host: catalyst agent --node-id %s --key <key>\n", node.ID)
		return nil
	},
}

var nodeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered nodes",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(apiAddr, token)
		nodes, err := c.ListNodes(context.Background())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tADDRESS\tONLINE\tLAST SEEN")
		for _, n := range nodes {
			lastSeen := "never"
			if !n.LastSeen.IsZero() {
				lastSeen = time.Since(n.LastSeen).Round(time.Second).String() + " ago"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\n", n.ID, n.Name, n.Address, n.Online, lastSeen)
		}
		return w.Flush()
	},
}

var nodeDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Remove an empty node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(apiAddr, token)
		if err := c.DeleteNode(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Println("node deleted")
		return nil
	},
}

var nodeIPPoolCmd = &cobra.Command{
	Use:   "ippool <node-id> <network> <addr,addr,...>",
	Short: "Attach an address pool to a node network",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(apiAddr, token)
		pool, err := c.AddIPPool(context.Background(), args[0], args[1], strings.Split(args[2], ","))
		if err != nil {
			return err
		}
		fmt.Printf("pool %s created with %d addresses\n", pool.ID, len(pool.Free))
		return nil
	},
}

func init() {
	nodeRegisterCmd.Flags().String("address", "", "public address of the node")
	nodeRegisterCmd.Flags().Int64("memory-mb", 0, "memory capacity in MiB")
	nodeRegisterCmd.Flags().Float64("cpu-cores", 0, "CPU core capacity")

	nodeCmd.AddCommand(nodeRegisterCmd)
	nodeCmd.AddCommand(nodeListCmd)
	nodeCmd.AddCommand(nodeDeleteCmd)
	nodeCmd.AddCommand(nodeIPPoolCmd)
}
