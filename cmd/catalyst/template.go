package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/catalystpanel/catalyst/pkg/client"
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Manage workload templates",
}

var templateImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a template document",
	Long: `Import a template from a JSON or YAML document. Both the native
format and foreign panel exports are accepted; foreign documents are
normalized on import.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		c := client.New(apiAddr, token)
		tpl, err := c.ImportTemplate(context.Background(), raw)
		if err != nil {
			return err
		}
		fmt.Printf("template %s imported as %s\n", tpl.Name, tpl.ID)
		return nil
	},
}

var templateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(apiAddr, token)
		tpls, err := c.ListTemplates(context.Background())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tIMAGE\tPORTS")
		for _, t := range tpls {
			fmt.Fprintf(w, "%s\t%s\t%s\t%v\n", t.ID, t.Name, t.Image, t.Ports)
		}
		return w.Flush()
	},
}

func init() {
	templateCmd.AddCommand(templateImportCmd)
	templateCmd.AddCommand(templateListCmd)
}
