package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mastercactapus/fixedatc/pocket"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration and print every resolved pocket position",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		cfg, err := loadConfig(path)
		if err != nil {
			return err
		}

		idx, err := cfg.Indexes()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, n := range idx {
			for _, ref := range pocket.References {
				p, err := cfg.Resolve(n, ref)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "pocket %d %-15s %s\n", n, ref, p)
			}
		}
		fmt.Fprintf(out, "%d pockets OK\n", len(idx))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
