package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loykin/mca"
)

func createInitCommand(flags *InitFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default agents config",
		Long: `Write the default four-worker config. The format follows the file
extension (.json, .yaml or .yml); a directory gets agents_config.json.

Examples:
  mca init
  mca init --output ~/.config/mca/agents_config.yaml --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			wd, err := os.Getwd()
			if err != nil {
				return err
			}
			path, err := mca.WriteDefaultConfig(flags.Output, wd, flags.Force)
			if err != nil {
				return err
			}
			u := newUI(cmd.OutOrStdout())
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s wrote %s\n", u.ok("[OK]"), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&flags.Output, "output", "o", "", "file or directory to write (default: ./agents_config.json)")
	cmd.Flags().BoolVar(&flags.Force, "force", false, "overwrite an existing file")
	return cmd
}
