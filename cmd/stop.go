//go:build unix

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop <app>",
	Short: "Stop an app's process, keeping its port assignment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		if err := c.PostJSON(cmd.Context(), appPath(args[0], "stop"), struct{}{}, nil); err != nil {
			return err
		}
		fmt.Printf("%s stopped\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
