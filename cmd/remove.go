//go:build unix

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/appyard/appyard/internal/apiclient"
)

var removeCmd = &cobra.Command{
	Use:   "remove <app>",
	Short: "Stop an app and release its port assignment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		if err := c.Delete(cmd.Context(), appPath(args[0], "")); err != nil {
			if apiclient.IsNotFound(err) {
				return fmt.Errorf("no app named %s", args[0])
			}
			return err
		}
		fmt.Printf("%s removed\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(removeCmd)
}
