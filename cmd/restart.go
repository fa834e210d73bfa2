//go:build unix

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var restartCmd = &cobra.Command{
	Use:   "restart <app>",
	Short: "Restart an app on its existing ports",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		var out openResp
		if err := c.PostJSON(cmd.Context(), appPath(args[0], "restart"), struct{}{}, &out); err != nil {
			return err
		}
		fmt.Println(out.URL)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(restartCmd)
}
