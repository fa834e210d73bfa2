//go:build unix

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

type openResp struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

var openCmd = &cobra.Command{
	Use:   "open <app>",
	Short: "Start an app (if needed) and print its URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		var out openResp
		if err := c.PostJSON(cmd.Context(), appPath(args[0], "open"), struct{}{}, &out); err != nil {
			return err
		}
		fmt.Println(out.URL)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(openCmd)
}
