//go:build unix

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

type listResp struct {
	Apps []struct {
		Name         string `json:"name"`
		FrontendPort int    `json:"frontend_port"`
		BackendPort  int    `json:"backend_port"`
		Running      bool   `json:"running"`
	} `json:"apps"`
}

var listJSON bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List apps with their ports and state",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		var out listResp
		if err := c.GetJSON(cmd.Context(), "/api/apps", &out); err != nil {
			return err
		}
		if listJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}
		if len(out.Apps) == 0 {
			fmt.Println("No apps registered")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tFRONTEND\tBACKEND\tSTATE")
		for _, a := range out.Apps {
			state := "stopped"
			if a.Running {
				state = "running"
			}
			fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", a.Name, a.FrontendPort, a.BackendPort, state)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listJSON, "json", false, "print JSON")
}
