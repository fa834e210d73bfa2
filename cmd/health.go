//go:build unix

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/appyard/appyard/internal/manifest"
)

type healthResp struct {
	Apps map[string]struct {
		Status      string    `json:"status"`
		LastChecked time.Time `json:"last_checked_at"`
	} `json:"apps"`
}

var (
	healthJSON    bool
	healthRefresh bool
)

var healthCmd = &cobra.Command{
	Use:   "health [app]",
	Short: "Show app health, optionally probing right now",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		var out healthResp
		if healthRefresh || len(args) == 1 {
			req := struct {
				App string `json:"app,omitempty"`
			}{}
			if len(args) == 1 {
				req.App = manifest.Slugify(args[0])
			}
			if err := c.PostJSON(cmd.Context(), "/api/health/refresh", req, &out); err != nil {
				return err
			}
		} else {
			if err := c.GetJSON(cmd.Context(), "/api/health", &out); err != nil {
				return err
			}
		}

		if healthJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}
		if len(out.Apps) == 0 {
			fmt.Println("No health data")
			return nil
		}

		names := make([]string, 0, len(out.Apps))
		for name := range out.Apps {
			names = append(names, name)
		}
		sort.Strings(names)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSTATUS\tLAST CHECKED")
		for _, name := range names {
			e := out.Apps[name]
			fmt.Fprintf(w, "%s\t%s\t%s\n", name, e.Status, e.LastChecked.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
	healthCmd.Flags().BoolVar(&healthJSON, "json", false, "print JSON")
	healthCmd.Flags().BoolVar(&healthRefresh, "refresh", false, "probe all apps now instead of showing the cached view")
}
