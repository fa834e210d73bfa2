//go:build unix

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/appyard/appyard/internal/daemon"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the appyard daemon",
	Long: `Control the appyard background daemon that owns the port registry,
supervises app processes, and serves the CLI over a Unix socket.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the appyard daemon",
	Long: `Start the appyard daemon in foreground mode.

For background operation, use:
  nohup appyard daemon start > /tmp/appyard-daemon.log 2>&1 &`,
	RunE: startDaemon,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the appyard daemon",
	Long:  "Stop the running appyard daemon gracefully.",
	RunE:  stopDaemon,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check daemon status",
	Long:  "Check if the appyard daemon is running and display its status.",
	RunE:  statusDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
}

func newDaemon() (*daemon.Daemon, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	d, err := daemon.New(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize daemon: %w", err)
	}
	return d, nil
}

func startDaemon(cmd *cobra.Command, args []string) error {
	d, err := newDaemon()
	if err != nil {
		return err
	}
	return d.Start()
}

func stopDaemon(cmd *cobra.Command, args []string) error {
	d, err := newDaemon()
	if err != nil {
		return err
	}
	if err := d.Stop(); err != nil {
		return err
	}
	fmt.Println("appyard daemon stopped")
	return nil
}

func statusDaemon(cmd *cobra.Command, args []string) error {
	d, err := newDaemon()
	if err != nil {
		return err
	}

	status, err := d.GetStatus()
	if err != nil {
		return err
	}

	if !status.Running {
		if status.PID > 0 {
			if status.ErrorMessage != "" {
				fmt.Printf("appyard daemon process exists (PID: %d) but not responding\n", status.PID)
				fmt.Printf("  Socket: %s\n", status.SocketPath)
				fmt.Printf("  Error: %v\n", status.ErrorMessage)
			} else {
				fmt.Printf("appyard daemon is not running (stale pidfile)\n")
				fmt.Printf("  Socket: %s\n", status.SocketPath)
			}
		} else {
			fmt.Printf("appyard daemon is not running\n")
			fmt.Printf("  Socket: %s\n", status.SocketPath)
		}
		return nil
	}

	fmt.Printf("appyard daemon running (PID: %d)\n", status.PID)
	fmt.Printf("  Socket: %s\n", status.SocketPath)
	fmt.Printf("  Uptime: %s\n", status.Uptime.Round(time.Second))
	return nil
}
