package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fastsearch/fastsearch/internal/client"
)

var reloadConfigPath string

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Tell a running daemon to reload its configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		c := client.New(cfg.Daemon.SocketPath, 5*time.Second)
		defer c.Close()
		if _, err := c.ReloadConfig(cmd.Context(), reloadConfigPath); err != nil {
			return fmt.Errorf("reload: %w", err)
		}
		fmt.Println("fastsearchd reloaded")
		return nil
	},
}

func init() {
	reloadCmd.Flags().StringVar(&reloadConfigPath, "config-path", "", "config file the daemon should reload from (defaults to the path it started with)")
}
