package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fastsearch/fastsearch/internal/client"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Ask a running daemon to shut down",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if _, ok := readPIDFile(cfg.Daemon.PIDPath); !ok {
			fmt.Println("fastsearchd is not running")
			return nil
		}

		c := client.New(cfg.Daemon.SocketPath, 5*time.Second)
		defer c.Close()
		if _, err := c.Shutdown(cmd.Context()); err != nil {
			return fmt.Errorf("stop: %w", err)
		}
		fmt.Println("fastsearchd stopping")
		return nil
	},
}
