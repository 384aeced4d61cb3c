package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fastsearch/fastsearch/internal/client"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the daemon is running and its current state",
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

		st, err := c.Status(cmd.Context())
		if err != nil {
			fmt.Println("fastsearchd is not running")
			return nil
		}
		fmt.Printf("fastsearchd running: uptime=%.0fs requests=%d memory=%d/%dMB socket=%s\n",
			st.UptimeSeconds, st.RequestCount, st.TotalMemoryMB, st.MaxMemoryMB, st.SocketPath)
		return nil
	},
}
