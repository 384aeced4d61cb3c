// Package cli implements the fastsearchd command tree: run, status, stop,
// and reload. It only operates the daemon process described by the RPC
// server and model manager; it is not the document-indexing/search CLI.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fastsearch/fastsearch/internal/config"
)

var (
	cfgFile    string
	socketFlag string

	appVersion   = "dev"
	appBuildTime = "unknown"

	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:          "fastsearchd",
	Short:        "Operate the fastsearch daemon",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to the daemon config file")
	rootCmd.PersistentFlags().StringVar(&socketFlag, "socket", "", "override the daemon socket path")
	rootCmd.AddCommand(runCmd, statusCmd, stopCmd, reloadCmd)

	logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
}

// Execute runs the command tree; it is called by main.main().
func Execute() {
	rootCmd.Version = fmt.Sprintf("%s (built %s)", appVersion, appBuildTime)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// SetVersionInfo lets main inject build-time variables before Execute.
func SetVersionInfo(version, buildTime string) {
	appVersion = version
	appBuildTime = buildTime
}

// loadConfig reads the daemon config the same way the daemon itself
// does: an optional .env file, then Default() < YAML < env, with --socket
// taking final precedence over whatever the config surface says.
func loadConfig() (*config.Config, error) {
	_ = config.LoadDotEnv("")
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if socketFlag != "" {
		cfg.Daemon.SocketPath = socketFlag
	}
	return cfg, nil
}

// readPIDFile is the fast pre-check status/stop run before ever touching
// the socket: no PID file means no daemon to ask.
func readPIDFile(path string) (int, bool) {
	if path == "" {
		return 0, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	return pid, true
}
