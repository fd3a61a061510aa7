package main

import (
	"fmt"
	"io"
	"os"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/joshp123/agrobot/internal/config"
	"github.com/joshp123/agrobot/internal/logging"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:           "agrobot",
	Short:         "Mirror and control an agricultural field robot",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.AddCommand(serveCmd, simulateCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads configuration for cmd and builds the process logger.
func setup(cmd *cobra.Command) (*config.Config, logr.Logger, io.Closer, error) {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return nil, logr.Discard(), nil, err
	}
	log, closer, err := logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return nil, logr.Discard(), nil, err
	}
	return cfg, log.WithName("agrobot"), closer, nil
}
