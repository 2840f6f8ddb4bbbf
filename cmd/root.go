// Package cmd implements the pktkit command line using cobra.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/pktkit/internal/config"
	"firestige.xyz/pktkit/pkg/log"
)

var (
	// Global flags
	configFile string
	logLevel   string

	// cfg is loaded before any subcommand runs.
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pktkit",
	Short: "pktkit - zero-copy packet decoding and encoding toolkit",
	Long: `pktkit decodes captured frames into nested protocol layers without copying
the capture buffer, and builds well-formed synthetic frames.

Supported layers: Ethernet, Linux SLL, 802.1Q, ARP, IPv4, IPv6, ICMPv4,
ICMPv6/NDP, TCP, UDP, GRE, L2TPv2, PPPoE, PPP, Wake-on-LAN, DHCPv4, OSPFv2
and DRDA.`,
	Version:           version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command until it completes or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults only when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"override log.level (trace/debug/info/warn/error)")

	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(synthCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the configuration and installs the process-wide logger.
func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	}
	if _, err := log.Init(c.Log); err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	cfg = c
	return nil
}
