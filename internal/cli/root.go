// Package cli provides the command-line interface for macsim.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "macsim",
	Short: "A discrete-event simulator for wireless MAC protocols",
	Long: `macsim simulates a multi-hop wireless network of nodes running
ALOHA or RTS/CTS-ALOHA medium access with binary-exponential backoff,
DSDV distance-vector routing, and a shared half-duplex broadcast
medium with finite propagation delay.`,
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "log level (debug, info, warn)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (json, text)")

	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func initConfig() {
	viper.SetEnvPrefix("MACSIM")
	viper.AutomaticEnv()
}
