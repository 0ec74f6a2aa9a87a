// Package main is the entry point for vk-async.
package main

import (
	"context"
	"os"

	"charm.land/fang/v2"
	"github.com/spf13/cobra"

	"github.com/omarluq/vk-async/internal/config"
)

var (
	cfgFile     string
	rpsOverride int
)

var rootCmd = &cobra.Command{
	Use:   "vk-async",
	Short: "Rate-limited VK API client",
	Long: `vk-async calls VK API methods on behalf of one or more accounts.
Each account is held to its own request rate, tokens are acquired
through the login and OAuth flow when needed, and calls are spread
round robin across accounts.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file path (default: ./"+config.DefaultFileName+" or ~/.config/vk-async/config.yaml)")
	rootCmd.PersistentFlags().IntVar(&rpsOverride, "rps", 0,
		"override every account's requests per second for this run")
}

func main() {
	if err := fang.Execute(context.Background(), rootCmd); err != nil {
		os.Exit(1)
	}
}
