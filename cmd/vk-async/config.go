package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/omarluq/vk-async/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the configuration file without calling the API.
Checks syntax, required fields, and account credentials.`,
	RunE: runConfigValidate,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default config file",
	Long:  `Generate a default vk-async configuration file at ~/.config/vk-async/config.yaml`,
	RunE:  runConfigInit,
}

func init() {
	configInitCmd.Flags().StringP("output", "o", "", "output path (default: ~/.config/vk-async/config.yaml)")
	configInitCmd.Flags().Bool("force", false, "overwrite existing config file")

	configCmd.AddCommand(configValidateCmd, configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	configPath, err := resolveConfigPath()
	if err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "✗ Config validation failed: %s\n", err)
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s is valid (%d accounts)\n", configPath, len(cfg.Accounts))
	return nil
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return fmt.Errorf("failed to get output flag: %w", err)
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return fmt.Errorf("failed to get force flag: %w", err)
	}

	if output == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		output = filepath.Join(home, ".config", "vk-async", "config.yaml")
	}

	if _, err := os.Stat(output); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", output)
	}

	if err := os.MkdirAll(filepath.Dir(output), 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(output, []byte(defaultConfigTemplate), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Config file created at %s\n", output)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  1. Set VK_APP_ID, VK_USERNAME and VK_PASSWORD, or VK_ACCESS_TOKEN")
	fmt.Fprintln(out, "  2. Validate with: vk-async config validate")
	fmt.Fprintln(out, "  3. Try a call: vk-async call users.get user_ids=1")

	return nil
}

const defaultConfigTemplate = `# vk-async configuration
# Values support ${ENV_VAR} expansion.

accounts:
  - name: main
    app_id: "${VK_APP_ID}"
    username: ${VK_USERNAME}
    password: "${VK_PASSWORD}"
    scope: offline
    # access_token: ${VK_ACCESS_TOKEN}
    # requests_per_second: 3

api:
  url: https://api.vk.com/method/
  version: "5.28"
  timeout_ms: 20000
  # 0 retries "too many requests" until it succeeds
  max_rate_limit_retries: 0

rate_limit:
  strategy: sliding_window   # or token_bucket
  requests_per_second: 3

transport:
  max_timeout_retries: 3
  max_redirects: 10
  breaker:
    failure_threshold: 5
    open_duration_ms: 30000
    half_open_probes: 3

scheduler:
  dispose_policy: drain      # or cancel
  close_timeout_ms: 30000

logging:
  level: info
  format: console
  output: stderr
`
