package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/sjson"

	"github.com/omarluq/vk-async/internal/fetcher"
	"github.com/omarluq/vk-async/internal/logging"
	"github.com/omarluq/vk-async/internal/ro"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Acquire an access token for an account",
	Long: `Acquire an access token through the login and OAuth flow, or report
the token configured for the account. --refresh drops the held token first so a
new one is always acquired. The token is masked unless --reveal is set.`,
	Args: cobra.NoArgs,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringP("account", "a", "", "account to authorize (default: first account)")
	tokenCmd.Flags().Bool("reveal", false, "print the full token")
	tokenCmd.Flags().Bool("refresh", false, "discard the held token and acquire a new one")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	account, err := cmd.Flags().GetString("account")
	if err != nil {
		return fmt.Errorf("failed to get account flag: %w", err)
	}
	reveal, err := cmd.Flags().GetBool("reveal")
	if err != nil {
		return fmt.Errorf("failed to get reveal flag: %w", err)
	}
	refresh, err := cmd.Flags().GetBool("refresh")
	if err != nil {
		return fmt.Errorf("failed to get refresh flag: %w", err)
	}

	ctx, stop := ro.CancelOnShutdown(commandContext(cmd), func(sig os.Signal) {
		fmt.Fprintf(cmd.ErrOrStderr(), "received %s, cancelling\n", sig)
	})
	defer stop()

	return withFetcher(ctx, func(f *fetcher.Fetcher) error {
		return tokenWith(ctx, cmd.OutOrStdout(), f, account, reveal, refresh)
	})
}

func tokenWith(ctx context.Context, w io.Writer, f *fetcher.Fetcher, account string, reveal, refresh bool) error {
	if account == "" {
		account = f.Applications()[0].Name()
	}
	app, err := pickApplication(f, account)
	if err != nil {
		return err
	}

	if refresh {
		app.Keeper().Drop()
	}
	tok, err := app.Keeper().EnsureToken(ctx)
	if err != nil {
		return err
	}

	value := tok.AccessToken
	if !reveal {
		value = logging.Mask(value)
	}

	doc, err := sjson.SetBytes([]byte(`{}`), "account", app.Name())
	if err == nil {
		doc, err = sjson.SetBytes(doc, "access_token", value)
	}
	if err == nil && !tok.Expiry.IsZero() {
		doc, err = sjson.SetBytes(doc, "expiry", tok.Expiry.UTC().Format(time.RFC3339))
	}
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	return writeJSON(w, doc, false)
}
