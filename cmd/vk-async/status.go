package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/sjson"

	"github.com/omarluq/vk-async/internal/api"
	"github.com/omarluq/vk-async/internal/fetcher"
	"github.com/omarluq/vk-async/internal/logging"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the token and rate usage of every account",
	Long: `Print one JSON line per configured account with the token it holds,
the token expiry, queued calls and current rate usage. No requests are sent.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().Bool("pretty", false, "indent the JSON output")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	pretty, err := cmd.Flags().GetBool("pretty")
	if err != nil {
		return fmt.Errorf("failed to get pretty flag: %w", err)
	}

	return withFetcher(commandContext(cmd), func(f *fetcher.Fetcher) error {
		return statusWith(cmd.OutOrStdout(), f, time.Now(), pretty)
	})
}

func statusWith(w io.Writer, f *fetcher.Fetcher, now time.Time, pretty bool) error {
	for _, app := range f.Applications() {
		doc, err := encodeStatus(app, now)
		if err != nil {
			return fmt.Errorf("failed to encode status of %s: %w", app.Name(), err)
		}
		if err := writeJSON(w, doc, pretty); err != nil {
			return err
		}
	}
	return nil
}

func encodeStatus(app *api.Application, now time.Time) ([]byte, error) {
	sched := app.Scheduler()

	doc, err := sjson.SetBytes([]byte(`{}`), "account", app.Name())
	if err == nil {
		doc, err = sjson.SetBytes(doc, "pending", sched.Pending())
	}
	if err == nil {
		doc, err = sjson.SetBytes(doc, "rate", sched.Limiter().GetUsage())
	}
	if err != nil {
		return nil, err
	}

	tok := app.Keeper().Current()
	if tok == nil || tok.AccessToken == "" {
		return sjson.SetBytes(doc, "token", nil)
	}

	doc, err = sjson.SetBytes(doc, "token", logging.Mask(tok.AccessToken))
	if err == nil && !tok.Expiry.IsZero() {
		doc, err = sjson.SetBytes(doc, "expiry", tok.Expiry.UTC().Format(time.RFC3339))
	}
	if err == nil {
		doc, err = sjson.SetBytes(doc, "expired", !tok.Expiry.IsZero() && !now.Before(tok.Expiry))
	}
	return doc, err
}
