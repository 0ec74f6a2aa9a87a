package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/omarluq/vk-async/internal/api"
	"github.com/omarluq/vk-async/internal/fetcher"
	"github.com/omarluq/vk-async/internal/ro"
)

var callCmd = &cobra.Command{
	Use:   "call <method> [key=value ...]",
	Short: "Call an API method",
	Long: `Call an API method and print the result as JSON.

Parameters are given as key=value pairs. Without --account the call goes
to the next account in round-robin order.`,
	Example: `  vk-async call users.get user_ids=1 fields=photo_50
  vk-async call wall.get owner_id=-1 count=5 --account main --raw`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCall,
}

func init() {
	callCmd.Flags().StringP("account", "a", "", "account to call with (default: round robin)")
	callCmd.Flags().Duration("timeout", 0, "per-attempt HTTP timeout (default: api.timeout_ms)")
	callCmd.Flags().Bool("raw", false, "print only the response value")
	callCmd.Flags().Bool("pretty", false, "indent the JSON output")
	rootCmd.AddCommand(callCmd)
}

func runCall(cmd *cobra.Command, args []string) error {
	account, err := cmd.Flags().GetString("account")
	if err != nil {
		return fmt.Errorf("failed to get account flag: %w", err)
	}
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		return fmt.Errorf("failed to get timeout flag: %w", err)
	}
	raw, err := cmd.Flags().GetBool("raw")
	if err != nil {
		return fmt.Errorf("failed to get raw flag: %w", err)
	}
	pretty, err := cmd.Flags().GetBool("pretty")
	if err != nil {
		return fmt.Errorf("failed to get pretty flag: %w", err)
	}

	params, err := parseParams(args[1:])
	if err != nil {
		return err
	}

	ctx, stop := ro.CancelOnShutdown(commandContext(cmd), func(sig os.Signal) {
		fmt.Fprintf(cmd.ErrOrStderr(), "received %s, cancelling\n", sig)
	})
	defer stop()

	return withFetcher(ctx, func(f *fetcher.Fetcher) error {
		return callWith(ctx, cmd, f, callRequest{
			account: account,
			method:  args[0],
			params:  params,
			timeout: timeout,
			raw:     raw,
			pretty:  pretty,
		})
	})
}

type callRequest struct {
	params  api.Params
	account string
	method  string
	timeout time.Duration
	raw     bool
	pretty  bool
}

func callWith(ctx context.Context, cmd *cobra.Command, f *fetcher.Fetcher, req callRequest) error {
	app, err := pickApplication(f, req.account)
	if err != nil {
		return err
	}

	var opts []api.CallOption
	if req.timeout > 0 {
		opts = append(opts, api.WithTimeout(req.timeout))
	}

	res, err := app.Do(ctx, req.method, req.params, opts...)
	if err != nil {
		doc, encErr := encodeError(callHeader(app.Name(), req.method), err)
		if encErr == nil {
			_ = writeJSON(cmd.OutOrStdout(), doc, req.pretty)
		}
		return err
	}

	if req.raw {
		return writeJSON(cmd.OutOrStdout(), res.Response, req.pretty)
	}

	doc, err := encodeCall(app.Name(), req.method, res)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return writeJSON(cmd.OutOrStdout(), doc, req.pretty)
}

// pickApplication returns the named account or the next one in rotation.
func pickApplication(f *fetcher.Fetcher, account string) (*api.Application, error) {
	if account == "" {
		return f.Next(), nil
	}
	app, ok := f.Application(account)
	if !ok {
		return nil, fmt.Errorf("unknown account %q", account)
	}
	return app, nil
}
