package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/tidwall/sjson"

	"github.com/omarluq/vk-async/internal/api"
	"github.com/omarluq/vk-async/internal/fetcher"
	"github.com/omarluq/vk-async/internal/ro"
)

const maxBatchLine = 1 << 20

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run many calls across all accounts",
	Long: `Read calls as JSON lines and run them round robin across accounts.

Each input line is an object such as {"method":"users.get","params":{"user_ids":1}}.
One JSON line is printed per call, in input order.`,
	Example: `  printf '%s\n' '{"method":"users.get","params":{"user_ids":1}}' | vk-async batch`,
	Args:    cobra.NoArgs,
	RunE:    runBatch,
}

func init() {
	batchCmd.Flags().StringP("file", "f", "", "read calls from file instead of stdin")
	batchCmd.Flags().Duration("timeout", 0, "per-attempt HTTP timeout (default: api.timeout_ms)")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, _ []string) error {
	file, err := cmd.Flags().GetString("file")
	if err != nil {
		return fmt.Errorf("failed to get file flag: %w", err)
	}
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		return fmt.Errorf("failed to get timeout flag: %w", err)
	}

	input := cmd.InOrStdin()
	if file != "" {
		fh, err := os.Open(file) //nolint:gosec // path comes from the user
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", file, err)
		}
		defer func() { _ = fh.Close() }()
		input = fh
	}

	calls, err := readBatch(input)
	if err != nil {
		return err
	}

	ctx, stop := ro.CancelOnShutdown(commandContext(cmd), func(sig os.Signal) {
		fmt.Fprintf(cmd.ErrOrStderr(), "received %s, cancelling\n", sig)
	})
	defer stop()

	return withFetcher(ctx, func(f *fetcher.Fetcher) error {
		var opts []api.CallOption
		if timeout > 0 {
			opts = append(opts, api.WithTimeout(timeout))
		}
		return batchWith(ctx, cmd.OutOrStdout(), f, calls, opts...)
	})
}

// readBatch decodes one BatchCall per non-blank line.
func readBatch(r io.Reader) ([]fetcher.BatchCall, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxBatchLine)

	var calls []fetcher.BatchCall
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var call fetcher.BatchCall
		if err := json.Unmarshal(text, &call); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		calls = append(calls, call)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read calls: %w", err)
	}
	return calls, nil
}

func batchWith(
	ctx context.Context, w io.Writer, f *fetcher.Fetcher, calls []fetcher.BatchCall, opts ...api.CallOption,
) error {
	results, err := f.Batch(ctx, calls, opts...)
	if err != nil {
		return err
	}

	for _, res := range results {
		doc, err := encodeBatchResult(res)
		if err != nil {
			return fmt.Errorf("failed to encode result %d: %w", res.Index, err)
		}
		if err := writeJSON(w, doc, false); err != nil {
			return err
		}
	}

	failed := lo.CountBy(results, func(res fetcher.BatchResult) bool { return res.Err != nil })
	if failed > 0 {
		return fmt.Errorf("%d of %d calls failed", failed, len(results))
	}
	return nil
}

func encodeBatchResult(res fetcher.BatchResult) ([]byte, error) {
	doc, err := sjson.SetBytes(callHeader(res.Account, res.Method), "index", res.Index)
	if err != nil {
		return nil, err
	}
	if res.Err != nil {
		return encodeError(doc, res.Err)
	}
	return sjson.SetRawBytes(doc, "response", res.Response)
}
