package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/omarluq/vk-async/internal/config"
	"github.com/omarluq/vk-async/internal/di"
	"github.com/omarluq/vk-async/internal/fetcher"
)

const shutdownTimeout = 30 * time.Second

// resolveConfigPath returns --config or the first default location that exists.
func resolveConfigPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.FindConfigFile()
}

// commandContext returns the context cobra was executed with.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// withFetcher builds the container, hands the fetcher to fn and shuts the
// container down afterwards.
func withFetcher(ctx context.Context, fn func(*fetcher.Fetcher) error) (err error) {
	path, err := resolveConfigPath()
	if err != nil {
		return err
	}

	container, err := di.NewContainer(path)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if shutdownErr := container.ShutdownWithContext(shutdownCtx); shutdownErr != nil && err == nil {
			err = shutdownErr
		}
	}()

	svc, err := di.Invoke[*di.FetcherService](container)
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	applyRateOverride(svc.Fetcher, rpsOverride)
	return fn(svc.Fetcher)
}

// applyRateOverride sets every account's rate limit to rps. Zero keeps the
// configured limits.
func applyRateOverride(f *fetcher.Fetcher, rps int) {
	if rps <= 0 {
		return
	}
	for _, app := range f.Applications() {
		app.Scheduler().Limiter().SetLimit(rps)
	}
}
