// Package logging builds the zerolog loggers used across vk-async and carries
// per-call identifiers through contexts.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"github.com/omarluq/vk-async/internal/config"
)

type ctxKey string

// CallIDKey is the context key for call IDs.
const CallIDKey ctxKey = "call_id"

// New creates a zerolog.Logger from LoggingConfig.
// Output defaults to stderr so command results on stdout stay machine readable.
func New(cfg config.LoggingConfig) (zerolog.Logger, error) {
	output, outputFile, err := selectOutput(cfg.Output)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("logging: open output: %w", err)
	}

	if shouldUsePretty(cfg, outputFile) {
		output = buildConsoleWriter(output, cfg.Format == "text")
	}

	return zerolog.New(output).
		Level(cfg.ParseLevel()).
		With().
		Timestamp().
		Logger(), nil
}

// Nop returns l, or a disabled logger when l is nil.
func Nop(l *zerolog.Logger) *zerolog.Logger {
	if l != nil {
		return l
	}
	nop := zerolog.Nop()
	return &nop
}

func selectOutput(outputCfg string) (io.Writer, *os.File, error) {
	switch outputCfg {
	case "", "stderr":
		return os.Stderr, os.Stderr, nil
	case "stdout":
		return os.Stdout, os.Stdout, nil
	default:
		f, err := os.OpenFile(filepath.Clean(outputCfg), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, nil, err
		}
		return f, f, nil
	}
}

func shouldUsePretty(cfg config.LoggingConfig, outputFile *os.File) bool {
	if cfg.Pretty {
		return true
	}

	switch cfg.Format {
	case "pretty", "text":
		return true
	case "json":
		return false
	default:
		return outputFile != nil && isatty.IsTerminal(outputFile.Fd())
	}
}

func buildConsoleWriter(output io.Writer, noColor bool) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:             output,
		TimeFormat:      "15:04:05",
		NoColor:         noColor,
		FormatLevel:     formatLevel(noColor),
		FormatMessage:   formatMessage,
		FormatFieldName: formatFieldName(noColor),
		FormatFieldValue: func(i any) string {
			return fmt.Sprintf("%s", i)
		},
	}
}

var levelColors = map[string]string{
	"trace": "\033[90mTRC\033[0m", // Gray
	"debug": "\033[36mDBG\033[0m", // Cyan
	"info":  "\033[32mINF\033[0m", // Green
	"warn":  "\033[33mWRN\033[0m", // Yellow
	"error": "\033[31mERR\033[0m", // Red
	"fatal": "\033[35mFTL\033[0m", // Magenta
	"panic": "\033[35mPNC\033[0m", // Magenta
}

func formatLevel(noColor bool) zerolog.Formatter {
	return func(i any) string {
		level, ok := i.(string)
		if !ok {
			return ""
		}
		if noColor {
			return strings.ToUpper(level[:min(3, len(level))])
		}
		if colored, exists := levelColors[level]; exists {
			return colored
		}
		return level
	}
}

func formatMessage(i any) string {
	if i == nil {
		return ""
	}
	return fmt.Sprintf("-> %s", i)
}

func formatFieldName(noColor bool) zerolog.Formatter {
	return func(i any) string {
		if noColor {
			return fmt.Sprintf("%s=", i)
		}
		return fmt.Sprintf("\033[2m%s=\033[0m", i)
	}
}

// WithCallID stores a call ID in ctx, generating a UUID when id is empty.
func WithCallID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.NewString()
	}
	return context.WithValue(ctx, CallIDKey, id)
}

// CallID retrieves the call ID from ctx.
func CallID(ctx context.Context) string {
	if id, ok := ctx.Value(CallIDKey).(string); ok {
		return id
	}
	return ""
}

// ForCall returns base enriched with the call ID carried by ctx.
func ForCall(ctx context.Context, base *zerolog.Logger) zerolog.Logger {
	l := Nop(base)
	if id := CallID(ctx); id != "" {
		return l.With().Str("call_id", id).Logger()
	}
	return *l
}

// Mask hides the middle of a secret so it can appear in logs and output.
func Mask(secret string) string {
	if len(secret) <= 12 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}
