// Command geoaudit is the operator CLI: one-off audits, schema generation
// and a live view of the tracking stream.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/geoaudit/engine/audit"
	"github.com/WessleyAI/geoaudit/pkg/config"
	"github.com/WessleyAI/geoaudit/pkg/llm"
	"github.com/WessleyAI/geoaudit/pkg/resilience"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// app carries the state shared by the subcommands.
type app struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "geoaudit",
		Short:        "Schema markup audits from the command line",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "geoaudit.yaml", "configuration file")
	root.AddCommand(
		a.analyzeCmd(),
		a.analyzePostCmd(),
		a.schemaCmd(),
		a.eventsCmd(),
	)
	return root
}

func (a *app) load() (config.Config, error) {
	return config.Load(a.configPath)
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l}))
}

// pipeline builds the audit pipeline the same way the API server does.
func pipeline(cfg config.Config, logger *slog.Logger) *audit.Pipeline {
	opts := audit.Options{
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}
	if cfg.LLM.BreakerThreshold > 0 {
		opts.Breaker = resilience.NewBreaker(resilience.BreakerOpts{
			FailThreshold: cfg.LLM.BreakerThreshold,
			Timeout:       cfg.LLM.BreakerCooldown,
			HalfOpenMax:   1,
		})
	}
	client := llm.New(cfg.LLM.BaseURL, cfg.LLM.APIKey)
	return audit.New(client, opts, logger)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
