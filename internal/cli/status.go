package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/healer/internal/core/config"
	"github.com/vietddude/healer/internal/healing/cache"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the cached selector entries",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	backend, err := openBackend(ctx, cfg)
	if err != nil {
		slog.Error("Failed to open cache backend", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = backend.Close()
	}()

	keys, err := backend.Keys(ctx)
	if err != nil {
		slog.Error("Failed to list cache entries", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "KEY\tSELECTOR\tLOCATOR\tSOURCE\tCONF\tHITS\tAGE")

	for _, key := range keys {
		raw, err := backend.Get(ctx, key)
		if err != nil {
			continue
		}
		var e cache.Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			continue
		}
		short := key
		if len(short) > 12 {
			short = short[:12]
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%d\t%s\n",
			short, e.Selector, e.Locator, e.Source, e.Confidence, e.Hits,
			time.Since(e.CreatedAt).Round(time.Second))
	}
	_ = w.Flush()
}
