package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/healer/internal/core/config"
	"github.com/vietddude/healer/internal/healing/cache"
)

var (
	flushSelector    string
	flushDescription string
	flushContextHash string
)

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Remove cached selector entries",
	Long:  `Flush removes every cached entry, or just one when --selector (and its --description) identify it.`,
	Run:   runFlush,
}

func init() {
	flushCmd.Flags().StringVar(&flushSelector, "selector", "", "remove only the entry for this selector")
	flushCmd.Flags().StringVar(&flushDescription, "description", "", "description the entry was cached under")
	flushCmd.Flags().StringVar(&flushContextHash, "context-hash", "", "context hash the entry was cached under")
	rootCmd.AddCommand(flushCmd)
}

func runFlush(cmd *cobra.Command, args []string) {
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

	if flushSelector != "" {
		key := cache.Key(flushSelector, flushDescription, flushContextHash)
		if err := backend.Delete(ctx, key); err != nil {
			slog.Error("Failed to remove entry", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Removed cached entry for %s\n", flushSelector)
		return
	}

	keys, err := backend.Keys(ctx)
	if err != nil {
		slog.Error("Failed to list cache entries", "error", err)
		os.Exit(1)
	}
	removed := 0
	for _, key := range keys {
		if err := backend.Delete(ctx, key); err != nil {
			slog.Warn("Failed to remove entry", "key", key, "error", err)
			continue
		}
		removed++
	}
	fmt.Printf("Flushed %d cached entries\n", removed)
}
