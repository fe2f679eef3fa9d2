package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/keisuke-w/tokenwatch/internal/core/pricing"
	"github.com/keisuke-w/tokenwatch/internal/data/aggregator"
	"github.com/keisuke-w/tokenwatch/internal/data/store"
	"github.com/keisuke-w/tokenwatch/internal/presentation/formatter"
	"github.com/keisuke-w/tokenwatch/internal/util"
)

var (
	usageSince   string
	usageUntil   string
	usageSession string
	usageOutput  string
	usageLimit   int
	usageDataDir string
	usageWatch   bool

	pricingSource      string
	pricingOfflineMode bool

	usageCmd = &cobra.Command{
		Use:   "usage",
		Short: "Aggregate logged usage into a cost report",
		RunE:  runUsage,
	}
)

func init() {
	usageCmd.Flags().StringVarP(&usageSince, "since", "s", "",
		"Lookback window start (e.g., 12h, 7d, 2w3d)")
	usageCmd.Flags().StringVar(&usageUntil, "until", "",
		"Lookback window end (same syntax as --since)")
	usageCmd.Flags().StringVar(&usageSession, "session", "",
		"Restrict to one session id")
	usageCmd.Flags().StringVarP(&usageOutput, "output", "o", "table",
		"Output format (table, summary, json)")
	usageCmd.Flags().IntVar(&usageLimit, "limit", 0,
		"Limit table rows (0 = unlimited)")
	usageCmd.Flags().StringVar(&usageDataDir, "dir", "",
		"Usage record directory (overrides config)")
	usageCmd.Flags().BoolVarP(&usageWatch, "watch", "w", false,
		"Re-render whenever the record directory changes")

	usageCmd.Flags().StringVar(&pricingSource, "pricing-source", "",
		"Pricing source (default, litellm)")
	usageCmd.Flags().BoolVar(&pricingOfflineMode, "pricing-offline", false,
		"Use offline pricing mode")
}

func runUsage(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dataDir := cfg.DataDir
	if usageDataDir != "" {
		dataDir = util.ExpandPath(usageDataDir)
	}

	source := cfg.Pricing.Source
	if pricingSource != "" {
		source = pricingSource
	}
	offline := cfg.Pricing.Offline || pricingOfflineMode

	if err := util.EnsureDir(cfg.CacheDir); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	catalog, err := pricing.CreateProvider(&pricing.SourceConfig{
		PricingSource:      source,
		PricingOfflineMode: offline,
	}, cfg.CacheDir)
	if err != nil {
		return err
	}

	sinceMs, untilMs, err := resolveWindow(usageSince, usageUntil)
	if err != nil {
		return err
	}

	records := store.New(dataDir)
	defer records.Close()

	renderer, err := formatter.NewUsageRenderer(usageOutput, os.Stdout, usageLimit)
	if err != nil {
		return err
	}

	engine := aggregator.New(records, catalog, nil)
	opts := aggregator.Options{
		SinceMs:   sinceMs,
		UntilMs:   untilMs,
		SessionID: usageSession,
	}

	result, err := engine.Aggregate(context.Background(), opts)
	if err != nil {
		return err
	}
	if err := renderer.Render(result); err != nil {
		return err
	}

	if usageWatch {
		return watchUsage(engine, renderer, opts, records)
	}
	return nil
}

// watchUsage re-runs the aggregation whenever the data directory changes,
// with a short debounce so bursts of writes render once.
func watchUsage(engine *aggregator.Engine, renderer formatter.UsageRenderer,
	opts aggregator.Options, records *store.Store) error {

	if err := util.EnsureDir(records.DataDir()); err != nil {
		return err
	}
	if err := records.Watch(); err != nil {
		return fmt.Errorf("failed to watch data directory: %w", err)
	}
	util.LogInfo("Watching for changes (Ctrl+C to stop)")

	for range records.Changes() {
		time.Sleep(200 * time.Millisecond)
		drain(records.Changes())

		result, err := engine.Aggregate(context.Background(), opts)
		if err != nil {
			return err
		}
		fmt.Println()
		if err := renderer.Render(result); err != nil {
			return err
		}
	}
	return nil
}

func drain(ch <-chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

// resolveWindow converts the lookback flags into absolute epoch-ms bounds.
// Zero means unbounded on that side.
func resolveWindow(since, until string) (int64, int64, error) {
	now := time.Now()
	var sinceMs, untilMs int64

	if since != "" {
		d, err := util.ParseLookback(since)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid --since: %w", err)
		}
		sinceMs = now.Add(-d).UnixMilli()
	}
	if until != "" {
		d, err := util.ParseLookback(until)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid --until: %w", err)
		}
		untilMs = now.Add(-d).UnixMilli()
	}
	if sinceMs != 0 && untilMs != 0 && untilMs < sinceMs {
		return 0, 0, fmt.Errorf("--until (%s ago) precedes --since (%s ago)", until, since)
	}
	return sinceMs, untilMs, nil
}
