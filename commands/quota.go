package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/keisuke-w/tokenwatch/internal/auth"
	"github.com/keisuke-w/tokenwatch/internal/presentation/formatter"
	"github.com/keisuke-w/tokenwatch/internal/quota"
	"github.com/keisuke-w/tokenwatch/internal/util"
)

var (
	quotaForce       bool
	quotaConcurrency int
	quotaJSON        bool
	quotaResetAuth   bool

	quotaCmd = &cobra.Command{
		Use:   "quota",
		Short: "Show remaining per-model quota across configured accounts",
		RunE:  runQuota,
	}
)

func init() {
	quotaCmd.Flags().BoolVarP(&quotaForce, "force", "f", false,
		"Refresh tokens even when cached ones are still valid")
	quotaCmd.Flags().IntVar(&quotaConcurrency, "concurrency", 0,
		"Simultaneous account requests (0 = config value)")
	quotaCmd.Flags().BoolVar(&quotaJSON, "json", false,
		"Emit the report as json")
	quotaCmd.Flags().BoolVar(&quotaResetAuth, "reset-auth", false,
		"Clear the token cache before running")
}

func runQuota(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	creds, err := cfg.Credentials()
	if err != nil {
		return err
	}
	if len(creds) == 0 {
		return fmt.Errorf("no accounts configured; add them under accounts: in the config file")
	}

	if err := util.EnsureDir(filepath.Dir(cfg.AuthFile)); err != nil {
		return fmt.Errorf("failed to create auth directory: %w", err)
	}
	fileStore, err := auth.NewFileStore(cfg.AuthFile)
	if err != nil {
		return err
	}
	cache := auth.NewCache(fileStore)

	if quotaResetAuth {
		if err := cache.Clear(); err != nil {
			return fmt.Errorf("failed to clear token cache: %w", err)
		}
		util.LogInfo("Token cache cleared")
	}

	concurrency := cfg.Quota.Concurrency
	if quotaConcurrency > 0 {
		concurrency = quotaConcurrency
	}

	orchestrator := quota.New(cache,
		auth.NewRefresher(cfg.Quota.TokenURL),
		quota.NewClient(cfg.Quota.QuotaURL))

	report, err := orchestrator.FetchQuotas(context.Background(), quota.Options{
		Accounts:       creds,
		RequiredModels: cfg.Quota.RequiredModels,
		Force:          quotaForce,
		Concurrency:    concurrency,
	})
	if err != nil {
		// Render the per-account failures before surfacing the error.
		if renderErr := formatter.NewQuotaRenderer(os.Stdout, quotaJSON).Render(report); renderErr != nil {
			return renderErr
		}
		return err
	}

	return formatter.NewQuotaRenderer(os.Stdout, quotaJSON).Render(report)
}
