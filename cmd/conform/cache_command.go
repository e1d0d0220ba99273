package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"conform/internal/config"
	"conform/internal/probecache"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the probe result cache",
	}
	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCachePruneCommand(ctx))
	cacheCmd.AddCommand(newCacheForgetCommand(ctx))
	return cacheCmd
}

func openCache(cfg *config.Config) (*probecache.Store, error) {
	if strings.TrimSpace(cfg.ProbeCache.Path) == "" {
		return nil, fmt.Errorf("probe_cache.path is not configured")
	}
	return probecache.Open(cfg.ProbeCache.Path)
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache size and location",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := openCache(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			count, err := store.Count(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Enabled:  %s\n", yesNo(cfg.ProbeCache.Enabled))
			fmt.Fprintf(out, "Database: %s\n", store.Path())
			fmt.Fprintf(out, "Entries:  %d\n", count)
			return nil
		},
		Args: cobra.NoArgs,
	}
}

func newCachePruneCommand(ctx *commandContext) *cobra.Command {
	var olderThanDays int

	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove cache entries older than a cutoff",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if olderThanDays < 0 {
				return fmt.Errorf("--older-than must not be negative")
			}
			store, err := openCache(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			cutoff := time.Now().AddDate(0, 0, -olderThanDays)
			pruned, err := store.PruneOlderThan(cmd.Context(), cutoff)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d entries older than %d days\n", pruned, olderThanDays)
			return nil
		},
		Args: cobra.NoArgs,
	}

	pruneCmd.Flags().IntVar(&olderThanDays, "older-than", 30, "Age cutoff in days")
	return pruneCmd
}

func newCacheForgetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "forget FILE",
		Short: "Drop cached results for one file",
		Long: "Removes every cached decision for the file so the next pass " +
			"probes it again, e.g. after editing it in place.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			store, err := openCache(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Forget(cmd.Context(), path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Forgot cached results for %s\n", path)
			return nil
		},
		Args: cobra.ExactArgs(1),
	}
}
