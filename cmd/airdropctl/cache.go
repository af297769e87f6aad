package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fairyhunter13/airdrop-analyzer/internal/app"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the analysis cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	Args:  cobra.NoArgs,
	RunE:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear-expired",
	Short: "Remove expired entries",
	Args:  cobra.NoArgs,
	RunE:  runCacheClear,
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheStats(cmd *cobra.Command, _ []string) error {
	return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
		st, err := rt.Client.CacheStats(ctx)
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(os.Stdout, st)
		}
		fmt.Printf("\n  %d cached (%d active, %d expired), %s\n\n",
			st.Total, st.Active, st.Expired, formatBytes(st.TotalSizeBytes))
		if len(st.Entries) == 0 {
			return nil
		}
		rows := make([][]string, 0, len(st.Entries))
		for _, e := range st.Entries {
			state := "active"
			switch {
			case e.Corrupt:
				state = "corrupt"
			case e.Expired:
				state = "expired"
			}
			rows = append(rows, []string{e.ProjectName, e.TokenSymbol, formatTime(e.CachedAt), formatTime(e.ExpiresAt), state})
		}
		return printTable(os.Stdout, []string{"Project", "Symbol", "Cached", "Expires", "State"}, rows)
	})
}

func runCacheClear(cmd *cobra.Command, _ []string) error {
	return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
		n, err := rt.Client.ClearExpiredCache(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("  removed %d expired entries\n", n)
		return nil
	})
}
