package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fairyhunter13/airdrop-analyzer/internal/app"
	"github.com/fairyhunter13/airdrop-analyzer/internal/domain"
)

var (
	flagSymbol  string
	flagWebsite string
	flagTwitter string
	flagNoCache bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze PROJECT",
	Short: "Run a project analysis through the orchestrator",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&flagSymbol, "symbol", "", "Token symbol")
	analyzeCmd.Flags().StringVar(&flagWebsite, "website", "", "Project website")
	analyzeCmd.Flags().StringVar(&flagTwitter, "twitter", "", "Twitter handle")
	analyzeCmd.Flags().BoolVar(&flagNoCache, "no-cache", false, "Bypass the result cache")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
		res, err := rt.Client.GenerateProjectAnalysis(ctx, domain.ProjectFields{
			ProjectName:   args[0],
			TokenSymbol:   flagSymbol,
			WebsiteURL:    flagWebsite,
			TwitterHandle: flagTwitter,
		}, !flagNoCache)
		if err != nil {
			return err
		}
		if err := printJSON(os.Stdout, res); err != nil {
			return err
		}
		if !res.Success {
			return fmt.Errorf("analysis failed (%s): %s", res.Kind, res.Error)
		}
		return nil
	})
}
