package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fairyhunter13/airdrop-analyzer/internal/app"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the model catalog and fallback roster",
	Args:  cobra.NoArgs,
	RunE:  runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

func runModels(cmd *cobra.Command, _ []string) error {
	return withRuntime(cmd.Context(), func(_ context.Context, rt *app.Runtime) error {
		view := rt.Client.Models()
		if flagJSON {
			return printJSON(os.Stdout, view)
		}
		rows := make([][]string, 0, len(view.Paid)+len(view.Free))
		for _, m := range view.Paid {
			rows = append(rows, []string{m.Name, m.ID, "paid"})
		}
		for _, m := range view.Free {
			rows = append(rows, []string{m.Name, m.ID, "free"})
		}
		fmt.Println()
		if err := printTable(os.Stdout, []string{"Name", "Model", "Tier"}, rows); err != nil {
			return err
		}
		fmt.Printf("\n  fallback: %s\n", strings.Join(view.Fallback, " -> "))
		fmt.Printf("  prefer free: %t\n", view.PreferFree)
		return nil
	})
}
