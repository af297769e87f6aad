package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/ai/keypool"
	"github.com/fairyhunter13/airdrop-analyzer/internal/app"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage the OpenRouter credential pool",
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List credentials by hint",
	Args:  cobra.NoArgs,
	RunE:  runKeysList,
}

var keysAddCmd = &cobra.Command{
	Use:   "add KEY",
	Short: "Add a credential",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysAdd,
}

var keysRemoveCmd = &cobra.Command{
	Use:   "remove KEY_OR_HINT",
	Short: "Remove a credential",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysRemove,
}

var keysLimitCmd = &cobra.Command{
	Use:   "limit KEY_OR_HINT",
	Short: "Mark a credential exhausted",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysLimit,
}

var keysResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear every exhausted flag",
	Args:  cobra.NoArgs,
	RunE:  runKeysReset,
}

func init() {
	keysCmd.AddCommand(keysListCmd, keysAddCmd, keysRemoveCmd, keysLimitCmd, keysResetCmd)
	rootCmd.AddCommand(keysCmd)
}

func runKeysList(cmd *cobra.Command, _ []string) error {
	return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
		keys := rt.Client.ListKeys(ctx)
		if flagJSON {
			return printJSON(os.Stdout, keys)
		}
		if len(keys) == 0 {
			fmt.Println("\n  No keys configured.")
			return nil
		}
		rows := make([][]string, 0, len(keys))
		for _, k := range keys {
			rows = append(rows, keyRow(k))
		}
		total, available := rt.Pool.Counts()
		fmt.Println()
		if err := printTable(os.Stdout, []string{"Key", "Status", "Uses", "Last used"}, rows); err != nil {
			return err
		}
		fmt.Printf("\n  %d of %d available\n", available, total)
		return nil
	})
}

func keyRow(k keypool.KeyStatus) []string {
	status := "available"
	if k.LimitReached {
		status = "limited"
	}
	last := "never"
	if k.LastUsed != nil {
		last = formatTime(*k.LastUsed)
	}
	return []string{k.Hint, status, strconv.Itoa(k.UsageCount), last}
}

func runKeysAdd(cmd *cobra.Command, args []string) error {
	return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
		added, err := rt.Client.AddKey(ctx, args[0])
		if err != nil {
			return err
		}
		if added {
			fmt.Printf("  added %s\n", keypool.Hint(args[0]))
		} else {
			fmt.Printf("  %s already present\n", keypool.Hint(args[0]))
		}
		return nil
	})
}

func runKeysRemove(cmd *cobra.Command, args []string) error {
	return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
		if err := rt.Client.RemoveKey(ctx, args[0]); err != nil {
			return err
		}
		fmt.Println("  removed")
		return nil
	})
}

func runKeysLimit(cmd *cobra.Command, args []string) error {
	return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
		if err := rt.Client.MarkKeyLimited(ctx, args[0]); err != nil {
			return err
		}
		fmt.Println("  marked limited")
		return nil
	})
}

func runKeysReset(cmd *cobra.Command, _ []string) error {
	return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
		if err := rt.Client.ResetKeys(ctx); err != nil {
			return err
		}
		total, _ := rt.Pool.Counts()
		fmt.Printf("  reset %d keys\n", total)
		return nil
	})
}
