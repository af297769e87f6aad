package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/httpserver"
)

var hashTokenCmd = &cobra.Command{
	Use:   "hash-token [TOKEN]",
	Short: "Print an argon2id hash for ADMIN_TOKEN_HASH",
	Long:  "Hashes TOKEN, or the first line of stdin when TOKEN is omitted.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHashToken,
}

func init() {
	rootCmd.AddCommand(hashTokenCmd)
}

func runHashToken(cmd *cobra.Command, args []string) error {
	var token string
	if len(args) == 1 {
		token = args[0]
	} else {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read token: %w", err)
		}
		token = strings.TrimSpace(line)
	}
	if token == "" {
		return errors.New("empty token")
	}
	hash, err := httpserver.HashToken(token, httpserver.DefaultArgon2Params)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, hash)
	return nil
}
