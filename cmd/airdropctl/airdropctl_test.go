package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/ai/keypool"
)

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KiB", formatBytes(1536))
	assert.Equal(t, "2.0 MiB", formatBytes(2*1024*1024))
}

func TestKeyRow(t *testing.T) {
	assert.Equal(t, []string{"sk-or-v1...abcd", "available", "0", "never"}, keyRow(keypool.KeyStatus{Hint: "sk-or-v1...abcd"}))

	used := time.Date(2024, 3, 1, 12, 0, 0, 0, time.Local)
	row := keyRow(keypool.KeyStatus{Hint: "h", LimitReached: true, UsageCount: 7, LastUsed: &used})
	assert.Equal(t, []string{"h", "limited", "7", "2024-03-01 12:00"}, row)
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printTable(&buf, []string{"Key", "Status"}, [][]string{{"a", "available"}}))
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "  Key"))
	assert.Contains(t, lines[1], "available")
}

func TestHashTokenFromStdin(t *testing.T) {
	hashTokenCmd.SetIn(strings.NewReader("s3cret\n"))
	t.Cleanup(func() { hashTokenCmd.SetIn(nil) })

	require.NoError(t, runHashToken(hashTokenCmd, nil))
	err := runHashToken(hashTokenCmd, []string{""})
	assert.EqualError(t, err, "empty token")
}
