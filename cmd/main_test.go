package main

import (
	"bytes"
	"log/slog"
	"os"
	"testing"

	"github.com/spf13/cobra"

	"github.com/cwbudde/portfolioopt/internal/logger"
)

func TestMain(m *testing.M) {
	slog.SetDefault(logger.Discard())
	os.Exit(m.Run())
}

// execute runs a standalone command with args and returns its output.
func execute(cmd *cobra.Command, args ...string) (string, error) {
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
