package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ehr/woundcare/internal/domain/episode"
)

func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate one episode, or an array of episodes, from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			if path == "" {
				return fmt.Errorf("--file is required")
			}
			raw, err := readInput(cmd, path)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := context.Background()
			a, err := newApp(ctx, cfg, newLogger(cfg))
			if err != nil {
				return err
			}
			defer a.close()

			out, err := runEvaluate(ctx, a.episodes, raw)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringP("file", "f", "", "Path to an episode request JSON file, or - for stdin")
	return cmd
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return raw, nil
}

// runEvaluate evaluates a single request object, or every request of a JSON
// array as a batch.
func runEvaluate(ctx context.Context, svc *episode.Service, raw []byte) (interface{}, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("input is empty")
	}

	if trimmed[0] == '[' {
		var reqs []episode.Request
		if err := json.Unmarshal(trimmed, &reqs); err != nil {
			return nil, fmt.Errorf("decode batch: %w", err)
		}
		return svc.EvaluateBatch(ctx, reqs)
	}

	var req episode.Request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	return svc.Evaluate(ctx, req)
}
