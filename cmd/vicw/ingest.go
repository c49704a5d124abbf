package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/elevend0g/vicw/internal/coldpath"
	"github.com/elevend0g/vicw/internal/model"
)

// ingestCmd reads text from a file (or stdin) and runs it through the cold-path pipeline
// synchronously, for offline backfill of chunk/vector/graph state outside a live chat turn.
func ingestCmd() *cobra.Command {
	var file string
	var chunkID string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "backfill chunk/vector/graph state from a text file",
		RunE: func(cmd *cobra.Command, args []string) error {
			loadEnv(cmd)
			logger := newLogger()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			deps := buildDeps(cfg, logger)

			text, err := readIngestInput(file)
			if err != nil {
				return err
			}
			if chunkID == "" {
				chunkID = fmt.Sprintf("ingest_%d", time.Now().UnixNano())
			}

			job := model.OffloadJob{
				ChunkID:      chunkID,
				Messages:     []model.Message{{Role: model.RoleUser, Content: text}},
				CreatedAt:    time.Now(),
				SkipShedPath: true,
			}

			cfg2 := deps.Config
			manager := coldpath.New(deps.Chunks, deps.Vectors, deps.Graph, deps.Embedder, deps.Extractor,
				cfg2.SummaryLeadSentences, cfg2.SummaryTailSentences, cfg2.SummaryMaxTokens, logger)
			result := manager.ProcessJob(context.Background(), job)
			if !result.Success {
				for step, stepErr := range result.StepErrors {
					logger.Warn().Str("step", step).Err(stepErr).Msg("ingest step failed")
				}
			}
			logger.Info().Str("chunk_id", result.ChunkID).Int("states_found", result.StatesFound).Msg("ingest complete")
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "path to a text file to ingest (defaults to stdin)")
	cmd.Flags().StringVar(&chunkID, "chunk-id", "", "chunk id to assign (defaults to a generated id)")
	return cmd
}

func readIngestInput(file string) (string, error) {
	var r io.Reader = os.Stdin
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return "", err
		}
		defer f.Close()
		r = f
	}
	buf := bufio.NewReader(r)
	data, err := io.ReadAll(buf)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
