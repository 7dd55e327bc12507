package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/chunker"
	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/config"
)

func newChunkCmd(a *app) *cobra.Command {
	d := config.Default()
	var (
		strategy string
		size     int
		fields   []string
	)

	cmd := &cobra.Command{
		Use:   "chunk <file>",
		Short: "Print the chunks a file is split into",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := chunker.ParseStrategy(strategy)
			if err != nil {
				return err
			}
			text, err := readFile(args[0])
			if err != nil {
				return err
			}
			c := chunker.NewChunker().WithStrategy(s).WithChunkSize(size).WithMaxChunkSize(size)

			var chunks []chunker.Chunk
			if ext := strings.ToLower(filepath.Ext(args[0])); ext == ".json" {
				var record map[string]any
				if err := json.Unmarshal([]byte(text), &record); err != nil {
					return fmt.Errorf("failed to parse %s as a JSON object: %w", args[0], err)
				}
				chunks = c.ChunkRecord(record, fields)
			} else {
				chunks = c.Chunk(text)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d chunks (%s, size %d)\n", len(chunks), s, c.Limit())
			for i, ch := range chunks {
				label := ""
				if ch.Label != "" {
					label = " " + ch.Label
				}
				fmt.Fprintf(out, "--- chunk %d%s [%d:%d]\n%s\n", i, label, ch.Start, ch.End, ch.Text)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&strategy, "strategy", d.Ingest.Strategy, "chunking strategy (fixed, word, semantic)")
	f.IntVar(&size, "size", d.Ingest.ChunkSize, "chunk size in characters")
	f.StringSliceVar(&fields, "fields", nil, "JSON fields to chunk (default: every field)")
	return cmd
}
