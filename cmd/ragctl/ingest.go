package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/config"
	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/ingest"
)

func newIngestCmd(a *app) *cobra.Command {
	d := config.Default()

	cmd := &cobra.Command{
		Use:   "ingest [root]",
		Short: "Chunk, embed and index every supported file under root",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				a.cfg.Ingest.Root = args[0]
			}

			embedder, err := a.embedder()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			p, err := ingest.New(a.cfg.IngestConfig(), embedder,
				ingest.WithLogger(a.logger.With().Str("component", "ingest").Logger()),
				ingest.WithMetrics(a.metrics),
				ingest.WithProgress(func(pr ingest.Progress) {
					fmt.Fprintf(cmd.ErrOrStderr(), "Progress: %d/%d files (%d processed, %d skipped)\n",
						pr.Done, pr.Total, pr.Processed, pr.Skipped)
				}),
			)
			if err != nil {
				return err
			}

			stats, err := p.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(out, stats.Summary())
			if stats.FailedChunks > 0 || stats.MalformedLines > 0 {
				fmt.Fprintf(out, "%d chunks failed, %d malformed lines ignored\n", stats.FailedChunks, stats.MalformedLines)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.Int("chunk-size", d.Ingest.ChunkSize, "target chunk size in characters")
	f.Int("max-chunk", d.Ingest.MaxChunkSize, "hard ceiling on chunk size in characters")
	f.String("strategy", d.Ingest.Strategy, "chunking strategy (fixed, word, semantic)")
	f.Int("concurrency", d.Ingest.Concurrency, "files embedded in parallel")
	f.String("output", "", "snapshot directory (default <root>/data)")
	f.StringSlice("fields", nil, "JSON fields to embed, in order (default: every field)")
	a.bind("ingest.chunk_size", f.Lookup("chunk-size"))
	a.bind("ingest.max_chunk_size", f.Lookup("max-chunk"))
	a.bind("ingest.strategy", f.Lookup("strategy"))
	a.bind("ingest.concurrency", f.Lookup("concurrency"))
	a.bind("ingest.output_dir", f.Lookup("output"))
	a.bind("ingest.fields", f.Lookup("fields"))
	return cmd
}
