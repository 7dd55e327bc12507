package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/embedding"
	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/probe"
)

func newEmbedCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Talk to the embedding service directly",
	}
	cmd.AddCommand(
		newEmbedTextCmd(a),
		newEmbedFileCmd(a),
		newEmbedStatusCmd(a),
		newEmbedProbeCmd(a),
	)
	return cmd
}

// retryNotice reports retries on stderr so interactive users see progress.
func retryNotice(w io.Writer) embedding.Option {
	return embedding.WithNotify(func(attempt int, err error, delay time.Duration) {
		fmt.Fprintf(w, "Attempt %d failed: %v (retrying in %s)\n", attempt, err, delay)
	})
}

func printVector(w io.Writer, v []float32) {
	preview := v
	if len(preview) > 5 {
		preview = preview[:5]
	}
	fmt.Fprintf(w, "Dimensions: %d\nFirst values: %v\n", len(v), preview)
}

func newEmbedTextCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "text <text...>",
		Short: "Embed a piece of text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.embedder(retryNotice(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			v, err := client.Embed(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			printVector(cmd.OutOrStdout(), v)
			return nil
		},
	}
}

func newEmbedFileCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "file <path>",
		Short: "Embed a file, in fixed-size pieces when it is long",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readFile(args[0])
			if err != nil {
				return err
			}
			client, err := a.embedder(retryNotice(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			vectors, err := client.EmbedChunked(cmd.Context(), text, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Embedded %s as %d piece(s)\n", args[0], len(vectors))
			for i, v := range vectors {
				fmt.Fprintf(out, "[%d] ", i)
				printVector(out, v)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 2000, "characters per piece (0 embeds the whole file)")
	return cmd
}

func newEmbedStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check that the embedding service is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.embedder()
			if err != nil {
				return err
			}
			version, err := client.CheckStatus(cmd.Context())
			if err != nil {
				return fmt.Errorf("embedding service at %s is not available: %w", a.cfg.Embedding.Endpoint, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Embedding service is up (version %s, model %s)\n", version, client.Model())
			return nil
		},
	}
}

func newEmbedProbeCmd(a *app) *cobra.Command {
	var (
		list             string
		start, end, step int
		logDir           string
		pause            time.Duration
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Find the largest text the embedding service accepts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sizes, err := probe.Sizes(list, start, end, step)
			if err != nil {
				return err
			}
			client, err := a.embedder()
			if err != nil {
				return err
			}
			p := probe.New(client,
				probe.WithLogger(a.logger.With().Str("component", "probe").Logger()),
				probe.WithPause(pause),
			)
			report, err := p.Run(cmd.Context(), sizes, logDir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Maximum successful text size: %d characters\n", report.MaxSuccess)
			fmt.Fprintf(out, "Log written to %s\n", report.LogFile)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&list, "sizes", "", "comma separated sizes (overrides --start/--end/--step)")
	f.IntVar(&start, "start", probe.DefaultStart, "first size")
	f.IntVar(&end, "end", probe.DefaultEnd, "last size")
	f.IntVar(&step, "step", probe.DefaultStep, "size increment")
	f.StringVar(&logDir, "log-dir", "embedding_tests", "directory for the probe log")
	f.DurationVar(&pause, "pause", 2*time.Second, "delay between sizes")
	return cmd
}
