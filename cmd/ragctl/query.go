package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/config"
	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/query"
	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/tui"
)

func newQueryCmd(a *app) *cobra.Command {
	d := config.Default()

	cmd := &cobra.Command{
		Use:   "query <text...>",
		Short: "Answer a question from the indexed files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return fmt.Errorf("question must not be empty")
			}
			engine, err := a.engine()
			if err != nil {
				return err
			}
			res, err := engine.Answer(cmd.Context(), question)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			sources := res.UniqueSources()
			fmt.Fprintf(out, "Sources (%d):\n", len(sources))
			for _, s := range sources {
				fmt.Fprintf(out, "  - %s\n", s)
			}
			fmt.Fprintf(out, "\nAnswer:\n%s\n", res.Answer)
			return nil
		},
	}

	f := cmd.Flags()
	f.Int("num-results", d.Query.NumResults, "number of entries to retrieve")
	f.Int("max-context", d.Query.MaxContextChars, "characters of each source passed to the model")
	f.String("data-dir", d.Query.DataDir, "snapshot directory")
	a.bind("query.num_results", f.Lookup("num-results"))
	a.bind("query.max_context_chars", f.Lookup("max-context"))
	a.bind("query.data_dir", f.Lookup("data-dir"))
	return cmd
}

func newChatCmd(a *app) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat over the indexed files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			qc := a.cfg.QueryConfig()
			snap, err := a.loadSnapshot(qc)
			if err != nil {
				return err
			}
			engine, err := a.engine(query.WithSnapshot(snap))
			if err != nil {
				return err
			}
			summary := fmt.Sprintf("%d entries loaded from %s", snap.Index.Len(), qc.DataDir)
			return tui.Run(engine, summary, timeout)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-question timeout (0 for none)")
	return cmd
}
