package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/chat"
	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/config"
	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/embedding"
	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/logging"
	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/metrics"
	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/query"
)

// app carries what every subcommand needs once the root has loaded the
// configuration.
type app struct {
	v          *viper.Viper
	configPath string

	cfg     *config.Config
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New(), logger: zerolog.Nop()}
	d := config.Default()

	root := &cobra.Command{
		Use:           "ragctl",
		Short:         "Local retrieval-augmented generation over md/json/jsonl files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to a YAML config file")
	flags.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	flags.String("log-format", d.Log.Format, "log format (console, json)")
	a.bind("log.level", flags.Lookup("log-level"))
	a.bind("log.format", flags.Lookup("log-format"))

	root.AddCommand(
		newIngestCmd(a),
		newQueryCmd(a),
		newChatCmd(a),
		newServeCmd(a),
		newEmbedCmd(a),
		newChunkCmd(a),
		newConfigCmd(a),
	)
	return root
}

// bind ties a flag to a config key so an explicitly set flag overrides the
// file and environment.
func (a *app) bind(key string, f *pflag.Flag) {
	if err := a.v.BindPFlag(key, f); err != nil {
		panic(fmt.Sprintf("bind %s: %v", key, err))
	}
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.LoadWithViper(a.v, a.configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Writer: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	a.metrics = metrics.New()
	return nil
}

func (a *app) embedder(opts ...embedding.Option) (*embedding.Client, error) {
	base := []embedding.Option{
		embedding.WithLogger(a.logger.With().Str("component", "embedding").Logger()),
		embedding.WithMetrics(a.metrics),
	}
	return embedding.NewFromConfig(a.cfg.Embedding, append(base, opts...)...)
}

func (a *app) engine(opts ...query.Option) (*query.Engine, error) {
	embedder, err := a.embedder()
	if err != nil {
		return nil, err
	}
	completer, err := chat.NewFromConfig(a.cfg.Chat)
	if err != nil {
		return nil, err
	}
	base := []query.Option{
		query.WithLogger(a.logger.With().Str("component", "query").Logger()),
		query.WithMetrics(a.metrics),
	}
	return query.NewEngine(a.cfg.QueryConfig(), embedder, completer, append(base, opts...)...), nil
}

func readFile(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(raw), nil
}
