package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"loadcheck/internal/config"
	"loadcheck/internal/dataset"
	"loadcheck/internal/runner"
	"loadcheck/internal/scenario"
	"loadcheck/internal/sqlclient"
	"loadcheck/internal/streamload"
)

func newRunCmd() *cobra.Command {
	var (
		endpoint     string
		sqlDSN       string
		datasetURL   string
		cachePath    string
		digest       string
		digestAlgo   string
		scenarioPath string
		permissive   bool
		logLevel     string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one ingestion test run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(".env"); err != nil {
				return err
			}

			// Precedence: flag > env > default. Flags write into the env
			// before loading so config validation sees the final values.
			overrideEnv(cmd.Flags(), map[string]string{
				"endpoint":    "LOADCHECK_ENDPOINT",
				"sql-dsn":     "LOADCHECK_SQL_DSN",
				"dataset-url": "LOADCHECK_DATASET_URL",
				"cache-path":  "LOADCHECK_CACHE_PATH",
				"digest":      "LOADCHECK_DIGEST",
				"digest-algo": "LOADCHECK_DIGEST_ALGO",
				"scenario":    "LOADCHECK_SCENARIO",
				"log-level":   "LOADCHECK_LOG_LEVEL",
			})
			if cmd.Flags().Changed("permissive-upload") {
				_ = os.Setenv("LOADCHECK_PERMISSIVE_UPLOAD", boolString(permissive))
			}

			cfg, err := config.LoadFromEnv()
			if err != nil {
				return err
			}

			logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
			slog.SetDefault(logger)
			for _, w := range cfg.Warnings {
				logger.Warn(w)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer cancel()

			return runOnce(ctx, cfg, logger)
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Streaming-load host base URL")
	cmd.Flags().StringVar(&sqlDSN, "sql-dsn", "", "MySQL-protocol DSN for DDL and verification queries")
	cmd.Flags().StringVar(&datasetURL, "dataset-url", "", "Reference dataset URL")
	cmd.Flags().StringVar(&cachePath, "cache-path", "", "Local dataset cache path")
	cmd.Flags().StringVar(&digest, "digest", "", "Expected dataset digest (hex)")
	cmd.Flags().StringVar(&digestAlgo, "digest-algo", "", "Digest algorithm (md5 or sha256)")
	cmd.Flags().StringVar(&scenarioPath, "scenario", "", "YAML scenario file (defaults to the built-in flight-data scenario)")
	cmd.Flags().BoolVar(&permissive, "permissive-upload", false, "Do not fail on non-success upload response status")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	return cmd
}

// overrideEnv copies changed flag values into their environment variables.
func overrideEnv(flags *pflag.FlagSet, mapping map[string]string) {
	for flag, env := range mapping {
		if flags.Changed(flag) {
			v, _ := flags.GetString(flag)
			_ = os.Setenv(env, v)
		}
	}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func runOnce(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	sc := scenario.Default()
	if cfg.ScenarioPath != "" {
		loaded, err := scenario.Load(cfg.ScenarioPath)
		if err != nil {
			return err
		}
		sc = loaded
	}

	ds := sc.ApplyDataset(cfg.DatasetSpec())
	// A scenario may replace the digest; re-validate the overlaid values.
	check := *cfg
	check.Digest = ds.Digest
	check.DigestAlgo = ds.Algo
	if err := check.Validate(); err != nil {
		return err
	}

	sqlc, err := sqlclient.Open(ctx, cfg.SQLDSN, cfg.QueryTimeout)
	if err != nil {
		return err
	}
	defer sqlc.Close() //nolint:errcheck

	r := &runner.Runner{
		SQL:       sqlc,
		Fetcher:   dataset.NewFetcher(cfg.FetchTimeout, cfg.FetchRetries, logger),
		Uploader:  streamload.NewClient(cfg.UploadTimeout, cfg.PermissiveUpload, logger),
		Integrity: dataset.VerifyIntegrity,
		Logger:    logger,
	}

	return r.Run(ctx, runner.Params{
		Table:     sc.TableSpec(),
		Dataset:   ds,
		Endpoint:  cfg.Endpoint,
		InsertSQL: sc.Ingest.InsertSQL,
		CSVHeader: sc.Ingest.CSVHeader,
		Queries:   sc.Queries(),
	})
}
