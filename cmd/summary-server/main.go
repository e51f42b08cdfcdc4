package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/clinsum/internal/config"
	"github.com/ehr/clinsum/internal/domain/episode"
	"github.com/ehr/clinsum/internal/domain/facts"
	"github.com/ehr/clinsum/internal/domain/record"
	"github.com/ehr/clinsum/internal/domain/summary"
	"github.com/ehr/clinsum/internal/platform/db"
	"github.com/ehr/clinsum/internal/platform/generative"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "summary-server",
		Short:        "Episode clinical summary service",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(summarizeCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the summary API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServer(cfg, newLogger(cfg, os.Stdout))
		},
	}
}

func summarizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Summarize the latest episode of one patient",
		RunE: func(cmd *cobra.Command, args []string) error {
			patientID, _ := cmd.Flags().GetInt64("patient")
			noLLM, _ := cmd.Flags().GetBool("no-llm")
			model, _ := cmd.Flags().GetString("model")
			asJSON, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg, os.Stderr)

			ctx := context.Background()
			a, err := buildApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.svc.Summarize(ctx, summary.Request{
				PatientID:     patientID,
				UseGenerative: !noLLM,
				ModelName:     model,
			})
			if err != nil {
				return err
			}
			return printSummary(cmd.OutOrStdout(), cmd.ErrOrStderr(), resp, asJSON)
		},
	}
	cmd.Flags().Int64("patient", 0, "Patient ID to summarize")
	cmd.Flags().Bool("no-llm", false, "Skip the generative model and print the deterministic summary")
	cmd.Flags().String("model", "", "Model name (defaults to LLM_MODEL)")
	cmd.Flags().Bool("json", false, "Print the full response as JSON")
	_ = cmd.MarkFlagRequired("patient")
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load clinical tables into Postgres, replacing the stored data set",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			workbook, _ := cmd.Flags().GetString("workbook")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required for import")
			}
			logger := newLogger(cfg, os.Stderr)

			src, err := importSource(dir, workbook, logger)
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := db.NewMigrator(pool, db.EmbeddedMigrations()).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			if applied > 0 {
				logger.Info().Int("applied", applied).Msg("applied pending migrations")
			}

			recs, err := src.LoadAll(ctx)
			if err != nil {
				return err
			}
			// Reject data sets the store would refuse before replacing anything.
			if _, err := record.NewStore(recs); err != nil {
				return err
			}

			res, err := record.NewRepoPG(pool).Import(ctx, recs)
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}
			printImport(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().String("dir", "", "Directory holding the six category CSV files")
	cmd.Flags().String("workbook", "", "XLSX workbook with one sheet per category")
	cmd.MarkFlagsMutuallyExclusive("dir", "workbook")
	cmd.MarkFlagsOneRequired("dir", "workbook")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, pool *pgxpool.Pool) error {
				count, err := db.NewMigrator(pool, db.EmbeddedMigrations()).Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, pool *pgxpool.Pool) error {
				statuses, err := db.NewMigrator(pool, db.EmbeddedMigrations()).Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printMigrationStatus(cmd.OutOrStdout(), statuses)
				return nil
			})
		},
	}
	cmd.AddCommand(statusCmd)

	return cmd
}

func withPool(fn func(ctx context.Context, pool *pgxpool.Pool) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, pool)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	var logger zerolog.Logger
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(out).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

// app holds the loaded record store and the pipeline built on it.
type app struct {
	store *record.Store
	svc   *summary.Service
	// pool is nil unless records come from Postgres.
	pool *pgxpool.Pool
}

func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

// buildApp loads the record store from the configured source and wires the
// summary pipeline. Records are loaded once; a reload means a restart.
func buildApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{}

	var src record.Source
	switch cfg.ResolvedRecordSource() {
	case config.SourceXLSX:
		src = record.NewWorkbookSource(cfg.DataWorkbook, logger)
	case config.SourcePostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		a.pool = pool
		src = record.NewRepoPG(pool)
	default:
		src = record.NewDirSource(cfg.DataDir, logger)
	}

	store, err := record.Open(ctx, src)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = store

	ranges := facts.DefaultRanges()
	if cfg.VitalRangesFile != "" {
		ranges, err = facts.LoadRanges(cfg.VitalRangesFile)
		if err != nil {
			a.Close()
			return nil, err
		}
	}
	extractor := facts.NewExtractor(facts.Options{
		NoteHighlights: cfg.NoteHighlights,
		SnippetChars:   cfg.NoteSnippetChars,
		Ranges:         ranges,
	})

	gen, err := generative.New(generative.Config{
		Provider:        cfg.LLMProvider,
		Model:           cfg.LLMModel,
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		OpenAIBaseURL:   cfg.OpenAIBaseURL,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		OllamaHost:      cfg.OllamaHost,
	}, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	temperature := cfg.LLMTemperature
	a.svc = summary.NewService(episode.NewResolver(store), extractor, gen, summary.Config{
		DefaultModel: cfg.LLMModel,
		Temperature:  &temperature,
		Timeout:      cfg.LLMTimeout,
	}, logger)

	logger.Info().
		Str("source", cfg.ResolvedRecordSource()).
		Int("patients", len(store.PatientIDs())).
		Int("records", store.Len()).
		Str("llm_provider", cfg.LLMProvider).
		Msg("record store loaded")
	return a, nil
}

func importSource(dir, workbook string, logger zerolog.Logger) (record.Source, error) {
	switch {
	case dir != "" && workbook != "":
		return nil, errors.New("use either --dir or --workbook, not both")
	case dir != "":
		return record.NewDirSource(dir, logger), nil
	case workbook != "":
		return record.NewWorkbookSource(workbook, logger), nil
	}
	return nil, errors.New("one of --dir or --workbook is required")
}

func printSummary(out, errOut io.Writer, resp *summary.Response, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	fmt.Fprintln(out, resp.Summary)
	fmt.Fprintf(errOut, "patient_id=%d episode_id=%d generative_status=%s citations=%d\n",
		resp.PatientID, resp.Debug.EpisodeID, resp.Debug.GenerativeStatus, len(resp.Debug.Citations))
	if resp.Debug.Error != "" {
		fmt.Fprintf(errOut, "generative_error=%s\n", resp.Debug.Error)
	}
	return nil
}

func printImport(out io.Writer, res record.ImportResult) {
	fmt.Fprintf(out, "Import batch %s\n", res.BatchID)
	total := 0
	for _, cat := range record.Categories {
		n := res.Counts[cat]
		total += n
		fmt.Fprintf(out, "  %-12s %d\n", cat, n)
	}
	fmt.Fprintf(out, "Imported %d record(s).\n", total)
}

func printMigrationStatus(out io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(out, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format(time.RFC3339)
			}
		}
		fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}
