package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/moham7dreza/structured-docs-engine/pkg/database"
	"github.com/moham7dreza/structured-docs-engine/pkg/models"
)

var (
	rollbackSteps   int
	sweepRuleIDs    []int64
	sweepDocIDs     []int64
	scoreUserID     int64
	leaderboardShow int
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply, roll back or inspect database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, err := database.OpenMigrationDB(cfg.Database.URL())
		if err != nil {
			return err
		}
		return database.RunMigrations(db, logger)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, err := database.OpenMigrationDB(cfg.Database.URL())
		if err != nil {
			return err
		}
		return database.RollbackMigrations(db, rollbackSteps, logger)
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the applied migration version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, err := database.OpenMigrationDB(cfg.Database.URL())
		if err != nil {
			return err
		}
		version, dirty, err := database.MigrationVersion(db, logger)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{"version": version, "dirty": dirty})
	},
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <document-id>",
	Short: "Evaluate the completeness of one document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		documentID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || documentID < 1 {
			return fmt.Errorf("invalid document id %q", args[0])
		}
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			result, err := a.completion.EvaluateCompletion(ctx, documentID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		})
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Apply outdated-content penalties",
	Long: `Evaluates active rules against non-archived documents and records a penalty
for every triggered rule that has no unresolved penalty yet. Without flags every
active rule is checked against every document.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			result, err := a.penalties.ApplyPenaltySweep(ctx, models.SweepScope{
				RuleIDs:     sweepRuleIDs,
				DocumentIDs: sweepDocIDs,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		})
	},
}

var scoresCmd = &cobra.Command{
	Use:   "scores",
	Short: "Recompute user scores",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			if scoreUserID > 0 {
				score, err := a.scores.RecomputeScore(ctx, scoreUserID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), score)
			}

			result, err := a.scores.RecomputeAll(ctx)
			if err != nil {
				return err
			}
			if len(result.FailedUserIDs) > 0 {
				logger.Warn("Some users were not recomputed", zap.Int64s("user_ids", result.FailedUserIDs))
			}
			return printJSON(cmd.OutOrStdout(), result)
		})
	},
}

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Recompute and print the leaderboard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			if _, err := a.leaderboard.RecomputeLeaderboard(ctx); err != nil {
				return err
			}
			snapshot, err := a.leaderboard.GetLeaderboard(ctx, leaderboardShow)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), snapshot)
		})
	},
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage outdated-content rules",
}

var rulesImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Upsert rules from a YAML catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open catalog: %w", err)
		}
		defer f.Close()

		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			result, err := a.rules.ImportCatalog(ctx, f)
			if err != nil {
				return err
			}
			logger.Info("Rule catalog imported",
				zap.String("file", args[0]),
				zap.Int("inserted", result.Inserted),
				zap.Int("updated", result.Updated))
			return printJSON(cmd.OutOrStdout(), result)
		})
	},
}

func init() {
	migrateDownCmd.Flags().IntVar(&rollbackSteps, "steps", 1, "Number of migrations to roll back")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)

	sweepCmd.Flags().Int64SliceVar(&sweepRuleIDs, "rule", nil, "Limit the sweep to these rule ids")
	sweepCmd.Flags().Int64SliceVar(&sweepDocIDs, "document", nil, "Limit the sweep to these document ids")

	scoresCmd.Flags().Int64Var(&scoreUserID, "user", 0, "Recompute only this user")

	leaderboardCmd.Flags().IntVar(&leaderboardShow, "limit", 0, "Number of entries to print (0 uses the configured default)")

	rulesCmd.AddCommand(rulesImportCmd)
}

// runWithApp builds the app and runs fn with a pooled connection bound to the
// command context.
func runWithApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.withScope(ctx, func(ctx context.Context) error {
		return fn(ctx, a)
	})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
