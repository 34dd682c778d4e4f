package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"NeuralTrade/internal/di"
	"NeuralTrade/internal/domain/models"
	"NeuralTrade/internal/usecase"
	"NeuralTrade/pkg/logger"
)

var outcomeCmd = &cobra.Command{
	Use:   "outcome",
	Short: "Report whether a past prediction was correct",
	Long: `Enqueues a signal.outcome job on the Redis outcome queue. A running
serve process picks it up and feeds it into drift detection.

Examples:
  neuraltrade outcome --id 6f1c... --correct
  neuraltrade outcome --id 6f1c... --correct=false`,
	RunE: runOutcome,
}

var (
	outcomeID      string
	outcomeCorrect bool
)

func init() {
	rootCmd.AddCommand(outcomeCmd)

	outcomeCmd.Flags().StringVar(&outcomeID, "id", "", "prediction id (required)")
	outcomeCmd.Flags().BoolVar(&outcomeCorrect, "correct", false, "whether the prediction was correct")
	_ = outcomeCmd.MarkFlagRequired("id")
}

func runOutcome(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	l := logger.NewWriter(cmd.ErrOrStderr(), zerolog.WarnLevel)
	rc := di.ProvideRedisClient(cfg)
	if rc != nil {
		defer rc.Close()
	}
	q, err := di.ProvideOutcomePublisher(cfg, rc, l)
	if err != nil {
		return err
	}
	if err := q.Start(); err != nil {
		return fmt.Errorf("outcome queue: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()
	defer q.Stop(ctx)

	o := models.Outcome{PredictionID: outcomeID, WasCorrect: outcomeCorrect, RecordedAt: time.Now().UTC()}
	if err := q.PublishMessage(ctx, usecase.OutcomeMessageType, o); err != nil {
		return fmt.Errorf("enqueue outcome: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "outcome queued for %s (correct=%t)\n", outcomeID, outcomeCorrect)
	return nil
}
