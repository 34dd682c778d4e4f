package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"NeuralTrade/internal/di"
	"NeuralTrade/internal/domain/models"
	"NeuralTrade/internal/usecase"
	xhttp "NeuralTrade/pkg/http"
	"NeuralTrade/pkg/logger"
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Run one offline prediction from a candle window file",
	Long: `Reads a JSON document shaped like the POST /api/predict body, runs the
full pipeline without cache, storage or sinks, and prints the signal as JSON.

Examples:
  neuraltrade predict --input window.json
  neuraltrade predict --config configs/config.yaml --input window.json --pretty`,
	RunE: runPredict,
}

var (
	predictInput  string
	predictPretty bool
)

func init() {
	rootCmd.AddCommand(predictCmd)

	predictCmd.Flags().StringVar(&predictInput, "input", "", "candle window JSON file (required)")
	predictCmd.Flags().BoolVar(&predictPretty, "pretty", false, "indent the JSON output")
	_ = predictCmd.MarkFlagRequired("input")
}

func runPredict(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	b, err := os.ReadFile(predictInput)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	var req models.PredictRequest
	if err := json.Unmarshal(b, &req); err != nil {
		return fmt.Errorf("decode input: %w", err)
	}
	if verrs := xhttp.ValidateStruct(&req); verrs != nil {
		return fmt.Errorf("invalid input: %s: %s", verrs[0].Field, verrs[0].Message)
	}

	// stdout carries the result only
	l := logger.NewWriter(os.Stderr, zerolog.WarnLevel)
	predictor := di.NewOfflinePredictor(cfg, l)

	pred, err := predictor.Predict(cmd.Context(), usecase.PredictCommand{
		Meta:        req.Meta(),
		Candles:     req.ToCandles(),
		RequestTime: usecase.RequestTime(req.RequestTimestamp),
	})
	if err != nil {
		return fmt.Errorf("predict: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	if predictPretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(pred)
}
