// Package analyze implements the one-shot file analysis subcommand.
package analyze

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/drguilhermecapel/medai/internal/classifier"
	"github.com/drguilhermecapel/medai/internal/conf"
	"github.com/drguilhermecapel/medai/internal/ecg"
	"github.com/drguilhermecapel/medai/internal/features"
	"github.com/drguilhermecapel/medai/internal/logging"
	"github.com/drguilhermecapel/medai/internal/quality"
	"github.com/drguilhermecapel/medai/internal/urgency"
)

// fileInput is the JSON document accepted by `medai analyze`.
type fileInput struct {
	SampleRate int `json:"sample_rate"`
	Leads      []struct {
		Name    string    `json:"name"`
		Samples []float64 `json:"samples"`
	} `json:"leads"`
	PatientRef string                  `json:"patient_ref,omitempty"`
	Vitals     *urgency.VitalSigns     `json:"vitals,omitempty"`
	Patient    *urgency.PatientContext `json:"patient,omitempty"`
}

// Command creates the analyze subcommand. It runs the full stage
// sequence synchronously against one waveform file and prints the
// report as JSON.
func Command(settings *conf.Settings) *cobra.Command {
	var skipGate bool

	cmd := &cobra.Command{
		Use:   "analyze [file]",
		Short: "Analyze a single ECG waveform file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFile(cmd.Context(), settings, args[0], skipGate)
		},
	}
	cmd.Flags().BoolVar(&skipGate, "skip-quality-gate", false, "report features even when quality is below the floor")
	return cmd
}

func runFile(ctx context.Context, settings *conf.Settings, path string, skipGate bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	var in fileInput
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	raw := &ecg.RawWaveform{
		SampleRate: in.SampleRate,
		CapturedAt: time.Now(),
		PatientRef: in.PatientRef,
	}
	for _, l := range in.Leads {
		raw.Leads = append(raw.Leads, ecg.Lead{Name: l.Name, Samples: l.Samples})
	}

	// Progress goes to the operator on stderr; the report stays on stdout.
	log := logging.HumanReadable()
	log.Info("analyzing waveform",
		slog.String("file", path),
		slog.Int("leads", len(in.Leads)),
		slog.Int("sample_rate", in.SampleRate))

	rec, err := ecg.Ingest(raw, &settings.Ingestion)
	if err != nil {
		return err
	}

	report, err := quality.NewAssessor(settings.Quality).Assess(rec)
	if err != nil {
		return err
	}

	out := map[string]any{
		"id":      rec.ID(),
		"quality": report,
	}
	if report.BelowFloor(settings.Quality.Floor) && !skipGate {
		log.Warn("signal quality below floor, skipping downstream stages",
			slog.Float64("score", report.OverallScore))
		out["verdict"] = "insufficient signal quality"
		return printJSON(out)
	}

	set, err := features.NewExtractor(settings.Features).Extract(ctx, rec, report)
	if err != nil {
		return err
	}
	out["features"] = set

	engine := classifier.NewEngine(classifier.NewRuleBased(), settings.Classifier)
	preds, err := engine.Run(ctx, set)
	if err != nil {
		return err
	}
	out["diagnoses"] = preds

	result := urgency.NewScorer(settings.Urgency).Score(preds, in.Vitals, in.Patient)
	out["urgency"] = result

	return printJSON(out)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
