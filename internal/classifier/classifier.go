// Package classifier defines the scoring-function boundary of the
// pipeline. The actual model is injected and swappable; this package owns
// only pre/post-processing of its inputs and outputs.
package classifier

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/drguilhermecapel/medai/internal/conf"
	"github.com/drguilhermecapel/medai/internal/errors"
	"github.com/drguilhermecapel/medai/internal/features"
	"github.com/drguilhermecapel/medai/internal/logging"
)

// LabelIndeterminate is returned when the features carry nothing to
// classify.
const LabelIndeterminate = "Indeterminate"

// Prediction is one candidate diagnosis with its confidence.
// Confidences are independent per label and need not sum to 1.
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Classifier scores a feature set into ranked candidate diagnoses. The
// call may be I/O bound (e.g. an external inference process); callers
// must pass a context and are expected to bound it with a timeout.
type Classifier interface {
	// Name identifies the classifier implementation
	Name() string

	// Classify returns candidate diagnoses with per-label confidence
	Classify(ctx context.Context, set *features.Set) ([]Prediction, error)
}

// Sentinel errors used by the pipeline to map failures to analysis
// failure reasons.
var (
	ErrClassifierTimeout = errors.NewStd("classifier call timed out")
)

// Engine wraps an injected classifier with the pipeline's pre/post
// processing: degenerate-input clipping, timeout enforcement, label
// deduplication, ranking and trimming.
type Engine struct {
	classifier Classifier
	settings   conf.ClassifierSettings
	logger     *slog.Logger
}

// NewEngine creates a classifier engine around the given implementation.
func NewEngine(clf Classifier, settings conf.ClassifierSettings) *Engine {
	return &Engine{
		classifier: clf,
		settings:   settings,
		logger:     logging.ForService("classifier"),
	}
}

// Run classifies the feature set. Degenerate input (no usable features)
// short-circuits to a single Indeterminate prediction without invoking
// the model; classifying nothing tells the reviewer more than a
// confident-looking artifact would.
func (e *Engine) Run(ctx context.Context, set *features.Set) ([]Prediction, error) {
	if set == nil {
		return []Prediction{{Label: LabelIndeterminate, Confidence: 0}}, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, e.settings.Timeout)
	defer cancel()

	start := time.Now()
	preds, err := e.classify(callCtx, set)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		// fallthrough to post-processing
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrClassifierTimeout):
		return nil, errors.New(ErrClassifierTimeout).
			Component("classifier").
			Category(errors.CategoryTimeout).
			Timing("classify", elapsed).
			Context("classifier", e.classifier.Name()).
			Build()
	case errors.Is(err, context.Canceled):
		return nil, err
	default:
		return nil, errors.New(err).
			Component("classifier").
			Category(errors.CategoryClassification).
			Timing("classify", elapsed).
			Context("classifier", e.classifier.Name()).
			Build()
	}

	preds = e.postProcess(preds)

	e.logger.Debug("classification complete",
		"classifier", e.classifier.Name(),
		"predictions", len(preds),
		"duration_ms", elapsed.Milliseconds(),
	)

	return preds, nil
}

// classify invokes the model on its own goroutine so a stuck
// implementation cannot outlive the timeout.
func (e *Engine) classify(ctx context.Context, set *features.Set) ([]Prediction, error) {
	type result struct {
		preds []Prediction
		err   error
	}
	resCh := make(chan result, 1)

	go func() {
		preds, err := e.classifier.Classify(ctx, set)
		resCh <- result{preds: preds, err: err}
	}()

	select {
	case res := <-resCh:
		return res.preds, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// postProcess deduplicates near-identical labels keeping the highest
// confidence, drops low-confidence noise, sorts descending and trims.
func (e *Engine) postProcess(preds []Prediction) []Prediction {
	merged := make(map[string]Prediction, len(preds))
	for _, p := range preds {
		if p.Confidence < e.settings.MinConfidence {
			continue
		}
		key := normalizeLabel(p.Label)
		if existing, ok := merged[key]; !ok || p.Confidence > existing.Confidence {
			merged[key] = p
		}
	}

	out := make([]Prediction, 0, len(merged))
	for _, p := range merged {
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Label < out[j].Label
	})

	if len(out) > e.settings.TopN {
		out = out[:e.settings.TopN]
	}

	if len(out) == 0 {
		return []Prediction{{Label: LabelIndeterminate, Confidence: 0}}
	}
	return out
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.Join(strings.Fields(label), " "))
}
