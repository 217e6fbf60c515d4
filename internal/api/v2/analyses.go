package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/drguilhermecapel/medai/internal/analysis"
	"github.com/drguilhermecapel/medai/internal/ecg"
	"github.com/drguilhermecapel/medai/internal/errors"
	"github.com/drguilhermecapel/medai/internal/urgency"
)

func newShutdownContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

// analysisRequest is the submission body for POST /analyses.
type analysisRequest struct {
	SampleRate int           `json:"sample_rate"`
	CapturedAt time.Time     `json:"captured_at"`
	PatientRef string        `json:"patient_ref"`
	Leads      []leadPayload `json:"leads"`

	Vitals  *urgency.VitalSigns     `json:"vitals,omitempty"`
	Patient *urgency.PatientContext `json:"patient,omitempty"`
}

type leadPayload struct {
	Name    string    `json:"name"`
	Samples []float64 `json:"samples"`
}

// SubmitAnalysis accepts a raw waveform plus optional bedside context
// and queues it for processing. Responds 202 with the analysis ID.
func (c *Controller) SubmitAnalysis(ctx echo.Context) error {
	var req analysisRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	raw := &ecg.RawWaveform{
		SampleRate: req.SampleRate,
		CapturedAt: req.CapturedAt,
		PatientRef: req.PatientRef,
	}
	if raw.CapturedAt.IsZero() {
		raw.CapturedAt = time.Now()
	}
	for _, l := range req.Leads {
		raw.Leads = append(raw.Leads, ecg.Lead{Name: l.Name, Samples: l.Samples})
	}

	sub := analysis.Submission{Raw: raw, Vitals: req.Vitals, Patient: req.Patient}
	id, err := c.pipeline.Submit(ctx.Request().Context(), sub)
	if err != nil {
		return c.errorResponse(ctx, err, http.StatusBadRequest)
	}
	return ctx.JSON(http.StatusAccepted, map[string]string{
		"id":     id,
		"status": string(analysis.StatusPending),
	})
}

// GetAnalysis returns the current snapshot of an analysis. Terminal
// snapshots are cached briefly since they can no longer change.
func (c *Controller) GetAnalysis(ctx echo.Context) error {
	id := ctx.Param("id")
	if cached, found := c.queryCache.Get(id); found {
		return ctx.JSON(http.StatusOK, cached)
	}

	snap, err := c.pipeline.Get(id)
	if err != nil {
		if !errors.IsCategory(err, errors.CategoryNotFound) {
			return c.errorResponse(ctx, err, http.StatusInternalServerError)
		}
		// Not in memory; fall back to completed analyses persisted by
		// earlier runs.
		return c.getAnalysisFromStore(ctx, id)
	}
	if snap.Status == analysis.StatusCompleted || snap.Status == analysis.StatusFailed {
		c.queryCache.SetDefault(id, snap)
	}
	return ctx.JSON(http.StatusOK, snap)
}

func (c *Controller) getAnalysisFromStore(ctx echo.Context, id string) error {
	if c.store == nil {
		return ctx.JSON(http.StatusNotFound, map[string]string{"error": "analysis " + id + " not found"})
	}
	record, err := c.store.GetAnalysis(id)
	if err != nil {
		return c.errorResponse(ctx, err, http.StatusInternalServerError)
	}
	c.queryCache.SetDefault(id, record)
	return ctx.JSON(http.StatusOK, record)
}

// ListAnalyses returns persisted analyses, newest first.
func (c *Controller) ListAnalyses(ctx echo.Context) error {
	if c.store == nil {
		return ctx.JSON(http.StatusOK, []struct{}{})
	}
	limit, _ := strconv.Atoi(ctx.QueryParam("limit"))
	offset, _ := strconv.Atoi(ctx.QueryParam("offset"))
	records, err := c.store.ListAnalyses(limit, offset)
	if err != nil {
		return c.errorResponse(ctx, err, http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, records)
}

// CancelAnalysis requests cooperative cancellation of a running
// analysis.
func (c *Controller) CancelAnalysis(ctx echo.Context) error {
	if err := c.pipeline.Cancel(ctx.Param("id")); err != nil {
		return c.errorResponse(ctx, err, http.StatusInternalServerError)
	}
	return ctx.NoContent(http.StatusAccepted)
}
