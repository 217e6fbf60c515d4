package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/drguilhermecapel/medai/internal/validation"
)

type claimRequest struct {
	Reviewer string `json:"reviewer"`
}

type decisionRequest struct {
	Reviewer string `json:"reviewer"`
	Token    string `json:"token"`
	Outcome  string `json:"outcome"`
	Notes    string `json:"notes,omitempty"`
}

// GetValidationTask returns a validation task snapshot. The :id path
// parameter accepts either the task ID or the analysis ID.
func (c *Controller) GetValidationTask(ctx echo.Context) error {
	id := ctx.Param("id")
	m := c.pipeline.Validation()
	view, err := m.Get(id)
	if err != nil {
		view, err = m.GetByAnalysis(id)
	}
	if err != nil {
		return c.errorResponse(ctx, err, http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, view)
}

// ClaimValidationTask assigns the task to the requesting reviewer.
// Exactly one concurrent claimer wins; the rest receive 409.
func (c *Controller) ClaimValidationTask(ctx echo.Context) error {
	var req claimRequest
	if err := ctx.Bind(&req); err != nil || req.Reviewer == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "reviewer is required"})
	}

	token, err := c.pipeline.Validation().Claim(ctx.Param("id"), req.Reviewer)
	if err != nil {
		return c.errorResponse(ctx, err, http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, map[string]string{"token": token})
}

// SubmitValidationDecision records the reviewer's approve or reject
// decision. Requires the claim token issued to the assigned reviewer;
// anyone else receives 403.
func (c *Controller) SubmitValidationDecision(ctx echo.Context) error {
	var req decisionRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	outcome := validation.Outcome(req.Outcome)
	if !outcome.Valid() {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "outcome must be approved or rejected"})
	}

	err := c.pipeline.Validation().SubmitDecision(ctx.Param("id"), req.Reviewer, req.Token, outcome, req.Notes)
	if err != nil {
		if validation.IsNotAssignedReviewer(err) {
			return ctx.JSON(http.StatusForbidden, map[string]string{"error": err.Error()})
		}
		return c.errorResponse(ctx, err, http.StatusInternalServerError)
	}
	return ctx.NoContent(http.StatusNoContent)
}
