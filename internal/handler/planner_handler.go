package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"opsdash/internal/model"
	"opsdash/internal/planner"
)

// PlannerHandler exposes the phase planner as stateless previews for the
// project creation form.
type PlannerHandler struct {
	logger *zap.Logger
}

func NewPlannerHandler(logger *zap.Logger) *PlannerHandler {
	return &PlannerHandler{logger: logger}
}

func (h *PlannerHandler) Templates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"templates":          planner.DefaultTemplates(),
		"reference_duration": planner.ReferenceDuration,
		"categories":         model.Categories(),
	})
}

type rescaleRequest struct {
	Duration json.Number             `json:"duration" binding:"required"`
	Phases   []planner.PhaseInstance `json:"phases"`
}

// Rescale places the submitted phases (or the default set) on a timeline
// of the requested length.
func (h *PlannerHandler) Rescale(c *gin.Context) {
	var req rescaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "Rescale", err)
		return
	}

	duration, err := planner.ParseDuration(req.Duration.String())
	if err != nil {
		respondError(c, h.logger, "Rescale", err, "failed to rescale phases")
		return
	}

	var phases []planner.PhaseInstance
	if len(req.Phases) == 0 {
		phases, err = planner.Rescale(planner.DefaultTemplates(), duration)
	} else {
		phases, err = planner.RescaleInstances(req.Phases, duration)
	}
	if err != nil {
		respondError(c, h.logger, "Rescale", err, "failed to rescale phases")
		return
	}

	h.logger.Debug("Rescale: success", zap.Int("duration", duration), zap.Int("phases", len(phases)))
	c.JSON(http.StatusOK, gin.H{
		"phases":         phases,
		"total_duration": planner.TotalDuration(phases),
	})
}

type editBoundaryRequest struct {
	Phases  []planner.PhaseInstance `json:"phases" binding:"required"`
	PhaseID string                  `json:"phase_id" binding:"required"`
	Field   planner.Boundary        `json:"field" binding:"required"`
	Value   int                     `json:"value"`
}

// EditBoundary applies one boundary edit to a phase list and returns the
// updated list with its total duration.
func (h *PlannerHandler) EditBoundary(c *gin.Context) {
	var req editBoundaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "EditBoundary", err)
		return
	}

	phases := append([]planner.PhaseInstance(nil), req.Phases...)
	found := false
	for i := range phases {
		if phases[i].ID != req.PhaseID {
			continue
		}
		edited, err := planner.EditBoundary(phases[i], req.Field, req.Value)
		if err != nil {
			respondError(c, h.logger, "EditBoundary", err, "failed to edit phase")
			return
		}
		phases[i] = edited
		found = true
		break
	}
	if !found {
		respondError(c, h.logger, "EditBoundary", fmt.Errorf("phase %s: %w", req.PhaseID, model.ErrNotFound), "failed to edit phase")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"phases":         phases,
		"total_duration": planner.TotalDuration(phases),
	})
}
