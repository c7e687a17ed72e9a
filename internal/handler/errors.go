package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"opsdash/internal/model"
	"opsdash/internal/planner"
	"opsdash/internal/service/finance"
	"opsdash/internal/service/project"
	"opsdash/internal/taskgen"
	"opsdash/internal/workflow"
	"opsdash/pkg/logger"
)

// statusFor maps domain errors to HTTP status codes. Client errors carry the
// error text; anything unexpected gets the fallback message.
func statusFor(err error) (int, bool) {
	var (
		verrs    validator.ValidationErrors
		duration *planner.InvalidDurationError
		defaults *planner.InvalidPhaseDefaultsError
		date     *taskgen.InvalidDateError
		category *taskgen.InvalidCategoryError
		phase    *project.InvalidPhaseError
		finCat   *finance.InvalidCategoryError
		month    *finance.InvalidMonthError
		trans    *workflow.TransitionError
	)
	switch {
	case errors.As(err, &verrs),
		errors.As(err, &duration),
		errors.As(err, &defaults),
		errors.As(err, &date),
		errors.As(err, &category),
		errors.As(err, &phase),
		errors.As(err, &finCat),
		errors.As(err, &month),
		errors.Is(err, planner.ErrUnknownBoundary),
		errors.Is(err, model.ErrProgressOutOfRange),
		errors.Is(err, model.ErrUnknownTaskStatus):
		return http.StatusBadRequest, true
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, true
	case errors.As(err, &trans), errors.Is(err, model.ErrConflict):
		return http.StatusConflict, true
	}
	return http.StatusInternalServerError, false
}

// respondError logs at a level matching the status and writes the body.
func respondError(c *gin.Context, log *zap.Logger, op string, err error, fallback string) {
	status, expose := statusFor(err)
	log = logger.WithTrace(c.Request.Context(), log)

	if !expose {
		log.Error(op+": failed", zap.Error(err), zap.String("path", c.FullPath()))
		c.JSON(status, gin.H{"error": fallback})
		return
	}
	log.Warn(op+": rejected", zap.Error(err), zap.Int("status", status))
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, log *zap.Logger, op string, err error) {
	logger.WithTrace(c.Request.Context(), log).Warn(op+": invalid request body", zap.Error(err))
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
}
