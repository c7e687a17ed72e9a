package handler

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"opsdash/internal/planner"
)

type phasesResponse struct {
	Phases        []planner.PhaseInstance `json:"phases"`
	TotalDuration int                     `json:"total_duration"`
}

func TestPlannerHandler_Templates(t *testing.T) {
	h := NewPlannerHandler(zap.NewNop())
	w := serve(http.MethodGet, "/planner/templates", "/planner/templates", nil, h.Templates)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, planner.ReferenceDuration, body["reference_duration"])
	assert.Len(t, body["templates"], len(planner.DefaultTemplates()))
}

func TestPlannerHandler_RescaleDefaults(t *testing.T) {
	h := NewPlannerHandler(zap.NewNop())
	w := serve(http.MethodPost, "/planner/rescale", "/planner/rescale",
		[]byte(`{"duration": 130}`), h.Rescale)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp phasesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 130, resp.TotalDuration)
	require.Len(t, resp.Phases, len(planner.DefaultTemplates()))
	assert.Equal(t, 2, resp.Phases[0].StartDay)
	assert.Equal(t, 4, resp.Phases[0].EndDay)
}

func TestPlannerHandler_RescaleInvalidDuration(t *testing.T) {
	h := NewPlannerHandler(zap.NewNop())

	w := serve(http.MethodPost, "/planner/rescale", "/planner/rescale",
		[]byte(`{"duration": 0}`), h.Rescale)
	msg := assertError(t, w, http.StatusBadRequest)
	assert.Contains(t, msg, "invalid duration")

	w = serve(http.MethodPost, "/planner/rescale", "/planner/rescale",
		[]byte(`{}`), h.Rescale)
	assertError(t, w, http.StatusBadRequest)
}

func TestPlannerHandler_RescaleSubmittedPhases(t *testing.T) {
	h := NewPlannerHandler(zap.NewNop())

	w := serve(http.MethodPost, "/planner/rescale", "/planner/rescale",
		[]byte(`{"duration":130,"phases":[{"id":"creation","label":"Creation","enabled":true,"start_day":23,"end_day":45}]}`), h.Rescale)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp phasesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Phases, 1)
	assert.Equal(t, 46, resp.Phases[0].StartDay)
	assert.Equal(t, 90, resp.Phases[0].EndDay)
	assert.Equal(t, 90, resp.TotalDuration)

	w = serve(http.MethodPost, "/planner/rescale", "/planner/rescale",
		[]byte(`{"duration":130,"phases":[{"id":"photo-shoot","label":"Photo shoot","enabled":true,"start_day":5,"end_day":9}]}`), h.Rescale)
	msg := assertError(t, w, http.StatusBadRequest)
	assert.Contains(t, msg, "photo-shoot")
}

func TestPlannerHandler_EditBoundary(t *testing.T) {
	h := NewPlannerHandler(zap.NewNop())
	phases, err := planner.Rescale(planner.DefaultTemplates(), planner.ReferenceDuration)
	require.NoError(t, err)

	body := mustJSON(t, map[string]any{
		"phases":   phases,
		"phase_id": "finalization",
		"field":    "end_day",
		"value":    80,
	})
	w := serve(http.MethodPost, "/planner/edit-boundary", "/planner/edit-boundary", body, h.EditBoundary)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp phasesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 80, resp.TotalDuration)
	assert.Equal(t, 80, resp.Phases[len(resp.Phases)-1].EndDay)
	// 请求中的原切片不受影响
	assert.Equal(t, 65, phases[len(phases)-1].EndDay)
}

func TestPlannerHandler_EditBoundaryErrors(t *testing.T) {
	h := NewPlannerHandler(zap.NewNop())
	phases, err := planner.Rescale(planner.DefaultTemplates(), planner.ReferenceDuration)
	require.NoError(t, err)

	cases := []struct {
		name   string
		body   map[string]any
		status int
	}{
		{"unknown phase", map[string]any{"phases": phases, "phase_id": "nope", "field": "end_day", "value": 3}, http.StatusNotFound},
		{"unknown field", map[string]any{"phases": phases, "phase_id": "moodboard", "field": "middle", "value": 3}, http.StatusBadRequest},
		{"zero value", map[string]any{"phases": phases, "phase_id": "moodboard", "field": "start_day", "value": 0}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := serve(http.MethodPost, "/planner/edit-boundary", "/planner/edit-boundary", mustJSON(t, tc.body), h.EditBoundary)
			assertError(t, w, tc.status)
		})
	}
}
