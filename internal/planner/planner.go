// Package planner subdivides a project's duration into workflow phases.
//
// Every phase has a default interval under a 65-day reference schedule.
// Changing the project duration rescales all intervals proportionally;
// editing one boundary by hand resolves start/end conflicts in favour of the
// edited field.
package planner

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"opsdash/internal/model"
)

// ReferenceDuration is the length in days of the schedule the templates are
// defined against.
const ReferenceDuration = 65

// Boundary names an editable end of a phase interval.
type Boundary string

const (
	StartDay Boundary = "start_day"
	EndDay   Boundary = "end_day"
)

var ErrUnknownBoundary = errors.New("unknown phase boundary")

// InvalidDurationError reports a day count that is not a positive integer.
type InvalidDurationError struct {
	Input string
}

func (e *InvalidDurationError) Error() string {
	return fmt.Sprintf("invalid duration %q: must be a positive whole number of days", e.Input)
}

// InvalidPhaseDefaultsError reports a phase whose reference interval is
// missing or inverted, so it cannot be rescaled.
type InvalidPhaseDefaultsError struct {
	PhaseID string
	Start   int
	End     int
}

func (e *InvalidPhaseDefaultsError) Error() string {
	if e.Start == 0 && e.End == 0 {
		return fmt.Sprintf("phase %q: no default interval and no template to take it from", e.PhaseID)
	}
	return fmt.Sprintf("phase %q: invalid default interval %d-%d", e.PhaseID, e.Start, e.End)
}

// PhaseTemplate is the reference definition of a phase.
type PhaseTemplate struct {
	ID           string         `json:"id"`
	Label        string         `json:"label"`
	Category     model.Category `json:"category"`
	DefaultStart int            `json:"default_start"`
	DefaultEnd   int            `json:"default_end"`
}

// PhaseInstance is a template placed on one project's timeline.
type PhaseInstance struct {
	ID           string         `json:"id"`
	Label        string         `json:"label"`
	Category     model.Category `json:"category"`
	Enabled      bool           `json:"enabled"`
	StartDay     int            `json:"start_day"`
	EndDay       int            `json:"end_day"`
	DefaultStart int            `json:"default_start"`
	DefaultEnd   int            `json:"default_end"`
}

var defaultTemplates = []PhaseTemplate{
	{ID: "contract", Label: "Registration data and contract", Category: model.CategoryAdministrative, DefaultStart: 1, DefaultEnd: 2},
	{ID: "briefing", Label: "Briefing and client files", Category: model.CategoryPlanning, DefaultStart: 1, DefaultEnd: 1},
	{ID: "debriefing", Label: "Debriefing", Category: model.CategoryPlanning, DefaultStart: 3, DefaultEnd: 12},
	{ID: "moodboard", Label: "Moodboard", Category: model.CategoryConceptualization, DefaultStart: 15, DefaultEnd: 19},
	{ID: "start", Label: "Project kickoff", Category: model.CategoryDevelopment, DefaultStart: 20, DefaultEnd: 23},
	{ID: "creation", Label: "Creation", Category: model.CategoryDevelopment, DefaultStart: 23, DefaultEnd: 45},
	{ID: "presentation", Label: "Presentation", Category: model.CategoryApproval, DefaultStart: 45, DefaultEnd: 55},
	{ID: "finalization", Label: "Finalization", Category: model.CategoryDelivery, DefaultStart: 55, DefaultEnd: 65},
}

// DefaultTemplates returns a copy of the built-in phase templates in
// template order.
func DefaultTemplates() []PhaseTemplate {
	return append([]PhaseTemplate(nil), defaultTemplates...)
}

// FindTemplate looks up a built-in template by id.
func FindTemplate(id string) (PhaseTemplate, bool) {
	for _, t := range defaultTemplates {
		if t.ID == id {
			return t, true
		}
	}
	return PhaseTemplate{}, false
}

// NewPhaseSet creates one enabled instance per template at its default
// interval.
func NewPhaseSet(templates []PhaseTemplate) []PhaseInstance {
	phases := make([]PhaseInstance, len(templates))
	for i, t := range templates {
		phases[i] = PhaseInstance{
			ID:           t.ID,
			Label:        t.Label,
			Category:     t.Category,
			Enabled:      true,
			StartDay:     t.DefaultStart,
			EndDay:       t.DefaultEnd,
			DefaultStart: t.DefaultStart,
			DefaultEnd:   t.DefaultEnd,
		}
	}
	return phases
}

// Rescale places every template on a timeline of newDuration days.
func Rescale(templates []PhaseTemplate, newDuration int) ([]PhaseInstance, error) {
	return RescaleInstances(NewPhaseSet(templates), newDuration)
}

// RescaleInstances recomputes StartDay/EndDay of existing instances from
// their defaults, keeping Enabled as is. The result is a new slice.
// Instances without defaults take them from the template with the same id.
//
// Rounding may collapse several phases onto the same day for short
// durations. Days never fall below 1.
func RescaleInstances(phases []PhaseInstance, newDuration int) ([]PhaseInstance, error) {
	if newDuration < 1 {
		return nil, &InvalidDurationError{Input: strconv.Itoa(newDuration)}
	}

	ratio := float64(newDuration) / ReferenceDuration
	out := make([]PhaseInstance, len(phases))
	for i, p := range phases {
		if p.DefaultStart == 0 && p.DefaultEnd == 0 {
			t, ok := FindTemplate(p.ID)
			if !ok {
				return nil, &InvalidPhaseDefaultsError{PhaseID: p.ID}
			}
			p.DefaultStart, p.DefaultEnd = t.DefaultStart, t.DefaultEnd
		}
		if p.DefaultStart < 1 || p.DefaultStart > p.DefaultEnd {
			return nil, &InvalidPhaseDefaultsError{PhaseID: p.ID, Start: p.DefaultStart, End: p.DefaultEnd}
		}
		p.StartDay = scaleDay(p.DefaultStart, ratio)
		p.EndDay = scaleDay(p.DefaultEnd, ratio)
		out[i] = p
	}
	return out, nil
}

// scaleDay rounds half away from zero, as the reference planner does.
func scaleDay(day int, ratio float64) int {
	return max(int(math.Round(float64(day)*ratio)), 1)
}

// EditBoundary sets one end of the interval. When the edit inverts the
// interval the other end is pulled to the same day; otherwise it is left
// alone.
func EditBoundary(phase PhaseInstance, field Boundary, value int) (PhaseInstance, error) {
	if value < 1 {
		return phase, &InvalidDurationError{Input: strconv.Itoa(value)}
	}

	switch field {
	case StartDay:
		phase.StartDay = value
		if value > phase.EndDay {
			phase.EndDay = value
		}
	case EndDay:
		phase.EndDay = value
		if value < phase.StartDay {
			phase.StartDay = value
		}
	default:
		return phase, fmt.Errorf("%w: %q", ErrUnknownBoundary, field)
	}
	return phase, nil
}

// TotalDuration is the last day covered by an enabled phase, 0 when none is
// enabled.
func TotalDuration(phases []PhaseInstance) int {
	total := 0
	for _, p := range phases {
		if p.Enabled && p.EndDay > total {
			total = p.EndDay
		}
	}
	return total
}

// Enabled filters phases, preserving order.
func Enabled(phases []PhaseInstance) []PhaseInstance {
	out := make([]PhaseInstance, 0, len(phases))
	for _, p := range phases {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

// ParseDuration validates a day count typed into a form.
func ParseDuration(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return 0, &InvalidDurationError{Input: raw}
	}
	return n, nil
}

// Snapshot converts the enabled phases into the form stored on a created
// project.
func Snapshot(phases []PhaseInstance) []model.WorkflowPhase {
	enabled := Enabled(phases)
	out := make([]model.WorkflowPhase, len(enabled))
	for i, p := range enabled {
		out[i] = model.WorkflowPhase{
			ID:       p.ID,
			Label:    p.Label,
			Category: p.Category,
			StartDay: p.StartDay,
			EndDay:   p.EndDay,
		}
	}
	return out
}

// FromSnapshot rebuilds enabled instances from a stored project so phases
// can be edited after creation. Defaults come from the matching template
// when there is one, otherwise from the stored interval.
func FromSnapshot(phases []model.WorkflowPhase) []PhaseInstance {
	out := make([]PhaseInstance, len(phases))
	for i, p := range phases {
		inst := PhaseInstance{
			ID:           p.ID,
			Label:        p.Label,
			Category:     p.Category,
			Enabled:      true,
			StartDay:     p.StartDay,
			EndDay:       p.EndDay,
			DefaultStart: p.StartDay,
			DefaultEnd:   p.EndDay,
		}
		if t, ok := FindTemplate(p.ID); ok {
			inst.DefaultStart, inst.DefaultEnd = t.DefaultStart, t.DefaultEnd
			if inst.Category == "" {
				inst.Category = t.Category
			}
		}
		out[i] = inst
	}
	return out
}

// Validate checks the interval invariant of every enabled phase against a
// project duration.
func Validate(phases []PhaseInstance, duration int) error {
	for _, p := range phases {
		if !p.Enabled {
			continue
		}
		if p.StartDay < 1 || p.StartDay > p.EndDay || p.EndDay > duration {
			return fmt.Errorf("phase %q has invalid interval %d-%d for a %d-day project", p.ID, p.StartDay, p.EndDay, duration)
		}
	}
	return nil
}
