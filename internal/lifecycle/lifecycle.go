// Package lifecycle validates Application stage transitions.
package lifecycle

import (
	"fmt"
	"slices"
	"time"

	"github.com/garnizeh/jobsync/pkg/models"
)

// Policy selects how strictly transitions are checked.
type Policy int

const (
	// Strict only allows edges of the transition table.
	Strict Policy = iota
	// Permissive accepts any target stage different from the current one.
	// Board drag-and-drop uses it; the server still has the final word.
	Permissive
)

func (p Policy) String() string {
	if p == Permissive {
		return "permissive"
	}
	return "strict"
}

var transitions = map[models.Stage][]models.Stage{
	models.StageSaved:     {models.StageApplied, models.StageWithdrawn},
	models.StageApplied:   {models.StageInterview, models.StageOffer, models.StageRejected, models.StageWithdrawn},
	models.StageInterview: {models.StageOffer, models.StageRejected, models.StageWithdrawn},
	models.StageOffer:     {models.StageRejected, models.StageWithdrawn},
	models.StageRejected:  nil,
	models.StageWithdrawn: nil,
}

// Allowed returns the stages reachable from s in one step.
func Allowed(s models.Stage) []models.Stage {
	return slices.Clone(transitions[s])
}

// CanTransition reports whether from -> to is an edge of the table.
func CanTransition(from, to models.Stage) bool {
	return slices.Contains(transitions[from], to)
}

// Check validates a requested transition without touching any state.
func (p Policy) Check(current, next models.Stage) error {
	if !next.Valid() {
		return &models.ValidationError{Field: "stage", Message: fmt.Sprintf("unknown stage %q", next)}
	}
	if current == next {
		return &models.ValidationError{Field: "stage", Message: fmt.Sprintf("Stage is already set to %s.", next)}
	}
	if p == Strict && !CanTransition(current, next) {
		return &models.ValidationError{Field: "stage", Message: fmt.Sprintf("Cannot move application from %s to %s.", current, next)}
	}
	return nil
}

// Optimistic returns the locally predicted record after moving app to next.
func Optimistic(app models.Application, next models.Stage, now time.Time) models.Application {
	ts := now
	app.Stage = next
	app.StageChangedAt = &ts
	app.LastTouchAt = &ts
	app.UpdatedAt = ts
	return app
}
