package models

import (
	"fmt"
	"strings"
	"time"
)

// Domain models matching the JSON contract of the job-tracker REST API.

// Stage is the lifecycle position of an Application in the hiring pipeline.
type Stage string

const (
	StageSaved     Stage = "SAVED"
	StageApplied   Stage = "APPLIED"
	StageInterview Stage = "INTERVIEW"
	StageOffer     Stage = "OFFER"
	StageRejected  Stage = "REJECTED"
	StageWithdrawn Stage = "WITHDRAWN"
)

// Stages returns every stage in board order.
func Stages() []Stage {
	return []Stage{StageSaved, StageApplied, StageInterview, StageOffer, StageRejected, StageWithdrawn}
}

// IsTerminal reports whether no outbound transitions exist from s.
func (s Stage) IsTerminal() bool {
	return s == StageRejected || s == StageWithdrawn
}

// Valid reports whether s is one of the known stages.
func (s Stage) Valid() bool {
	for _, v := range Stages() {
		if v == s {
			return true
		}
	}
	return false
}

// ParseStage accepts a stage name in any case.
func ParseStage(s string) (Stage, error) {
	st := Stage(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", &ValidationError{Field: "stage", Message: fmt.Sprintf("unknown stage %q", s)}
	}
	return st, nil
}

type Application struct {
	ID             int64      `json:"id"`
	Company        string     `json:"company"`
	Role           string     `json:"role"`
	JobURL         *string    `json:"jobUrl"`
	Location       *string    `json:"location"`
	Notes          *string    `json:"notes"`
	Stage          Stage      `json:"stage"`
	LastTouchAt    *time.Time `json:"lastTouchAt"`
	StageChangedAt *time.Time `json:"stageChangedAt"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// TaskStatus is either OPEN or DONE.
type TaskStatus string

const (
	TaskOpen TaskStatus = "OPEN"
	TaskDone TaskStatus = "DONE"
)

// ParseTaskStatus accepts a status name in any case.
func ParseTaskStatus(s string) (TaskStatus, error) {
	switch st := TaskStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case TaskOpen, TaskDone:
		return st, nil
	}
	return "", &ValidationError{Field: "status", Message: fmt.Sprintf("unknown task status %q", s)}
}

type Task struct {
	ID            int64      `json:"id"`
	ApplicationID int64      `json:"applicationId"`
	Title         string     `json:"title"`
	Status        TaskStatus `json:"status"`
	DueAt         *time.Time `json:"dueAt"`
	SnoozeUntil   *time.Time `json:"snoozeUntil"`
	Notes         *string    `json:"notes"`
	CompletedAt   *time.Time `json:"completedAt"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// WithStatus returns a copy of t moved to status, keeping CompletedAt set
// if and only if the status is DONE.
func (t Task) WithStatus(status TaskStatus, now time.Time) Task {
	t.Status = status
	t.UpdatedAt = now
	if status == TaskDone {
		ts := now
		t.CompletedAt = &ts
	} else {
		t.CompletedAt = nil
	}
	return t
}

// StageEvent is an append-only record of one stage transition.
type StageEvent struct {
	ID            int64     `json:"id"`
	ApplicationID int64     `json:"applicationId"`
	FromStage     *Stage    `json:"fromStage"`
	ToStage       *Stage    `json:"toStage"`
	Note          *string   `json:"note"`
	Actor         *string   `json:"actor"`
	CreatedAt     time.Time `json:"createdAt"`
}

// AuditEvent is an immutable domain event. Payload is opaque JSON text used
// for display only.
type AuditEvent struct {
	ID            int64     `json:"id"`
	Type          string    `json:"type"`
	EntityType    string    `json:"entityType"`
	EntityID      *int64    `json:"entityId"`
	Payload       string    `json:"payload"`
	CorrelationID *string   `json:"correlationId"`
	CreatedAt     time.Time `json:"createdAt"`
}

const (
	AuditStageChanged = "application.stage_changed"
	AuditTaskCreated  = "task.created"
	AuditTaskComplete = "task.completed"
)

type Summary struct {
	StageCounts  map[Stage]int64 `json:"stageCounts"`
	OverdueTasks int64           `json:"overdueTasks"`
}

type NextActions struct {
	DueSoonTasks      []Task        `json:"dueSoonTasks"`
	StaleApplications []Application `json:"staleApplications"`
}

type ActivityPoint struct {
	Date             string `json:"date"`
	StageTransitions int64  `json:"stageTransitions"`
	TaskCompletions  int64  `json:"taskCompletions"`
}

type Activity struct {
	Days  int             `json:"days"`
	Items []ActivityPoint `json:"items"`
}

type Metrics struct {
	Timestamp    time.Time `json:"timestamp"`
	Users        int64     `json:"users"`
	Applications int64     `json:"applications"`
	Tasks        int64     `json:"tasks"`
	StageEvents  int64     `json:"stageEvents"`
	AuditEvents  int64     `json:"auditEvents"`
}

type AuthResponse struct {
	UserID        int64  `json:"userId"`
	Email         string `json:"email"`
	Token         string `json:"token"`
	RefreshToken  string `json:"refreshToken"`
	EmailVerified bool   `json:"emailVerified"`
	MFAEnabled    bool   `json:"mfaEnabled"`
}

type Profile struct {
	UserID int64  `json:"userId"`
	Email  string `json:"email"`
}
