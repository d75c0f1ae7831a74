package models

import (
	"regexp"
	"strings"
	"time"
)

var jobURLPattern = regexp.MustCompile(`(?i)^https?://`)

// ValidationError is raised client-side before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// ApplicationInput is the create/update payload for an Application.
type ApplicationInput struct {
	Company  string  `json:"company"`
	Role     string  `json:"role"`
	JobURL   *string `json:"jobUrl"`
	Location *string `json:"location"`
	Notes    *string `json:"notes"`
}

// Normalize trims every field; blank optional fields become nil.
func (in ApplicationInput) Normalize() ApplicationInput {
	return ApplicationInput{
		Company:  strings.TrimSpace(in.Company),
		Role:     strings.TrimSpace(in.Role),
		JobURL:   trimOptional(in.JobURL),
		Location: trimOptional(in.Location),
		Notes:    trimOptional(in.Notes),
	}
}

func (in ApplicationInput) Validate() error {
	if len([]rune(strings.TrimSpace(in.Company))) < 2 {
		return &ValidationError{Field: "company", Message: "Company name must be at least 2 characters."}
	}
	if len([]rune(strings.TrimSpace(in.Role))) < 2 {
		return &ValidationError{Field: "role", Message: "Role must be at least 2 characters."}
	}
	if in.JobURL != nil {
		if u := strings.TrimSpace(*in.JobURL); u != "" && !jobURLPattern.MatchString(u) {
			return &ValidationError{Field: "jobUrl", Message: "Job URL must start with http:// or https://"}
		}
	}
	return nil
}

// Apply copies the editable fields onto app.
func (in ApplicationInput) Apply(app Application) Application {
	app.Company = in.Company
	app.Role = in.Role
	app.JobURL = in.JobURL
	app.Location = in.Location
	app.Notes = in.Notes
	return app
}

// TaskInput is the create/update payload for a Task.
type TaskInput struct {
	Title       string     `json:"title"`
	DueAt       *time.Time `json:"dueAt"`
	SnoozeUntil *time.Time `json:"snoozeUntil"`
	Notes       *string    `json:"notes"`
}

func (in TaskInput) Normalize() TaskInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Notes = trimOptional(in.Notes)
	return in
}

func (in TaskInput) Validate() error {
	if len([]rune(strings.TrimSpace(in.Title))) < 3 {
		return &ValidationError{Field: "title", Message: "Task title must be at least 3 characters."}
	}
	return nil
}

// Apply copies the editable fields onto t.
func (in TaskInput) Apply(t Task) Task {
	t.Title = in.Title
	t.DueAt = in.DueAt
	t.SnoozeUntil = in.SnoozeUntil
	t.Notes = in.Notes
	return t
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
