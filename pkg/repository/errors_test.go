package repository_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/garnizeh/jobsync/pkg/models"
	"github.com/garnizeh/jobsync/pkg/repository"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want repository.Kind
	}{
		{name: "Nil", err: nil, want: repository.KindNone},
		{name: "Validation", err: &models.ValidationError{Field: "role", Message: "too short"}, want: repository.KindValidation},
		{name: "WrappedValidation", err: fmt.Errorf("create: %w", &models.ValidationError{Message: "x"}), want: repository.KindValidation},
		{name: "Network", err: &repository.NetworkError{Op: "PATCH /applications/1/stage", Err: errors.New("connection refused")}, want: repository.KindNetwork},
		{name: "Deadline", err: fmt.Errorf("call: %w", context.DeadlineExceeded), want: repository.KindNetwork},
		{name: "Conflict", err: &repository.RemoteError{Status: http.StatusConflict, Message: "Invalid stage transition"}, want: repository.KindRejected},
		{name: "BadGateway", err: &repository.RemoteError{Status: http.StatusBadGateway}, want: repository.KindNetwork},
		{name: "UnreadableSuccess", err: &repository.RemoteError{Status: http.StatusOK, Code: "invalid_response", Message: "unexpected end of JSON input"}, want: repository.KindNetwork},
		{name: "PlainNetworkMessage", err: errors.New("Network request failed"), want: repository.KindNetwork},
		{name: "Plain", err: errors.New("boom"), want: repository.KindRejected},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := repository.Classify(tc.err); got != tc.want {
				t.Fatalf("Classify(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestRemoteError_MessageAndNotFound(t *testing.T) {
	err := &repository.RemoteError{Status: http.StatusNotFound}
	if err.Error() != "Request failed (404)" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
	if !errors.Is(fmt.Errorf("get: %w", err), repository.ErrNotFound) {
		t.Fatalf("expected 404 to match ErrNotFound")
	}

	withMsg := &repository.RemoteError{Status: http.StatusBadRequest, Message: "Validation failed"}
	if withMsg.Error() != "Validation failed" {
		t.Fatalf("server message must be surfaced verbatim, got %q", withMsg.Error())
	}
}
