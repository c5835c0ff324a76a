package services_test

import (
	"context"
	"testing"

	"winivox/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithSubmissionID(ctx, "sub-1")
	ctx = services.WithStep(ctx, "transcribe")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.SubmissionIDFromContext(ctx); !ok || id != "sub-1" {
		t.Fatalf("unexpected submission id: %v %v", id, ok)
	}
	if step, ok := services.StepFromContext(ctx); !ok || step != "transcribe" {
		t.Fatalf("unexpected step: %v %v", step, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStep(ctx, "")
	ctx = services.WithSubmissionID(ctx, "")
	if _, ok := services.StepFromContext(ctx); ok {
		t.Fatal("expected no step value")
	}
	if _, ok := services.SubmissionIDFromContext(ctx); ok {
		t.Fatal("expected no submission value")
	}
}
