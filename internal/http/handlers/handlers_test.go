package handlers

import (
	"context"
	"testing"
)

func TestHealthCheck(t *testing.T) {
	out, err := HealthCheck(context.Background(), &struct{}{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Body.Status != "healthy" {
		t.Errorf("expected status healthy, got %q", out.Body.Status)
	}
	if out.Body.Version == "" {
		t.Error("expected non-empty version")
	}
}
