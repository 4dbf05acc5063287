// Package handlers contains HTTP handlers for the API.
package handlers

import (
	"context"

	"github.com/roomvibe/roomvibe-api/internal/http/mw"
	"github.com/roomvibe/roomvibe-api/internal/version"
)

// HealthCheckOutput represents health check response.
type HealthCheckOutput struct {
	Body struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
}

// HealthCheck returns the health status of the API.
func HealthCheck(ctx context.Context, input *struct{}) (*HealthCheckOutput, error) {
	return &HealthCheckOutput{
		Body: struct {
			Status  string `json:"status"`
			Version string `json:"version"`
		}{
			Status:  "healthy",
			Version: version.Get().Short(),
		},
	}, nil
}

// getUserID extracts user ID from context.
func getUserID(ctx context.Context) string {
	claims := mw.GetUserClaims(ctx)
	if claims == nil {
		return ""
	}
	return claims.UserID
}

// getUserEmail extracts the user's email from context.
func getUserEmail(ctx context.Context) string {
	claims := mw.GetUserClaims(ctx)
	if claims == nil {
		return ""
	}
	return claims.Email
}
