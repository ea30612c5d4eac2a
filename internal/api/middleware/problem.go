package middleware

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// ProblemTypeBase prefixes the type URI of every problem response.
const ProblemTypeBase = "https://specviewer.sdss.org/problems/"

// ProblemType returns the RFC 7807 type URI for status.
func ProblemType(status int) string {
	return fmt.Sprintf("%s%d", ProblemTypeBase, status)
}

type problem struct {
	Type          string `json:"type"`
	Title         string `json:"title"`
	Status        int    `json:"status"`
	Detail        string `json:"detail,omitempty"`
	Instance      string `json:"instance,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// writeProblem writes an RFC 7807 response without importing the api package.
// It falls back to plain text when encoding fails.
func writeProblem(w http.ResponseWriter, r *http.Request, logger *slog.Logger, statusCode int, detail string) {
	correlationID := GetCorrelationID(r.Context())

	body := problem{
		Type:          ProblemType(statusCode),
		Title:         http.StatusText(statusCode),
		Status:        statusCode,
		Detail:        detail,
		Instance:      r.URL.Path,
		CorrelationID: correlationID,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to write response with RFC 7807 error format",
			slog.String("correlation_id", correlationID),
			slog.String("path", r.URL.Path),
			slog.String("detail", detail),
			slog.Any("error", err),
		)
	}
}
