package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/bhm-spectra/specviewer/internal/api/middleware"
	"github.com/bhm-spectra/specviewer/internal/catalog"
	"github.com/bhm-spectra/specviewer/internal/identifier"
	"github.com/bhm-spectra/specviewer/internal/retrieval"
)

// ProblemDetail represents an RFC 7807 Problem Details structure.
// See https://tools.ietf.org/html/rfc7807 for specification.
type ProblemDetail struct {
	Type          string `json:"type"`
	Title         string `json:"title"`
	Status        int    `json:"status"`
	Detail        string `json:"detail,omitempty"`
	Instance      string `json:"instance,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// NewProblemDetail creates a new RFC 7807 Problem Detail.
func NewProblemDetail(status int, title, detail string) *ProblemDetail {
	return &ProblemDetail{
		Type:   middleware.ProblemType(status),
		Title:  title,
		Status: status,
		Detail: detail,
	}
}

// WriteErrorResponse writes an RFC 7807 compliant error response.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, problem *ProblemDetail) {
	correlationID := middleware.GetCorrelationID(r.Context())

	if problem.CorrelationID == "" {
		problem.CorrelationID = correlationID
	}

	if problem.Instance == "" {
		problem.Instance = r.URL.Path
	}

	w.Header().Set("Content-Type", contentTypeProblemJSON)
	w.WriteHeader(problem.Status)

	if err := json.NewEncoder(w).Encode(problem); err != nil {
		logger.Error("Failed to encode error response",
			slog.String("correlation_id", correlationID),
			slog.String("path", r.URL.Path),
			slog.String("method", r.Method),
			slog.Any("encode_error", err),
			slog.Int("status", problem.Status),
		)
	}
}

// InternalServerError creates a 500 Internal Server Error problem.
func InternalServerError(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusInternalServerError, "Internal Server Error", detail)
}

// BadRequest creates a 400 Bad Request problem.
func BadRequest(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusBadRequest, "Bad Request", detail)
}

// NotFound creates a 404 Not Found problem.
func NotFound(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusNotFound, "Not Found", detail)
}

// BadGateway creates a 502 problem for archive faults.
func BadGateway(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusBadGateway, "Bad Gateway", detail)
}

// ServiceUnavailable creates a 503 problem.
func ServiceUnavailable(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusServiceUnavailable, "Service Unavailable", detail)
}

// GatewayTimeout creates a 504 problem for aggregations that ran out of time.
func GatewayTimeout(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusGatewayTimeout, "Gateway Timeout", detail)
}

// problemFor maps engine and index errors to responses.
//
//	invalid identifier              400
//	no data, unknown program/field  404
//	archive faults on every branch  502
//	index unavailable or missing    503
//	deadline exceeded               504
func problemFor(err error) *ProblemDetail {
	var resolution *retrieval.ResolutionError

	switch {
	case errors.Is(err, identifier.ErrInvalidIdentifier):
		return BadRequest(err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return GatewayTimeout("Timed out while retrieving spectra")
	case errors.Is(err, catalog.ErrIndexUnavailable), errors.Is(err, retrieval.ErrNoIndex):
		return ServiceUnavailable(err.Error())
	case errors.As(err, &resolution) && resolution.Faulted():
		return BadGateway(err.Error())
	case errors.Is(err, retrieval.ErrNoData),
		errors.Is(err, catalog.ErrUnknownProgram),
		errors.Is(err, catalog.ErrUnknownField),
		errors.Is(err, catalog.ErrUnknownObject):
		return NotFound(err.Error())
	default:
		return InternalServerError("Failed to process request")
	}
}
