package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/bhm-spectra/specviewer/internal/api/middleware"
	"github.com/bhm-spectra/specviewer/internal/identifier"
	"github.com/bhm-spectra/specviewer/internal/retrieval"
)

// paramError reports a malformed query parameter.
type paramError struct {
	param string
	msg   string
}

func (e *paramError) Error() string {
	return "Invalid parameter '" + e.param + "': " + e.msg
}

// parseSpectraRequest reads field, mjd, object, extra, crossref and branch.
// extra may repeat; its values are joined into one comma-separated list.
func parseSpectraRequest(query url.Values) (retrieval.Request, error) {
	req := retrieval.Request{
		Field:  query.Get("field"),
		MJD:    query.Get("mjd"),
		Object: query.Get("object"),
		Extras: strings.Join(query["extra"], ","),
		Branch: query.Get("branch"),
	}

	if raw := query.Get("crossref"); raw != "" {
		crossRef, err := strconv.ParseBool(raw)
		if err != nil {
			return req, &paramError{param: "crossref", msg: "must be a boolean"}
		}

		req.CrossRef = crossRef
	}

	return req, nil
}

// handleSpectra handles GET /api/v1/spectra.
//
// Query Parameters:
//   - field: field number, "all", or an all-epoch sentinel (required)
//   - mjd: MJD, required unless field is "all" or a sentinel
//   - object: catalog ID (required)
//   - extra: comparison spectra "field-mjd-object[@branch]", repeatable
//   - crossref: include epochs of linked catalog IDs
//   - branch: preferred reduction branch
//
// Response: retrieval.Bundle. Undefined uncertainties encode as null.
func (s *Server) handleSpectra(w http.ResponseWriter, r *http.Request) {
	req, err := parseSpectraRequest(r.URL.Query())
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.AggregateTimeout)
	defer cancel()

	bundle, err := s.deps.Engine.Aggregate(ctx, req)
	if err != nil {
		if r.Context().Err() != nil {
			s.logger.Info("Client went away during aggregation",
				slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
				slog.String("object", req.Object),
			)

			return
		}

		s.writeError(w, r, err)

		return
	}

	w.Header().Set("Cache-Control", "private, max-age=300")
	s.writeJSON(w, r, http.StatusOK, bundle)
}

// handleResolve handles GET /api/v1/resolve. It lists the URLs a search for
// field, mjd and object would try, without contacting the archive.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	field, mjd, object := query.Get("field"), query.Get("mjd"), query.Get("object")

	id, err := identifier.Normalize(field, mjd, object)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	if !id.HasMJD() || id.Field.IsAll() {
		WriteErrorResponse(w, r, s.logger, BadRequest(fmt.Sprintf(
			"%s: resolve needs a single field and MJD", identifier.ErrInvalidIdentifier)))

		return
	}

	candidates, err := s.deps.Engine.Candidates(field, mjd, object, query.Get("branch"))
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, r, http.StatusOK, CandidatesResponse{
		Identifier: id.String(),
		Candidates: candidates,
	})
}
