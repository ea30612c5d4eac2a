package api

import (
	"net/http"

	"github.com/bhm-spectra/specviewer/internal/retrieval"
)

// handlePrograms handles GET /api/v1/programs.
func (s *Server) handlePrograms(w http.ResponseWriter, r *http.Request) {
	if s.deps.Index == nil {
		s.writeError(w, r, retrieval.ErrNoIndex)

		return
	}

	programs, err := s.deps.Index.Programs(r.Context())
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, r, http.StatusOK, ProgramsResponse{Programs: nonNil(programs)})
}

// handleFields handles GET /api/v1/programs/{program}/fields.
func (s *Server) handleFields(w http.ResponseWriter, r *http.Request) {
	if s.deps.Index == nil {
		s.writeError(w, r, retrieval.ErrNoIndex)

		return
	}

	program := r.PathValue("program")

	fields, err := s.deps.Index.Fields(r.Context(), program)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, r, http.StatusOK, FieldsResponse{Program: program, Fields: nonNil(fields)})
}

// handleObjects handles GET /api/v1/programs/{program}/fields/{field}/objects.
func (s *Server) handleObjects(w http.ResponseWriter, r *http.Request) {
	if s.deps.Index == nil {
		s.writeError(w, r, retrieval.ErrNoIndex)

		return
	}

	program, field := r.PathValue("program"), r.PathValue("field")

	objects, err := s.deps.Index.Objects(r.Context(), program, field)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, r, http.StatusOK, ObjectsResponse{Program: program, Field: field, Objects: nonNil(objects)})
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}

	return list
}
