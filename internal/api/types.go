package api

import (
	"net/http"

	"github.com/bhm-spectra/specviewer/internal/retrieval"
)

type (
	// HealthStatus is the body of /health.
	HealthStatus struct {
		Status      string      `json:"status"`
		ServiceName string      `json:"serviceName"`
		Version     string      `json:"version"`
		Uptime      string      `json:"uptime,omitempty"`
		Index       string      `json:"index"`
		ResultCache CacheStatus `json:"resultCache"`
	}

	// CacheStatus reports result cache counters.
	CacheStatus struct {
		Entries   int   `json:"entries"`
		Hits      int64 `json:"hits"`
		Misses    int64 `json:"misses"`
		Shared    int64 `json:"shared"`
		Evictions int64 `json:"evictions"`
	}

	// CandidatesResponse lists the URLs a search would try, in order.
	CandidatesResponse struct {
		Identifier string                `json:"identifier"`
		Candidates []retrieval.Candidate `json:"candidates"`
	}

	// ProgramsResponse lists the programs of the catalog index.
	ProgramsResponse struct {
		Programs []string `json:"programs"`
	}

	// FieldsResponse lists the fields of one program.
	FieldsResponse struct {
		Program string   `json:"program"`
		Fields  []string `json:"fields"`
	}

	// ObjectsResponse lists the catalog IDs of one program field.
	ObjectsResponse struct {
		Program string   `json:"program"`
		Field   string   `json:"field"`
		Objects []string `json:"objects"`
	}

	// Route pairs a mux pattern with its handler.
	Route struct {
		Path    string
		Handler http.HandlerFunc
	}
)
