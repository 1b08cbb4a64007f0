package api

import (
	"errors"
	"net/http"

	"github.com/querydesk/querydesk/internal/engine"
)

type connectionRequest struct {
	Connection *engine.Descriptor `json:"connection"`
}

type queryRequest struct {
	Connection *engine.Descriptor `json:"connection"`
	Query      string             `json:"query"`
}

type connectionResponse struct {
	Message string `json:"message"`
}

func handleTestConnection(deps Dependencies, maxBodyBytes int64, w http.ResponseWriter, r *http.Request) {
	if deps.Queries == nil {
		writeError(w, http.StatusNotImplemented, "query service is not configured")
		return
	}

	var request connectionRequest
	if err := decodeJSON(w, r, maxBodyBytes, &request); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if request.Connection == nil {
		writeError(w, http.StatusBadRequest, "connection is required")
		return
	}

	message, err := deps.Queries.TestConnection(r.Context(), *request.Connection)
	if err != nil {
		writeError(w, statusForEngineError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, connectionResponse{Message: message})
}

func handleQuery(deps Dependencies, maxBodyBytes int64, w http.ResponseWriter, r *http.Request) {
	if deps.Queries == nil {
		writeError(w, http.StatusNotImplemented, "query service is not configured")
		return
	}

	var request queryRequest
	if err := decodeJSON(w, r, maxBodyBytes, &request); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if request.Connection == nil {
		writeError(w, http.StatusBadRequest, "connection is required")
		return
	}

	result, err := deps.Queries.ExecuteQuery(r.Context(), *request.Connection, request.Query)
	if err != nil {
		writeError(w, statusForEngineError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// statusForEngineError maps caller mistakes to 400 and database-side failures to
// 502.
func statusForEngineError(err error) int {
	var unsupported *engine.UnsupportedEngineError
	var connErr *engine.ConnectionError
	var queryErr *engine.QueryError
	switch {
	case errors.As(err, &unsupported):
		return http.StatusBadRequest
	case errors.As(err, &connErr), errors.As(err, &queryErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
