package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"

	"github.com/querydesk/querydesk/internal/engine"
	"github.com/querydesk/querydesk/internal/export"
	"github.com/querydesk/querydesk/internal/observability"
	"github.com/querydesk/querydesk/internal/storage"
)

type exportRequest struct {
	Connection *engine.Descriptor `json:"connection"`
	Query      string             `json:"query"`
	Format     string             `json:"format"`
}

func handleExport(deps Dependencies, maxBodyBytes int64, w http.ResponseWriter, r *http.Request) {
	if deps.Exporter == nil || deps.Queries == nil {
		writeError(w, http.StatusNotImplemented, "result export is not configured")
		return
	}

	var request exportRequest
	if err := decodeJSON(w, r, maxBodyBytes, &request); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if request.Connection == nil {
		writeError(w, http.StatusBadRequest, "connection is required")
		return
	}
	format, err := export.ParseFormat(request.Format)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := deps.Queries.ExecuteQuery(r.Context(), *request.Connection, request.Query)
	if err != nil {
		writeError(w, statusForEngineError(err), err.Error())
		return
	}

	object, err := deps.Exporter.Export(r.Context(), result, format)
	if err != nil {
		if errors.Is(err, export.ErrEmptyResult) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		observability.FromContext(r.Context(), deps.Logger).ErrorContext(r.Context(), "result export failed",
			slog.String("format", string(format)),
			slog.Any("error", err),
		)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, object)
}

func handleGetExport(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Exports == nil {
		writeError(w, http.StatusNotImplemented, "result export is not configured")
		return
	}
	key := r.PathValue("key")
	if err := storage.ValidateExportPath(key); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reader, info, err := deps.Exports.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			writeError(w, http.StatusNotFound, "export "+key+" was not found")
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	defer func() { _ = reader.Close() }()

	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+path.Base(key)+`"`)
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	if rows, ok := info.Metadata[export.MetadataRows]; ok {
		w.Header().Set("X-Export-Rows", rows)
	}
	if columns, ok := info.Metadata[export.MetadataColumns]; ok {
		w.Header().Set("X-Export-Columns", columns)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, reader)
}

func handleDeleteExport(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Exports == nil {
		writeError(w, http.StatusNotImplemented, "result export is not configured")
		return
	}
	key := r.PathValue("key")
	if err := storage.ValidateExportPath(key); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := deps.Exports.Delete(r.Context(), key); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			writeError(w, http.StatusNotFound, "export "+key+" was not found")
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
