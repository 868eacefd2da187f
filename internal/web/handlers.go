package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/arhamsadaf7-commits/sinohr-sub000/internal/logging"
	"github.com/arhamsadaf7-commits/sinohr-sub000/internal/permit"
)

// handleHealth reports service liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleImport accepts a spreadsheet upload and starts an asynchronous
// import run. The response carries the run ID; clients follow the run via
// the progress and result endpoints.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	data, fileName, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	uploadedBy := r.FormValue("uploadedBy")
	if uploadedBy == "" {
		uploadedBy = "unknown"
	}

	runID, err := s.service.StartRun(r.Context(), fileName, uploadedBy, data)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"runId": runID})
}

// handlePreview analyzes an upload without writing anything.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	data, fileName, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	result, err := s.service.Preview(fileName, data)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// readUpload extracts the uploaded file from a multipart form. On failure it
// writes the error response and returns ok=false.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (data []byte, fileName string, ok bool) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		s.respondError(w, r, fmt.Errorf("parse form: %w", err), http.StatusBadRequest)
		return nil, "", false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, errors.New("no file provided"), http.StatusBadRequest)
		return nil, "", false
	}
	defer file.Close()

	data, err = io.ReadAll(file)
	if err != nil {
		s.respondError(w, r, fmt.Errorf("read file: %w", err), http.StatusInternalServerError)
		return nil, "", false
	}

	return data, header.Filename, true
}

// handleProgress streams run progress via Server-Sent Events.
// Supports resumption via the Last-Event-ID header (or lastEventId query
// parameter): the event ID is the progress percentage, so reconnecting
// clients skip events they have already seen.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	lastEventIDStr := r.Header.Get("Last-Event-ID")
	if lastEventIDStr == "" {
		lastEventIDStr = r.URL.Query().Get("lastEventId")
	}
	var lastEventID int
	if lastEventIDStr != "" {
		lastEventID, _ = strconv.Atoi(lastEventIDStr)
	}

	progressCh, err := s.service.SubscribeProgress(runID)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, r, errors.New("streaming not supported"), http.StatusInternalServerError)
		return
	}

	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				// Channel closed: run finished or was cancelled.
				fmt.Fprintf(w, "event: complete\ndata: {}\n\n")
				flusher.Flush()
				return
			}

			if lastEventIDStr != "" && progress.Percentage <= lastEventID {
				continue
			}

			data, _ := json.Marshal(progress)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", progress.Percentage, data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// handleResult returns the outcome of a run. While the run is still
// processing it responds 202. Finished runs that have already aged out of the
// active set are served from the ledger.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	summary, err := s.service.TryResult(runID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, summary)
	case errors.Is(err, permit.ErrRunActive):
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "processing"})
	case errors.Is(err, permit.ErrNotFound):
		sealed, lerr := s.service.HistoryRun(r.Context(), runID)
		if lerr != nil {
			s.respondError(w, r, lerr, http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, sealed)
	default:
		// Run finished with a fatal error; the summary still describes
		// what was committed before the stop.
		if summary != nil {
			writeJSON(w, http.StatusOK, summary)
			return
		}
		s.respondError(w, r, err, http.StatusInternalServerError)
	}
}

// handleCancel asks an in-progress run to stop between rows.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	if err := s.service.CancelRun(runID); err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	logging.FromContext(r.Context()).Info("run cancel requested", "run_id", runID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

// handleHistory returns recent sealed runs from the upload ledger.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.Import.HistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondError(w, r, errors.New("limit must be a positive integer"), http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := s.service.History(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []permit.RunSummary{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// handleHistoryRun returns one sealed run from the upload ledger.
func (s *Server) handleHistoryRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	run, err := s.service.HistoryRun(r.Context(), runID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, permit.ErrNotFound) {
			status = http.StatusNotFound
		}
		s.respondError(w, r, err, status)
		return
	}

	writeJSON(w, http.StatusOK, run)
}
