package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/sanonone/pdfdrop/internal/drop"
	"github.com/sanonone/pdfdrop/pkg/export"
	"github.com/sanonone/pdfdrop/pkg/extract"
)

// filesField is the multipart field the drop page sends every file under.
const filesField = "files"

// multipartMemory is kept in memory while parsing uploads; the rest is spooled by net/http.
const multipartMemory = 32 << 20

// statusClientClosedRequest is used when the caller went away before the batch was ready.
const statusClientClosedRequest = 499

// registerHTTPHandlers sets up the /api routes.
func (s *Server) registerHTTPHandlers(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/extract", s.handleExtract)

	mux.HandleFunc("POST /api/tasks", s.handleTaskCreate)
	mux.HandleFunc("GET /api/tasks", s.handleTaskList)
	mux.HandleFunc("GET /api/tasks/{id}", s.handleTaskGet)
	mux.HandleFunc("DELETE /api/tasks/{id}", s.handleTaskCancel)

	mux.HandleFunc("POST /api/export/json", s.handleExportJSON)
	mux.HandleFunc("POST /api/export/csv", s.handleExportCSV)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeHTTPResponse(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// --- Extraction ---

// responseSink is the UI handle of a synchronous drop: it keeps the batch for the response.
type responseSink struct {
	batch extract.Batch
}

func (rs *responseSink) PDFsLoaded(_ context.Context, batch extract.Batch) error {
	rs.batch = batch
	return nil
}

// handleExtract runs one drop synchronously and answers with the batch.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	handles, cleanup, ok := s.parseDrop(w, r)
	if !ok {
		return
	}
	defer cleanup()

	ctx, cancel := s.extractContext(r.Context())
	defer cancel()

	sink := &responseSink{}
	if err := drop.NewController(s.extractor, sink).FilesDropped(ctx, handles); err != nil {
		s.writeExtractError(w, r, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, sink.batch)
}

// handleTaskCreate reads the upload into memory and extracts it in the background.
func (s *Server) handleTaskCreate(w http.ResponseWriter, r *http.Request) {
	handles, cleanup, ok := s.parseDrop(w, r)
	if !ok {
		return
	}
	defer cleanup()

	// the multipart spool files go away with the request, so read everything now
	files, err := s.extractor.Reader().ReadAll(r.Context(), handles)
	if err != nil {
		s.writeExtractError(w, r, err)
		return
	}
	inMemory := make([]extract.FileHandle, len(files))
	for i, f := range files {
		inMemory[i] = extract.BytesHandle{FileName: f.FileName, Data: f.Buffer}
	}

	ctx, cancel := s.extractContext(s.baseCtx)
	task := s.taskManager.NewTask(len(files), cancel)
	slog.Info("[TASK] Extraction task started", "id", task.ID(), "files", len(files))

	go func() {
		defer cancel()
		task.SetStatus(TaskStatusRunning)
		task.SetProgress(fmt.Sprintf("extracting %d file(s)", len(files)))
		if err := drop.NewController(s.extractor, task).FilesDropped(ctx, inMemory); err != nil {
			slog.Warn("[TASK] Extraction task failed", "id", task.ID(), "kind", extract.Kind(err), "error", err)
			return
		}
		slog.Info("[TASK] Extraction task completed", "id", task.ID())
	}()

	s.writeHTTPResponse(w, http.StatusAccepted, TaskCreatedResponse{ID: task.ID(), Status: TaskStatusStarted})
}

func (s *Server) handleTaskList(w http.ResponseWriter, r *http.Request) {
	s.writeHTTPResponse(w, http.StatusOK, TaskListResponse{Tasks: s.taskManager.List()})
}

func (s *Server) handleTaskGet(w http.ResponseWriter, r *http.Request) {
	task, ok := s.taskManager.GetTask(r.PathValue("id"))
	if !ok {
		s.writeHTTPError(w, http.StatusNotFound, "task not found", "")
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, task.View())
}

func (s *Server) handleTaskCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.taskManager.Cancel(id) {
		s.writeHTTPError(w, http.StatusNotFound, "task not found", "")
		return
	}
	task, _ := s.taskManager.GetTask(id)
	s.writeHTTPResponse(w, http.StatusAccepted, TaskCreatedResponse{ID: id, Status: task.Status()})
}

// parseDrop reads the multipart upload and returns the files in the order they were sent.
func (s *Server) parseDrop(w http.ResponseWriter, r *http.Request) ([]extract.FileHandle, func(), bool) {
	if s.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeHTTPError(w, http.StatusRequestEntityTooLarge, "upload too large", extract.KindLimit)
			return nil, nil, false
		}
		s.writeHTTPError(w, http.StatusBadRequest, "expected a multipart/form-data upload: "+err.Error(), "")
		return nil, nil, false
	}

	headers := r.MultipartForm.File[filesField]
	if len(headers) == 0 {
		r.MultipartForm.RemoveAll()
		s.writeHTTPError(w, http.StatusBadRequest, "no files dropped: send them in the 'files' field", "")
		return nil, nil, false
	}
	if max := s.extractor.Options().MaxFiles; max > 0 && len(headers) > max {
		r.MultipartForm.RemoveAll()
		s.writeHTTPError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("%d files dropped, at most %d allowed", len(headers), max), extract.KindLimit)
		return nil, nil, false
	}

	handles := make([]extract.FileHandle, len(headers))
	for i, fh := range headers {
		handles[i] = uploadHandle{fh}
	}
	return handles, func() { r.MultipartForm.RemoveAll() }, true
}

// uploadHandle adapts a multipart file to extract.FileHandle.
type uploadHandle struct {
	fh *multipart.FileHeader
}

func (u uploadHandle) Name() string                 { return u.fh.Filename }
func (u uploadHandle) Open() (io.ReadCloser, error) { return u.fh.Open() }

// --- Export ---

func (s *Server) handleExportJSON(w http.ResponseWriter, r *http.Request) {
	var req export.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeHTTPError(w, http.StatusBadRequest, "invalid JSON, expected {fileName, transactions}", "")
		return
	}
	d, err := export.JSON(req.FileName, req.Transactions)
	if err != nil {
		s.writeHTTPError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	s.writeDownload(w, d)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	var req export.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeHTTPError(w, http.StatusBadRequest, "invalid JSON, expected {fileName, transactions}", "")
		return
	}
	d, err := export.CSVFromRequest(req)
	if err != nil {
		s.writeHTTPError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	s.writeDownload(w, d)
}

// --- Helpers for HTTP responses ---

func (s *Server) writeDownload(w http.ResponseWriter, d export.Download) {
	w.Header().Set("Content-Type", d.ContentType)
	// non-ASCII names go out RFC 2231 encoded as filename*
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": d.FileName}))
	w.WriteHeader(http.StatusOK)
	w.Write(d.Body)
}

// writeExtractError maps the error taxonomy onto HTTP status codes.
func (s *Server) writeExtractError(w http.ResponseWriter, r *http.Request, err error) {
	kind := extract.Kind(err)
	status := http.StatusInternalServerError
	switch kind {
	case extract.KindRead:
		status = http.StatusBadRequest
	case extract.KindDecode:
		status = http.StatusUnprocessableEntity
	case extract.KindIO:
		status = http.StatusBadGateway
	case extract.KindLimit:
		status = http.StatusRequestEntityTooLarge
	case extract.KindCanceled:
		status = http.StatusGatewayTimeout
		if r.Context().Err() != nil {
			status = statusClientClosedRequest
		}
	}
	if errors.Is(err, drop.ErrNoFiles) {
		status = http.StatusBadRequest
	}
	s.writeHTTPError(w, status, err.Error(), kind)
}

func (s *Server) writeHTTPResponse(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeHTTPError(w http.ResponseWriter, statusCode int, message, kind string) {
	s.writeHTTPResponse(w, statusCode, ErrorResponse{Error: message, Kind: kind})
}
