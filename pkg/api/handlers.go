package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/executor"
	"github.com/cuemby/burrow/pkg/files"
	"github.com/cuemby/burrow/pkg/ident"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/store"
	"github.com/cuemby/burrow/pkg/types"
)

// Executor runs submitted code and reports live containers. Implemented by
// *executor.Engine.
type Executor interface {
	Execute(ctx context.Context, req executor.Request) *types.ExecutionResult
	ActiveContainers() []types.ContainerMetrics
}

// Handler serves both API surfaces over one engine and file manager.
type Handler struct {
	cfg    *config.Config
	engine Executor
	fm     *files.Manager
	logger zerolog.Logger
}

// NewHandler creates the handler set.
func NewHandler(cfg *config.Config, engine Executor, fm *files.Manager) *Handler {
	return &Handler{
		cfg:    cfg,
		engine: engine,
		fm:     fm,
		logger: log.WithComponent("api"),
	}
}

type requestFile struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
}

type executeRequest struct {
	Code     string        `json:"code"`
	Lang     string        `json:"lang"`
	Args     []string      `json:"args,omitempty"`
	UserID   string        `json:"user_id,omitempty"`
	EntityID string        `json:"entity_id,omitempty"`
	Files    []requestFile `json:"files,omitempty"`
}

type runResult struct {
	Stdout   string  `json:"stdout"`
	Stderr   string  `json:"stderr"`
	Status   string  `json:"status"`
	Memory   int64   `json:"memory,omitempty"`
	CPUTime  float64 `json:"cpu_time,omitempty"`
	WallTime float64 `json:"wall_time,omitempty"`
}

type fileRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path,omitempty"`
}

type executeResponse struct {
	Run       runResult `json:"run"`
	Language  string    `json:"language"`
	Version   string    `json:"version"`
	SessionID string    `json:"session_id"`
	Files     []fileRef `json:"files"`
}

type fileMetadata struct {
	ContentType      string `json:"content-type"`
	OriginalFilename string `json:"original-filename"`
}

type fileObject struct {
	Name         string       `json:"name"`
	ID           string       `json:"id"`
	SessionID    string       `json:"session_id"`
	Size         int64        `json:"size"`
	LastModified string       `json:"lastModified"`
	Etag         string       `json:"etag"`
	ContentType  string       `json:"contentType"`
	Metadata     fileMetadata `json:"metadata"`
}

type uploadResponse struct {
	Message   string       `json:"message"`
	SessionID string       `json:"session_id"`
	Files     []fileObject `json:"files"`
}

type successResponse struct {
	Message string `json:"message"`
}

func decodeJSONBody(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

func fileObjectFrom(rec *types.FileRecord) fileObject {
	return fileObject{
		Name:         rec.Filename,
		ID:           rec.ID,
		SessionID:    rec.SessionID,
		Size:         rec.Size,
		LastModified: rec.LastModified.UTC().Format(time.RFC3339),
		Etag:         rec.Etag,
		ContentType:  rec.ContentType,
		Metadata: fileMetadata{
			ContentType:      rec.ContentType,
			OriginalFilename: rec.OriginalFilename,
		},
	}
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Execute runs one code fragment and returns the structured result.
func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	req, lang, ok := h.decodeExecute(w, r)
	if !ok {
		return
	}

	resp := h.runExecution(r.Context(), req, lang)
	writeJSON(w, http.StatusOK, resp)
}

// decodeExecute parses and validates the shared execution request body. A
// false return means the response has been written.
func (h *Handler) decodeExecute(w http.ResponseWriter, r *http.Request) (executeRequest, types.Language, bool) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return req, "", false
	}

	lang, err := types.ParseLanguage(req.Lang)
	if err != nil {
		badRequest(w, err.Error())
		return req, "", false
	}
	return req, lang, true
}

// runExecution is the surface-independent part of an execute call: session
// resolution, file reference lookup, the engine run and the empty-stdout
// hint.
func (h *Handler) runExecution(ctx context.Context, req executeRequest, lang types.Language) executeResponse {
	// The session sticks to previously uploaded files; without references a
	// fresh session is opened for the run.
	sessionID := ident.New()
	if len(req.Files) > 0 {
		sessionID = req.Files[0].SessionID
	}

	refs := make([]types.FileReference, 0, len(req.Files))
	for _, f := range req.Files {
		if _, err := h.fm.Get(ctx, f.SessionID, f.ID); err != nil {
			h.logger.Warn().Str("file_id", f.ID).Str("session_id", f.SessionID).Msg("Referenced file not found, skipping")
			continue
		}
		refs = append(refs, types.FileReference{ID: f.ID, SessionID: f.SessionID, Name: f.Name})
	}

	result := h.engine.Execute(ctx, executor.Request{
		Code:      req.Code,
		SessionID: sessionID,
		Language:  lang,
		Files:     refs,
	})

	stdout := result.Stdout
	if stdout == "" && result.Status == types.StatusOK {
		stdout = lang.EmptyOutputHint()
	}

	outFiles := make([]fileRef, 0, len(result.Files))
	for _, f := range result.Files {
		outFiles = append(outFiles, fileRef{ID: f.ID, Name: f.Filename, Path: f.Filepath})
	}

	run := runResult{
		Stdout: stdout,
		Stderr: result.Stderr,
		Status: string(result.Status),
	}
	if m := result.Metrics; m != nil {
		run.Memory = m.MemoryUsage
		run.CPUTime = m.CPUUsage
		run.WallTime = m.ExecutionTime
	}

	return executeResponse{
		Run:       run,
		Language:  string(lang),
		Version:   h.cfg.VersionFor(lang),
		SessionID: sessionID,
		Files:     outFiles,
	}
}

// Upload stores one or more multipart files under a fresh session.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		badRequest(w, "invalid multipart request: "+err.Error())
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		badRequest(w, "no files provided")
		return
	}

	sessionID := ident.New()
	uploaded := make([]fileObject, 0, len(headers))
	for _, fh := range headers {
		rec, ok := h.saveUpload(w, r, sessionID, fh)
		if !ok {
			return
		}
		uploaded = append(uploaded, fileObjectFrom(rec))
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Message:   "success",
		SessionID: sessionID,
		Files:     uploaded,
	})
}

// saveUpload persists one multipart part, mapping manager errors onto HTTP
// statuses. A false return means the response has been written.
func (h *Handler) saveUpload(w http.ResponseWriter, r *http.Request, sessionID string, fh *multipart.FileHeader) (*types.FileRecord, bool) {
	f, err := fh.Open()
	if err != nil {
		internalServerError(w, "failed to read upload: "+err.Error())
		return nil, false
	}
	defer f.Close()

	rec, err := h.fm.Save(r.Context(), sessionID, fh.Filename, f)
	switch {
	case errors.Is(err, files.ErrFileTooLarge):
		payloadTooLarge(w, fmt.Sprintf("File %s exceeds size limit", fh.Filename))
		return nil, false
	case errors.Is(err, files.ErrExtensionNotAllowed):
		badRequest(w, err.Error())
		return nil, false
	case err != nil:
		h.logger.Error().Err(err).Str("filename", fh.Filename).Msg("Upload failed")
		internalServerError(w, "Internal server error during file upload")
		return nil, false
	}
	return rec, true
}

// Download streams a file back as an attachment.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	fileID := chi.URLParam(r, "file_id")

	rec, rc, err := h.fm.Open(r.Context(), sessionID, fileID)
	if errors.Is(err, store.ErrFileNotFound) {
		notFound(w, fmt.Sprintf("File %s not found", fileID))
		return
	}
	if err != nil {
		internalServerError(w, err.Error())
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", rec.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.OriginalFilename))
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn().Err(err).Str("file_id", fileID).Msg("Download interrupted")
	}
}

// ListFiles returns the metadata of every file in a session.
func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	recs, err := h.fm.List(r.Context(), sessionID)
	if err != nil {
		internalServerError(w, err.Error())
		return
	}

	out := make([]fileObject, 0, len(recs))
	for i := range recs {
		out = append(out, fileObjectFrom(&recs[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// DeleteFile removes one file's content and metadata.
func (h *Handler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	fileID := chi.URLParam(r, "file_id")

	err := h.fm.Delete(r.Context(), sessionID, fileID)
	if errors.Is(err, store.ErrFileNotFound) {
		notFound(w, fmt.Sprintf("File %s not found", fileID))
		return
	}
	if err != nil {
		internalServerError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Message: "File deleted successfully"})
}

// Containers reports the currently running sandbox containers.
func (h *Handler) Containers(w http.ResponseWriter, _ *http.Request) {
	active := h.engine.ActiveContainers()
	if active == nil {
		active = []types.ContainerMetrics{}
	}
	writeJSON(w, http.StatusOK, active)
}
