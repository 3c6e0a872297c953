package api

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cuemby/burrow/pkg/files"
	"github.com/cuemby/burrow/pkg/ident"
	"github.com/cuemby/burrow/pkg/store"
	"github.com/cuemby/burrow/pkg/types"
)

// The adapter surface re-exposes the base operations under the shapes the
// downstream chat client expects: flat stdout/stderr execution results,
// fileId/filename upload objects and composite session/file names in
// listings. Errors are `{"message": ...}` objects rather than problem
// documents.

type adapterError struct {
	Message string `json:"message"`
}

type adapterExecuteResponse struct {
	SessionID string    `json:"session_id"`
	Stdout    string    `json:"stdout"`
	Stderr    string    `json:"stderr"`
	Files     []fileRef `json:"files,omitempty"`
}

type adapterUploadFile struct {
	FileID   string `json:"fileId"`
	Filename string `json:"filename"`
}

type adapterUploadResponse struct {
	Message   string              `json:"message"`
	SessionID string              `json:"session_id"`
	Files     []adapterUploadFile `json:"files"`
}

type adapterFileObject struct {
	Name         string `json:"name"` // "<session_id>/<file_id>"
	LastModified string `json:"lastModified"`
}

func writeAdapterError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, adapterError{Message: message})
}

// apiKeyAuth guards the adapter surface with the shared X-Api-Key secret.
func (h *Handler) apiKeyAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.cfg.APIKey == "" {
			writeAdapterError(w, http.StatusInternalServerError, "API key is not configured")
			return
		}
		provided := r.Header.Get("X-Api-Key")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(h.cfg.APIKey)) != 1 {
			writeAdapterError(w, http.StatusUnauthorized, "Invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AdapterExecute runs code and returns the flattened result. An unsupported
// language is reported as a 200 with the explanation in stdout; the chat
// client renders that to the end user instead of failing the tool call.
func (h *Handler) AdapterExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeAdapterError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	lang, err := types.ParseLanguage(req.Lang)
	if err != nil {
		writeJSON(w, http.StatusOK, adapterExecuteResponse{
			Stdout: err.Error(),
			Files:  []fileRef{},
		})
		return
	}

	resp := h.runExecution(r.Context(), req, lang)
	writeJSON(w, http.StatusOK, adapterExecuteResponse{
		SessionID: resp.SessionID,
		Stdout:    resp.Run.Stdout,
		Stderr:    resp.Run.Stderr,
		Files:     resp.Files,
	})
}

// AdapterUpload stores a single multipart "file", optionally appending to an
// existing session passed as a form field.
func (h *Handler) AdapterUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeAdapterError(w, http.StatusBadRequest, "invalid multipart request: "+err.Error())
		return
	}

	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		writeAdapterError(w, http.StatusBadRequest, "no file provided")
		return
	}
	fh := headers[0]

	sessionID := r.FormValue("session_id")
	if sessionID == "" {
		sessionID = ident.New()
	}

	f, err := fh.Open()
	if err != nil {
		writeAdapterError(w, http.StatusBadRequest, "failed to read upload: "+err.Error())
		return
	}
	defer f.Close()

	rec, err := h.fm.Save(r.Context(), sessionID, fh.Filename, f)
	switch {
	case errors.Is(err, files.ErrFileTooLarge):
		writeAdapterError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("File exceeds size limit of %d bytes", h.cfg.FileMaxUploadSize))
		return
	case errors.Is(err, files.ErrExtensionNotAllowed):
		writeAdapterError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.logger.Error().Err(err).Str("filename", fh.Filename).Msg("Adapter upload failed")
		writeAdapterError(w, http.StatusInternalServerError, "File upload failed")
		return
	}

	writeJSON(w, http.StatusOK, adapterUploadResponse{
		Message:   "success",
		SessionID: sessionID,
		Files:     []adapterUploadFile{{FileID: rec.ID, Filename: rec.Filename}},
	})
}

// AdapterDownload streams a file; not-found maps to the adapter error shape.
func (h *Handler) AdapterDownload(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	fileID := chi.URLParam(r, "file_id")

	rec, rc, err := h.fm.Open(r.Context(), sessionID, fileID)
	if err != nil {
		writeAdapterError(w, http.StatusNotFound, fmt.Sprintf("File %s not found", fileID))
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", rec.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.OriginalFilename))
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn().Err(err).Str("file_id", fileID).Msg("Adapter download interrupted")
	}
}

// AdapterListFiles lists a session's files under composite names.
func (h *Handler) AdapterListFiles(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	recs, err := h.fm.List(r.Context(), sessionID)
	if err != nil {
		writeAdapterError(w, http.StatusBadRequest, err.Error())
		return
	}

	out := make([]adapterFileObject, 0, len(recs))
	for _, rec := range recs {
		out = append(out, adapterFileObject{
			Name:         rec.SessionID + "/" + rec.ID,
			LastModified: rec.LastModified.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// AdapterDeleteFile removes one file.
func (h *Handler) AdapterDeleteFile(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	fileID := chi.URLParam(r, "file_id")

	err := h.fm.Delete(r.Context(), sessionID, fileID)
	if errors.Is(err, store.ErrFileNotFound) {
		writeAdapterError(w, http.StatusNotFound, fmt.Sprintf("File %s not found", fileID))
		return
	}
	if err != nil {
		writeAdapterError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Message: "File deleted successfully"})
}
