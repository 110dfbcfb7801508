package http

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/GriffinCanCode/sessionproxy/internal/domain/router"
	"github.com/GriffinCanCode/sessionproxy/internal/domain/session"
	"github.com/GriffinCanCode/sessionproxy/internal/domain/upload"
	"github.com/GriffinCanCode/sessionproxy/internal/shared/types"
	"github.com/bytedance/sonic"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

const (
	scriptContentType = "application/x-javascript"
	shimFormField     = "file"
	shimMaxMemory     = 8 << 20
)

// ErrSessionNotOpened is reported to clients messaging a session the proxy
// does not know
var ErrSessionNotOpened = errors.New("session is not opened in proxy")

// RegisterRoutes adds the proxy-internal routes. A nil clientScript serves
// DefaultClientScript.
func (h *Handlers) RegisterRoutes(r *router.Router, clientScript []byte) {
	if len(clientScript) == 0 {
		clientScript = DefaultClientScript
	}

	r.GET(session.ClientScriptPath, router.StaticContent{
		ContentType: scriptContentType,
		Content:     clientScript,
	})
	r.GET(session.TaskScriptPath, router.Handler(h.taskScript(false)))
	r.GET(session.IframeTaskScriptPath, router.Handler(h.taskScript(true)))
	r.POST(session.ServiceMessagePath, router.Handler(h.serviceMessage))
	r.POST(session.FileReaderShimPath, router.Handler(h.fileReaderShim))
	r.GET(session.UploadedFilePath, router.Handler(h.uploadedFile))
}

// taskScript serves the task script of the page named by the Referer
func (h *Handlers) taskScript(isIframe bool) router.Handler {
	return func(w http.ResponseWriter, r *http.Request, info types.ServerInfo, _ router.Params) {
		referer := r.Header.Get("Referer")
		fields, ok := h.codec.Decode(referer)
		if !ok {
			http.NotFound(w, r)
			return
		}

		s, found := h.sessions.Get(fields.SessionID)
		if !found {
			http.NotFound(w, r)
			return
		}

		script, err := s.TaskScript(referer, fields.DestURL, info, isIframe, true)
		if err != nil {
			h.logger.Error("Failed to render task script",
				zap.String("session_id", s.ID()),
				zap.Error(err))
			writeError(w, http.StatusInternalServerError, err)
			return
		}

		setNoCache(w)
		w.Header().Set("Content-Type", scriptContentType)
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, script)
	}
}

// serviceMessage runs a client command and answers with its JSON result
func (h *Handlers) serviceMessage(w http.ResponseWriter, r *http.Request, info types.ServerInfo, _ router.Params) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxMessageSize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}

	s, found := h.sessions.Get(session.PeekSessionID(body))
	if !found {
		h.metrics.RecordServiceMessage("unknown", "no_session")
		writeError(w, http.StatusInternalServerError, ErrSessionNotOpened)
		return
	}

	msg, err := session.ParseMessage(body)
	if err != nil {
		h.metrics.RecordServiceMessage("unknown", "malformed")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	cmd := string(msg.Command())

	result, err := s.HandleServiceMessage(r.Context(), msg, info)
	if err != nil {
		h.logger.Info("Service message failed",
			zap.String("session_id", s.ID()),
			zap.String("cmd", cmd),
			zap.Error(err))
		h.metrics.RecordServiceMessage(cmd, "error")
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	h.metrics.RecordServiceMessage(cmd, "ok")
	writeJSON(w, http.StatusOK, result)
}

type shimResponse struct {
	Data string          `json:"data"`
	Info upload.FileInfo `json:"info"`
}

// fileReaderShim echoes a posted file back as base64 with its metadata, for
// browsers without a FileReader
func (h *Handlers) fileReaderShim(w http.ResponseWriter, r *http.Request, _ types.ServerInfo, _ router.Params) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxMessageSize)
	if err := r.ParseMultipartForm(shimMaxMemory); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(shimFormField)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mimetype.Detect(content).String()
	}

	data, err := sonic.Marshal(shimResponse{
		Data: base64.StdEncoding.EncodeToString(content),
		Info: upload.FileInfo{
			Type:             contentType,
			Name:             filepath.Base(header.Filename),
			Size:             int64(len(content)),
			LastModifiedDate: time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	// The shim posts from a hidden iframe form, which reads the body as a document
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// uploadedFile serves a file stored for an open session
func (h *Handlers) uploadedFile(w http.ResponseWriter, r *http.Request, _ types.ServerInfo, params router.Params) {
	s, found := h.sessions.Get(params["sessionId"])
	if !found || s.Uploads() == nil {
		http.NotFound(w, r)
		return
	}

	path, err := s.Uploads().Path(s.ID(), params["fileName"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil || stat.IsDir() {
		http.NotFound(w, r)
		return
	}

	if mtype, err := mimetype.DetectReader(f); err == nil {
		w.Header().Set("Content-Type", mtype.String())
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("rewind upload: %w", err))
		return
	}

	http.ServeContent(w, r, stat.Name(), stat.ModTime(), f)
}
