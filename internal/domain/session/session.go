package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/sessionproxy/internal/domain/cookies"
	"github.com/GriffinCanCode/sessionproxy/internal/domain/upload"
	"github.com/GriffinCanCode/sessionproxy/internal/shared/id"
	"github.com/GriffinCanCode/sessionproxy/internal/shared/types"
	"github.com/GriffinCanCode/sessionproxy/internal/shared/urlcodec"
	"go.uber.org/zap"
)

const (
	// ClientScriptPath serves the browser-side runtime
	ClientScriptPath = "/proxy-client.js"
	// ServiceMessagePath receives client service messages
	ServiceMessagePath = "/messaging"
	// FileReaderShimPath receives files posted by the legacy FileReader shim
	FileReaderShimPath = "/ie9-file-reader-shim"
	// TaskScriptPath serves the task script of top-level pages
	TaskScriptPath = "/task.js"
	// IframeTaskScriptPath serves the task script of iframes
	IframeTaskScriptPath = "/iframe-task.js"
	// UploadedFilePath serves stored uploads
	UploadedFilePath = "/uploads/{sessionId}/{fileName}"
)

// DefaultScripts are injected into every proxied page
var DefaultScripts = []string{ClientScriptPath}

// Injectable lists resources inserted into proxied pages, as paths on the proxy
type Injectable struct {
	Scripts []string `json:"scripts"`
	Styles  []string `json:"styles"`
}

// Options configures a new Session
type Options struct {
	ID           string // generated when empty
	IDLength     int
	Uploads      *upload.Storage
	Capabilities Capabilities
	Codec        urlcodec.Codec
	Injectable   *Injectable
	Logger       *zap.Logger
}

// Session is one test run on the proxy
type Session struct {
	id      string
	created time.Time

	mu            sync.Mutex // serialises cookie writes from the client
	cookies       *cookies.Jar
	uploads       *upload.Storage
	caps          Capabilities
	codec         urlcodec.Codec
	injectable    Injectable
	pageLoadCount atomic.Int64
	logger        *zap.Logger
}

// Snapshot is a read-only summary of a session
type Snapshot struct {
	ID            string     `json:"id"`
	Created       time.Time  `json:"created"`
	PageLoadCount int64      `json:"pageLoadCount"`
	Injectable    Injectable `json:"injectable"`
}

// New creates a session
func New(opts Options) *Session {
	sessionID := opts.ID
	if sessionID == "" {
		sessionID = id.Session(opts.IDLength)
	}

	caps := opts.Capabilities
	if caps == nil {
		caps = Unimplemented{}
	}

	codec := opts.Codec
	if codec == nil {
		codec = urlcodec.Default
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	injectable := Injectable{
		Scripts: append([]string{}, DefaultScripts...),
		Styles:  []string{},
	}
	if opts.Injectable != nil {
		injectable.Scripts = append([]string{}, opts.Injectable.Scripts...)
		injectable.Styles = append([]string{}, opts.Injectable.Styles...)
	}

	return &Session{
		id:         sessionID,
		created:    time.Now(),
		cookies:    cookies.NewJar(),
		uploads:    opts.Uploads,
		caps:       caps,
		codec:      codec,
		injectable: injectable,
		logger:     logger.With(zap.String("session", sessionID)),
	}
}

// ID returns the session id
func (s *Session) ID() string { return s.id }

// Cookies returns the session cookie jar
func (s *Session) Cookies() *cookies.Jar { return s.cookies }

// Capabilities returns the deployment hooks of the session
func (s *Session) Capabilities() Capabilities { return s.caps }

// Uploads returns the upload storage, nil when uploads are disabled
func (s *Session) Uploads() *upload.Storage { return s.uploads }

// PageLoadCount returns how many task scripts were issued
func (s *Session) PageLoadCount() int64 { return s.pageLoadCount.Load() }

// Injectable returns a copy of the injectable resource lists
func (s *Session) Injectable() Injectable {
	return Injectable{
		Scripts: append([]string{}, s.injectable.Scripts...),
		Styles:  append([]string{}, s.injectable.Styles...),
	}
}

// Snapshot summarises the session
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		ID:            s.id,
		Created:       s.created,
		PageLoadCount: s.PageLoadCount(),
		Injectable:    s.Injectable(),
	}
}

// TaskScript renders the script that starts the client runtime on a page.
// Only the first call of a session reports isFirstPageLoad. When withPayload
// is set the capabilities must supply the payload; ErrNotImplemented is
// returned as an error.
func (s *Session) TaskScript(referer, cookieURL string, info types.ServerInfo, isIframe, withPayload bool) (string, error) {
	var payload string
	if withPayload {
		var err error
		if isIframe {
			payload, err = s.caps.IframePayloadScript()
		} else {
			payload, err = s.caps.PayloadScript()
		}
		if err != nil {
			return "", fmt.Errorf("payload script: %w", err)
		}
	}

	var cookie string
	if cookieURL != "" {
		cookie = s.cookies.ClientString(cookieURL)
	}

	isFirstPageLoad := s.pageLoadCount.Add(1) == 1

	return renderTask(taskParams{
		SessionID:            s.id,
		Cookie:               cookie,
		IsFirstPageLoad:      isFirstPageLoad,
		ServiceMsgURL:        info.Domain + ServiceMessagePath,
		IE9FileReaderShimURL: info.Domain + FileReaderShimPath,
		CrossDomainPort:      info.CrossDomainPort,
		Referer:              referer,
		PayloadScript:        payload,
	})
}

// HandleServiceMessage executes a client command
func (s *Session) HandleServiceMessage(ctx context.Context, msg Message, info types.ServerInfo) (interface{}, error) {
	s.logger.Debug("Service message", zap.String("cmd", string(msg.Command())))

	switch m := msg.(type) {
	case SetCookie:
		return s.setCookie(m)
	case GetIframeTaskScript:
		return s.iframeTaskScript(m, info)
	case UploadFiles:
		if s.uploads == nil {
			return nil, fmt.Errorf("upload files: %w", ErrNotImplemented)
		}
		return s.uploads.Store(ctx, s.id, m.FileNames, m.Data)
	case GetUploadedFiles:
		if s.uploads == nil {
			return nil, fmt.Errorf("get uploaded files: %w", ErrNotImplemented)
		}
		return s.uploads.Get(ctx, s.id, m.FilePaths)
	}

	return nil, ErrMalformedMessage
}

func (s *Session) setCookie(m SetCookie) (string, error) {
	cookieURL := m.URL
	if fields, ok := s.codec.Decode(m.URL); ok {
		cookieURL = fields.DestURL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.cookies.SetByClient(cookieURL, m.Cookie); err != nil {
		s.logger.Debug("Ignoring client cookie", zap.Error(err))
	}
	return s.cookies.ClientString(cookieURL), nil
}

func (s *Session) iframeTaskScript(m GetIframeTaskScript, info types.ServerInfo) (string, error) {
	var cookieURL string
	if m.Referer != "" {
		if fields, ok := s.codec.Decode(m.Referer); ok {
			cookieURL = fields.DestURL
		}
	}
	return s.TaskScript(m.Referer, cookieURL, info, true, false)
}

// Close releases the session's uploaded files
func (s *Session) Close() error {
	if s.uploads == nil {
		return nil
	}
	return s.uploads.Remove(s.id)
}
