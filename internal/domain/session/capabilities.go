package session

import (
	"fmt"
	"net/http"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
)

// Exchange is the view of an in-flight proxied request that capabilities act on
type Exchange interface {
	Request() *http.Request
	DestinationURL() string
	CloseWithError(status int, body string)
}

// Credentials are the basic-auth credentials sent on a 401 destination response
type Credentials struct {
	Username string `json:"username" yaml:"username" toml:"username"`
	Password string `json:"password" yaml:"password" toml:"password"`
}

// Capabilities are the hooks a deployment provides to a session
type Capabilities interface {
	// PayloadScript is appended to the task script of top-level pages
	PayloadScript() (string, error)
	// IframePayloadScript is appended to the task script of iframes
	IframePayloadScript() (string, error)
	// HandleFileDownload is called when a destination responds with an attachment
	HandleFileDownload(ex Exchange) error
	// HandlePageError is called when a top-level page cannot be fetched
	HandlePageError(ex Exchange, message string) error
	// AuthCredentials answers destination auth challenges
	AuthCredentials() (Credentials, error)
}

// Unimplemented provides no capabilities; every hook returns ErrNotImplemented
type Unimplemented struct{}

func (Unimplemented) PayloadScript() (string, error)         { return "", ErrNotImplemented }
func (Unimplemented) IframePayloadScript() (string, error)   { return "", ErrNotImplemented }
func (Unimplemented) HandleFileDownload(Exchange) error      { return ErrNotImplemented }
func (Unimplemented) HandlePageError(Exchange, string) error { return ErrNotImplemented }
func (Unimplemented) AuthCredentials() (Credentials, error)  { return Credentials{}, ErrNotImplemented }

// DeploymentConfig configures a Deployment
type DeploymentConfig struct {
	PayloadScript       string
	IframePayloadScript string
	Credentials         *Credentials
	OnFileDownload      func(ex Exchange)
}

// Deployment is a Capabilities implementation driven by static configuration
type Deployment struct {
	cfg    DeploymentConfig
	policy *bluemonday.Policy
	logger *zap.Logger
}

// NewDeployment creates deployment capabilities
func NewDeployment(cfg DeploymentConfig, logger *zap.Logger) *Deployment {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deployment{
		cfg:    cfg,
		policy: bluemonday.StrictPolicy(),
		logger: logger,
	}
}

func (d *Deployment) PayloadScript() (string, error) {
	return d.cfg.PayloadScript, nil
}

func (d *Deployment) IframePayloadScript() (string, error) {
	return d.cfg.IframePayloadScript, nil
}

func (d *Deployment) HandleFileDownload(ex Exchange) error {
	d.logger.Info("File download",
		zap.String("url", ex.DestinationURL()))

	if d.cfg.OnFileDownload != nil {
		d.cfg.OnFileDownload(ex)
	}
	return nil
}

const pageErrorTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Page failed to load</title></head>
<body>
<h1>Failed to load the page</h1>
<p>%s</p>
<pre>%s</pre>
</body>
</html>`

// HandlePageError answers the browser with an error page. Both the URL and
// the message are stripped of markup.
func (d *Deployment) HandlePageError(ex Exchange, message string) error {
	d.logger.Warn("Page error",
		zap.String("url", ex.DestinationURL()),
		zap.String("error", message))

	body := fmt.Sprintf(pageErrorTemplate,
		d.policy.Sanitize(ex.DestinationURL()),
		d.policy.Sanitize(message))

	ex.CloseWithError(http.StatusBadGateway, body)
	return nil
}

func (d *Deployment) AuthCredentials() (Credentials, error) {
	if d.cfg.Credentials == nil {
		return Credentials{}, ErrNotImplemented
	}
	return *d.cfg.Credentials, nil
}
