package types

// CreateSessionRequest opens a new test session
type CreateSessionRequest struct {
	ID      string   `json:"id,omitempty"`
	Scripts []string `json:"scripts,omitempty"`
	Styles  []string `json:"styles,omitempty"`
}

// ProxyURLRequest asks for the proxy URL of a destination
type ProxyURLRequest struct {
	URL          string `json:"url" binding:"required"`
	ResourceType string `json:"resourceType,omitempty"`
	Charset      string `json:"charset,omitempty"`
	CrossDomain  bool   `json:"crossDomain,omitempty"`
}

// ErrorResponse is the JSON body of a failed request
type ErrorResponse struct {
	Error string `json:"error"`
}
