package session

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/tidwall/gjson"
)

// Command names a service message sent by the client runtime
type Command string

const (
	CmdSetCookie           Command = "setCookie"
	CmdGetIframeTaskScript Command = "getIframeTaskScript"
	CmdUploadFiles         Command = "uploadFiles"
	CmdGetUploadedFiles    Command = "getUploadedFiles"
)

// Message is a decoded service message. The set of implementations is closed.
type Message interface {
	Command() Command
}

// SetCookie assigns document.cookie on a page
type SetCookie struct {
	URL    string `json:"url"`
	Cookie string `json:"cookie"`
}

// GetIframeTaskScript requests the task script of a same-domain iframe
type GetIframeTaskScript struct {
	Referer string `json:"referer"`
}

// UploadFiles stores base64 encoded files
type UploadFiles struct {
	FileNames []string `json:"fileNames"`
	Data      []string `json:"data"`
}

// GetUploadedFiles reads stored files back
type GetUploadedFiles struct {
	FilePaths []string `json:"filePaths"`
}

func (SetCookie) Command() Command           { return CmdSetCookie }
func (GetIframeTaskScript) Command() Command { return CmdGetIframeTaskScript }
func (UploadFiles) Command() Command         { return CmdUploadFiles }
func (GetUploadedFiles) Command() Command    { return CmdGetUploadedFiles }

// PeekSessionID returns the sessionId field of a raw service message
func PeekSessionID(body []byte) string {
	return gjson.GetBytes(body, "sessionId").String()
}

// ParseMessage decodes a raw service message into its typed command
func ParseMessage(body []byte) (Message, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformedMessage)
	}

	cmd := gjson.GetBytes(body, "cmd")
	if cmd.Type != gjson.String {
		return nil, fmt.Errorf("%w: missing cmd", ErrMalformedMessage)
	}

	var msg Message
	var err error

	switch Command(cmd.Str) {
	case CmdSetCookie:
		var m SetCookie
		err = sonic.Unmarshal(body, &m)
		msg = m
	case CmdGetIframeTaskScript:
		var m GetIframeTaskScript
		err = sonic.Unmarshal(body, &m)
		msg = m
	case CmdUploadFiles:
		var m UploadFiles
		err = sonic.Unmarshal(body, &m)
		msg = m
	case CmdGetUploadedFiles:
		var m GetUploadedFiles
		err = sonic.Unmarshal(body, &m)
		msg = m
	default:
		return nil, fmt.Errorf("%w: unknown command %q", ErrMalformedMessage, cmd.Str)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedMessage, cmd.Str, err)
	}
	return msg, nil
}
