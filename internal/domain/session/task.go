package session

import (
	_ "embed"
	"fmt"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/valyala/fasttemplate"
)

//go:embed templates/task.js.tmpl
var taskTemplateSource string

var taskTemplate = fasttemplate.New(taskTemplateSource, "{{", "}}")

// taskParams are the values substituted into the task script.
// Strings are emitted as JSON literals; the payload is raw script.
type taskParams struct {
	SessionID            string
	Cookie               string
	IsFirstPageLoad      bool
	ServiceMsgURL        string
	IE9FileReaderShimURL string
	CrossDomainPort      int
	Referer              string
	PayloadScript        string
}

func renderTask(p taskParams) (string, error) {
	values := map[string]interface{}{
		"isFirstPageLoad": strconv.FormatBool(p.IsFirstPageLoad),
		"crossDomainPort": strconv.Itoa(p.CrossDomainPort),
		"payloadScript":   p.PayloadScript,
	}

	literals := map[string]string{
		"sessionId":            p.SessionID,
		"cookie":               p.Cookie,
		"serviceMsgUrl":        p.ServiceMsgURL,
		"ie9FileReaderShimUrl": p.IE9FileReaderShimURL,
		"referer":              p.Referer,
	}
	for tag, value := range literals {
		encoded, err := sonic.MarshalString(value)
		if err != nil {
			return "", fmt.Errorf("encode %s: %w", tag, err)
		}
		values[tag] = encoded
	}

	return taskTemplate.ExecuteString(values), nil
}
