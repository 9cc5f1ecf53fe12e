package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/voicetyped/adaptive/pkg/activity"
	"github.com/voicetyped/adaptive/pkg/dialog"
	"github.com/voicetyped/adaptive/pkg/expression"
	"github.com/voicetyped/adaptive/pkg/hooks"
)

// HTTPClient performs the outbound call of an HTTPRequest action.
// *hooks.Executor implements it.
type HTTPClient interface {
	Do(ctx context.Context, req hooks.Request) (*hooks.Response, error)
}

// ResponseType selects how an HTTPRequest decodes the response body.
type ResponseType string

const (
	ResponseNone       ResponseType = "none"
	ResponseJSON       ResponseType = "json"
	ResponseActivity   ResponseType = "activity"
	ResponseActivities ResponseType = "activities"
	ResponseBinary     ResponseType = "binary"
)

// HTTPResult is stored in the result property of an HTTPRequest.
type HTTPResult struct {
	StatusCode   int               `json:"statusCode"`
	ReasonPhrase string            `json:"reasonPhrase"`
	Headers      map[string]string `json:"headers"`
	Content      any               `json:"content"`
}

// HTTPRequest calls an HTTP endpoint. Strings in the URL, headers and body
// are resolved against memory first. A response with a non-2xx status is a
// result like any other; only transport failures are errors.
type HTTPRequest struct {
	Base `yaml:",inline"`
	Method         string                                 `yaml:"method"`
	URL            expression.StringExpression            `yaml:"url"`
	Headers        map[string]expression.StringExpression `yaml:"headers"`
	Body           expression.ValueExpression             `yaml:"body"`
	ContentType    string                                 `yaml:"contentType"`
	ResponseType   ResponseType                           `yaml:"responseType"`
	ResultProperty expression.StringExpression            `yaml:"resultProperty"`
	Auth           hooks.Auth                             `yaml:"auth"`

	Client HTTPClient `yaml:"-"`
}

func (a *HTTPRequest) ID() string {
	return a.idOr(func() string {
		return derivedID("HttpRequest", strings.ToUpper(a.method())+" "+a.URL.String())
	})
}

func (a *HTTPRequest) method() string {
	if a.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(a.Method)
}

func (a *HTTPRequest) BeginDialog(ctx context.Context, dc *dialog.Context, _ any) (dialog.TurnResult, error) {
	if res, skipped, err := a.skipIfDisabled(ctx, dc); skipped || err != nil {
		return res, err
	}
	if a.Client == nil {
		return dialog.TurnResult{}, configError("%s: no HTTP client configured", a.ID())
	}

	req, err := a.buildRequest(dc)
	if err != nil {
		return dialog.TurnResult{}, fmt.Errorf("%s: %w", a.ID(), err)
	}
	resp, err := a.Client.Do(ctx, req)
	if err != nil {
		return dialog.TurnResult{}, fmt.Errorf("%s: %w", a.ID(), err)
	}

	result := HTTPResult{
		StatusCode:   resp.StatusCode,
		ReasonPhrase: resp.Status,
		Headers:      resp.Headers,
	}
	if result.Content, err = a.decode(ctx, dc, resp); err != nil {
		return dialog.TurnResult{}, fmt.Errorf("%s: %w", a.ID(), err)
	}

	value := map[string]any{
		"statusCode":   result.StatusCode,
		"reasonPhrase": result.ReasonPhrase,
		"headers":      headersAsMap(result.Headers),
		"content":      result.Content,
	}
	if !a.ResultProperty.IsEmpty() {
		path, err := a.ResultProperty.Eval(dc)
		if err != nil {
			return dialog.TurnResult{}, fmt.Errorf("%s: evaluate resultProperty: %w", a.ID(), err)
		}
		if err := dc.SetValue(path, value); err != nil {
			return dialog.TurnResult{}, fmt.Errorf("%s: %w", a.ID(), err)
		}
	}
	return dc.EndDialog(ctx, dialog.Value(value))
}

func (a *HTTPRequest) buildRequest(dc *dialog.Context) (hooks.Request, error) {
	url, err := a.URL.Eval(dc)
	if err != nil {
		return hooks.Request{}, fmt.Errorf("evaluate url: %w", err)
	}
	if url == "" {
		return hooks.Request{}, configError("url is required")
	}

	headers := make(map[string]string, len(a.Headers)+1)
	for k, h := range a.Headers {
		v, err := h.Eval(dc)
		if err != nil {
			return hooks.Request{}, fmt.Errorf("evaluate header %s: %w", k, err)
		}
		headers[k] = v
	}

	var body []byte
	if !a.Body.IsEmpty() {
		v, err := a.Body.Eval(dc)
		if err != nil {
			return hooks.Request{}, fmt.Errorf("evaluate body: %w", err)
		}
		if v, err = expression.Resolve(dc, v); err != nil {
			return hooks.Request{}, fmt.Errorf("resolve body: %w", err)
		}
		if s, ok := v.(string); ok {
			body = []byte(s)
		} else if body, err = json.Marshal(v); err != nil {
			return hooks.Request{}, fmt.Errorf("encode body: %w", err)
		}
		ct := a.ContentType
		if ct == "" {
			ct = "application/json"
		}
		headers["Content-Type"] = ct
	}

	return hooks.Request{
		Method:         a.method(),
		URL:            url,
		Headers:        headers,
		Body:           body,
		Auth:           a.Auth,
		ConversationID: dc.Turn.ConversationID,
	}, nil
}

func (a *HTTPRequest) decode(ctx context.Context, dc *dialog.Context, resp *hooks.Response) (any, error) {
	switch a.ResponseType {
	case ResponseNone:
		return nil, nil
	case ResponseBinary:
		return resp.Body, nil
	case ResponseActivity, ResponseActivities:
		if !resp.OK() {
			return string(resp.Body), nil
		}
		var content any
		if err := json.Unmarshal(resp.Body, &content); err != nil {
			return nil, fmt.Errorf("decode %s: %w", a.ResponseType, err)
		}
		var acts []*activity.Activity
		if a.ResponseType == ResponseActivity {
			var act activity.Activity
			if err := json.Unmarshal(resp.Body, &act); err != nil {
				return nil, fmt.Errorf("decode activity: %w", err)
			}
			acts = append(acts, &act)
		} else if err := json.Unmarshal(resp.Body, &acts); err != nil {
			return nil, fmt.Errorf("decode activities: %w", err)
		}
		if err := sendAll(ctx, dc, acts); err != nil {
			return nil, err
		}
		return content, nil
	}

	// json is the default.
	if len(resp.Body) == 0 {
		return nil, nil
	}
	var content any
	if err := json.Unmarshal(resp.Body, &content); err != nil {
		return string(resp.Body), nil
	}
	return content, nil
}

func sendAll(ctx context.Context, dc *dialog.Context, acts []*activity.Activity) error {
	if dc.Turn.Adapter == nil {
		return fmt.Errorf("send activity: no adapter for this turn")
	}
	for _, act := range acts {
		if _, err := dc.Turn.Adapter.SendActivity(ctx, act); err != nil {
			return fmt.Errorf("send activity: %w", err)
		}
	}
	return nil
}

func headersAsMap(h map[string]string) map[string]any {
	out := make(map[string]any, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
