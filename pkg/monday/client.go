// Package monday is a small typed gateway to the monday.com GraphQL API v2.
package monday

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/acostock/stocksuite/pkg/whttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
)

const (
	DefaultURL        = "https://api.monday.com/v2"
	DefaultAPIVersion = "2023-10"
	// MaxPages bounds every cursor walk.
	MaxPages = 30
	// PageSize is the items_page limit used for board and group scans.
	PageSize = 200
)

type Options struct {
	Token      string
	URL        string
	APIVersion string
	RetryMax   int
	Timeout    time.Duration
	// HTTPClient overrides the retrying client built from RetryMax/Timeout.
	HTTPClient *retryablehttp.Client
}

type Client struct {
	token      string
	url        string
	apiVersion string
	http       *retryablehttp.Client
}

func NewClient(opts Options) (*Client, error) {
	token := strings.TrimSpace(opts.Token)
	if token == "" {
		return nil, ErrMissingToken
	}
	c := &Client{
		token:      token,
		url:        opts.URL,
		apiVersion: opts.APIVersion,
		http:       opts.HTTPClient,
	}
	if c.url == "" {
		c.url = DefaultURL
	}
	if c.apiVersion == "" {
		c.apiVersion = DefaultAPIVersion
	}
	if c.http == nil {
		retryMax := opts.RetryMax
		if retryMax < 0 {
			retryMax = 0
		}
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		c.http = whttp.NewClient(retryMax, timeout)
	}
	return c, nil
}

// Request is one GraphQL operation. Versioned sends the API-Version header;
// a few mutations behave differently across versions so callers choose.
type Request struct {
	Query     string
	Variables map[string]interface{}
	Versioned bool
}

// Do executes req and returns the "data" object of the response.
func (c *Client) Do(ctx context.Context, req Request) (gjson.Result, error) {
	body, err := json.Marshal(struct {
		Query     string                 `json:"query"`
		Variables map[string]interface{} `json:"variables,omitempty"`
	}{req.Query, req.Variables})
	if err != nil {
		return gjson.Result{}, fmt.Errorf("encoding request: %w", err)
	}

	headers := []whttp.WHTTPHeader{
		{Name: "Content-Type", Value: "application/json"},
		{Name: "Authorization", Value: c.token},
	}
	if req.Versioned {
		headers = append(headers, whttp.WHTTPHeader{Name: "API-Version", Value: c.apiVersion})
	}

	res, err := whttp.SendHTTPRequest(ctx, &whttp.WHTTPReq{
		Method:  "POST",
		URL:     c.url,
		Headers: headers,
		Body:    body,
	}, c.http)
	if err != nil {
		return gjson.Result{}, &TransportError{Err: err}
	}
	if res.StatusCode >= 400 {
		return gjson.Result{}, &TransportError{StatusCode: res.StatusCode, Body: res.BodyString}
	}
	if !gjson.Valid(res.BodyString) {
		return gjson.Result{}, &TransportError{StatusCode: res.StatusCode, Body: res.BodyString, Err: fmt.Errorf("malformed response body")}
	}

	if err := apiError(res.BodyString); err != nil {
		return gjson.Result{}, err
	}
	return gjson.Get(res.BodyString, "data"), nil
}

func apiError(body string) error {
	if errs := gjson.Get(body, "errors"); errs.IsArray() && len(errs.Array()) > 0 {
		ae := &APIError{}
		for _, e := range errs.Array() {
			msg := e.Get("message").String()
			if msg == "" {
				msg = e.Raw
			}
			ae.Messages = append(ae.Messages, msg)
			if ae.Code == "" {
				ae.Code = e.Get("extensions.code").String()
			}
		}
		return ae
	}
	if msg := gjson.Get(body, "error_message"); msg.Exists() && msg.String() != "" {
		return &APIError{Messages: []string{msg.String()}, Code: gjson.Get(body, "error_code").String()}
	}
	return nil
}
