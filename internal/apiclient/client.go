package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mt5-command-server/internal/build"
	"mt5-command-server/internal/models"
	"mt5-command-server/internal/rest"

	"github.com/vmihailenco/msgpack/v5"
)

// DefaultTimeout is above the server's default write timeout, so the server always answers first
const DefaultTimeout = 120 * time.Second

// APIError is returned when the server answers with a non 2xx status
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to an MT5 command server
type Client struct {
	baseURL     *url.URL
	userAgent   string
	contentType string
	HTTPClient  *http.Client
}

func NewClient(baseURL string) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %s, error: %v", baseURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL: %s, scheme must be http or https", baseURL)
	}

	return &Client{
		baseURL:     parsed,
		userAgent:   "mt5-client v" + build.Version,
		contentType: rest.ContentTypeJSON,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}, nil
}

func (c *Client) Close() {
	c.HTTPClient.CloseIdleConnections()
}

func (c *Client) SetTimeout(timeout time.Duration) *Client {
	c.HTTPClient.Timeout = timeout
	return c
}

// SetContentType selects the request encoding, rest.ContentTypeJSON or rest.ContentTypeMsgPack
func (c *Client) SetContentType(contentType string) *Client {
	c.contentType = contentType
	return c
}

func (c *Client) Health(ctx context.Context) (*models.HealthResponse, error) {
	var response models.HealthResponse
	if err := c.do(ctx, http.MethodGet, "health", nil, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

func (c *Client) UploadScript(ctx context.Context, filename, script, account string) (*models.UploadResponse, error) {
	request := &models.UploadRequest{
		Script:   script,
		Filename: filename,
		Account:  models.Account(account),
	}

	var response models.UploadResponse
	if err := c.do(ctx, http.MethodPost, "upload-script", request, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

func (c *Client) ExecuteScript(ctx context.Context, scriptName, account string) (*models.ExecuteResponse, error) {
	request := &models.ExecuteRequest{
		ScriptName: scriptName,
		Account:    models.Account(account),
	}

	var response models.ExecuteResponse
	if err := c.do(ctx, http.MethodPost, "execute-script", request, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

func (c *Client) GetLogs(ctx context.Context) (*models.LogsResponse, error) {
	var response models.LogsResponse
	if err := c.do(ctx, http.MethodGet, "get-logs", nil, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

func (c *Client) resolve(path string) string {
	base := *c.baseURL
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	return base.ResolveReference(&url.URL{Path: path}).String()
}

func (c *Client) do(ctx context.Context, method, path string, request interface{}, response interface{}) error {
	var body io.Reader
	if request != nil {
		var data []byte
		var err error
		if c.contentType == rest.ContentTypeMsgPack {
			data, err = msgpack.Marshal(request)
		} else {
			data, err = json.Marshal(request)
		}
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), body)
	if err != nil {
		return err
	}

	req.Header.Set("Accept", c.contentType)
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", c.contentType)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var errResp models.ErrorResponse
		if decode(resp, &errResp) == nil && errResp.Message != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Message}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	if err := decode(resp, response); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decode(resp *http.Response, v interface{}) error {
	if strings.Contains(resp.Header.Get("Content-Type"), rest.ContentTypeMsgPack) {
		return msgpack.NewDecoder(resp.Body).Decode(v)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
