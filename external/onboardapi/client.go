package onboardapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/riskibarqy/learnhub-onboarding/internal/platform/logging"
)

const (
	defaultBaseURL   = "http://localhost:8080"
	defaultTimeout   = 15 * time.Second
	maxResponseBytes = 1 << 20
	maxImageBytes    = 8 << 20

	sessionPath = "/v1/onboarding/session"
)

type ClientConfig struct {
	HTTPClient  *http.Client
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
	Logger      *logging.Logger
}

// Client calls the onboarding HTTP API on behalf of one signed-in user.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *logging.Logger
}

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = timeout
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		token:      strings.TrimSpace(cfg.AccessToken),
		logger:     logger,
	}
}

func (c *Client) Steps(ctx context.Context) ([]Step, error) {
	return call[[]Step](ctx, c, http.MethodGet, "/v1/onboarding/steps", nil, "")
}

func (c *Client) Options(ctx context.Context) ([]FieldOptions, error) {
	return call[[]FieldOptions](ctx, c, http.MethodGet, "/v1/onboarding/options", nil, "")
}

// Start opens a fresh session. initialStep 0 starts at the first step.
func (c *Client) Start(ctx context.Context, initialStep int) (Session, error) {
	var body any = struct{}{}
	if initialStep > 0 {
		body = map[string]int{"initial_step": initialStep}
	}
	return c.sessionCall(ctx, http.MethodPost, sessionPath, body)
}

func (c *Client) Session(ctx context.Context) (Session, error) {
	return c.sessionCall(ctx, http.MethodGet, sessionPath, nil)
}

func (c *Client) Advance(ctx context.Context) (Session, error) {
	return c.sessionCall(ctx, http.MethodPost, sessionPath+"/advance", nil)
}

func (c *Client) Skip(ctx context.Context) (Session, error) {
	return c.sessionCall(ctx, http.MethodPost, sessionPath+"/skip", nil)
}

func (c *Client) Back(ctx context.Context) (Session, error) {
	return c.sessionCall(ctx, http.MethodPost, sessionPath+"/back", nil)
}

func (c *Client) Confirm(ctx context.Context) (Session, error) {
	return c.sessionCall(ctx, http.MethodPost, sessionPath+"/confirm", nil)
}

func (c *Client) DismissPopup(ctx context.Context) (Session, error) {
	return c.sessionCall(ctx, http.MethodDelete, sessionPath+"/popup", nil)
}

func (c *Client) SetField(ctx context.Context, field, value string) (Session, error) {
	return c.sessionCall(ctx, http.MethodPut, sessionPath+"/fields/"+field, map[string]any{"value": value})
}

func (c *Client) SetDateOfBirth(ctx context.Context, dob time.Time) (Session, error) {
	return c.sessionCall(ctx, http.MethodPut, sessionPath+"/date-of-birth", map[string]string{
		"date_of_birth": dob.Format(DateLayout),
	})
}

// UploadProfileImage sends the file at path as the session's profile picture.
func (c *Client) UploadProfileImage(ctx context.Context, path string) (Session, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Session{}, fmt.Errorf("image path is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return Session{}, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(path)))
	header.Set("Content-Type", imageContentType(path))
	part, err := mw.CreatePart(header)
	if err != nil {
		return Session{}, fmt.Errorf("create multipart part: %w", err)
	}
	n, err := io.Copy(part, io.LimitReader(f, maxImageBytes+1))
	if err != nil {
		return Session{}, fmt.Errorf("copy image: %w", err)
	}
	if n > maxImageBytes {
		return Session{}, fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}
	if err := mw.Close(); err != nil {
		return Session{}, fmt.Errorf("close multipart body: %w", err)
	}

	return call[Session](ctx, c, http.MethodPut, sessionPath+"/profile-image", buf.Bytes(), mw.FormDataContentType())
}

func (c *Client) sessionCall(ctx context.Context, method, path string, payload any) (Session, error) {
	var body []byte
	contentType := ""
	if payload != nil {
		raw, err := sonic.Marshal(payload)
		if err != nil {
			return Session{}, fmt.Errorf("encode request: %w", err)
		}
		body = raw
		contentType = "application/json"
	}

	return call[Session](ctx, c, method, path, body, contentType)
}

func call[T any](ctx context.Context, c *Client, method, path string, body []byte, contentType string) (T, error) {
	var zero T

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return zero, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "onboarding api request failed", "method", method, "path", path, "error", err)
		return zero, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return zero, fmt.Errorf("read response body: %w", err)
	}

	var env envelope[T]
	if err := sonic.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return zero, newAPIError(resp.StatusCode, nil)
		}
		return zero, fmt.Errorf("decode response (status=%d): %w", resp.StatusCode, err)
	}
	if env.Error != nil || resp.StatusCode >= http.StatusBadRequest {
		apiErr := newAPIError(resp.StatusCode, env.Error)
		c.logger.InfoContext(ctx, "onboarding api returned error", "method", method, "path", path, "status", apiErr.Code, "reason", apiErr.Reason)
		return zero, apiErr
	}
	return env.Data, nil
}

func imageContentType(path string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); t != "" {
		return t
	}
	return "application/octet-stream"
}
