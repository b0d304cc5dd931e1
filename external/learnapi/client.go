package learnapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/valyala/fasthttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/riskibarqy/learnhub-onboarding/internal/domain/onboarding"
	"github.com/riskibarqy/learnhub-onboarding/internal/domain/user"
	"github.com/riskibarqy/learnhub-onboarding/internal/platform/cache"
	"github.com/riskibarqy/learnhub-onboarding/internal/platform/logging"
	"github.com/riskibarqy/learnhub-onboarding/internal/platform/resilience"
	"github.com/riskibarqy/learnhub-onboarding/internal/usecase"
)

const (
	defaultBaseURL        = "http://localhost:3000/api"
	defaultTimeout        = 10 * time.Second
	defaultUploadTimeout  = 30 * time.Second
	defaultMaxUploadBytes = 8 << 20
	defaultTokenCacheTTL  = time.Minute
	maxResponseBytes      = 2 << 20

	userPath         = "/users/me"
	profileImagePath = "/users/me/profile-image"

	headerServiceKey = "x-admin-key"
	headerUserID     = "x-user-id"
)

var errLearnAPITransient = crerr.New("learnapi transient failure")

type ClientConfig struct {
	HTTPClient     *http.Client
	UploadClient   *fasthttp.Client
	BaseURL        string
	ServiceKey     string
	Timeout        time.Duration
	UploadTimeout  time.Duration
	MaxRetries     int
	RateLimit      float64
	RateBurst      int
	MaxUploadBytes int64
	TokenCacheTTL  time.Duration
	Logger         *logging.Logger
	CircuitBreaker resilience.CircuitBreakerConfig
}

// Client talks to the learning-platform REST API.
type Client struct {
	httpClient     *http.Client
	uploadClient   *fasthttp.Client
	baseURL        string
	serviceKey     string
	uploadTimeout  time.Duration
	maxRetries     int
	maxUploadBytes int64
	limiter        *rate.Limiter
	logger         *logging.Logger
	breaker        *resilience.CircuitBreaker
	circuitEnabled bool
	flight         singleflight.Group
	principals     *cache.Store[user.Principal]
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

	uploadClient := cfg.UploadClient
	if uploadClient == nil {
		uploadClient = &fasthttp.Client{
			Name:                "learnhub-onboarding",
			MaxResponseBodySize: maxResponseBytes,
		}
	}
	uploadTimeout := cfg.UploadTimeout
	if uploadTimeout <= 0 {
		uploadTimeout = defaultUploadTimeout
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	tokenTTL := cfg.TokenCacheTTL
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenCacheTTL
	}

	breakerCfg := resilience.NormalizeCircuitBreakerConfig(cfg.CircuitBreaker)
	breaker := resilience.NewCircuitBreaker("learnapi", breakerCfg)
	breaker.OnStateChange(func(name string, from, to resilience.CircuitState) {
		logger.Warn("circuit breaker state changed", "dependency", name, "from", from, "to", to)
	})

	return &Client{
		httpClient:     httpClient,
		uploadClient:   uploadClient,
		baseURL:        baseURL,
		serviceKey:     strings.TrimSpace(cfg.ServiceKey),
		uploadTimeout:  uploadTimeout,
		maxRetries:     max(cfg.MaxRetries, 0),
		maxUploadBytes: maxUpload,
		limiter:        limiter,
		logger:         logger,
		breaker:        breaker,
		circuitEnabled: breakerCfg.Enabled,
		principals:     cache.NewStore[user.Principal](tokenTTL, cache.WithLogger[user.Principal](logger)),
	}
}

// BreakerState exposes the dependency breaker for health reporting.
func (c *Client) BreakerState() resilience.CircuitState {
	return c.breaker.State()
}

// ListReference reads one page of a reference list. No auth header is sent.
func (c *Client) ListReference(ctx context.Context, ref onboarding.Reference, limit, offset int) ([]onboarding.Option, error) {
	if ref == onboarding.ReferenceNone {
		return nil, fmt.Errorf("%w: reference list is required", usecase.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = usecase.DefaultOptionPageSize
	}
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(max(offset, 0)))

	var out envelope[[]optionItem]
	if err := c.doJSON(ctx, call{method: http.MethodGet, path: "/" + string(ref), query: query}, &out); err != nil {
		return nil, fmt.Errorf("list %s: %w", ref, err)
	}
	if !out.Success {
		return nil, fmt.Errorf("list %s: %s", ref, firstNonEmpty(out.Message, "request unsuccessful"))
	}

	items := make([]onboarding.Option, 0, len(out.Data))
	for _, item := range out.Data {
		items = append(items, onboarding.Option{ID: item.ID, Name: item.Name})
	}
	return items, nil
}

func (c *Client) GetCountries(ctx context.Context, limit, offset int) ([]onboarding.Option, error) {
	return c.ListReference(ctx, onboarding.ReferenceCountries, limit, offset)
}

func (c *Client) GetGoals(ctx context.Context, limit, offset int) ([]onboarding.Option, error) {
	return c.ListReference(ctx, onboarding.ReferenceGoals, limit, offset)
}

func (c *Client) GetTopics(ctx context.Context, limit, offset int) ([]onboarding.Option, error) {
	return c.ListReference(ctx, onboarding.ReferenceTopics, limit, offset)
}

func (c *Client) GetBudgets(ctx context.Context, limit, offset int) ([]onboarding.Option, error) {
	return c.ListReference(ctx, onboarding.ReferenceBudgets, limit, offset)
}

func (c *Client) GetLanguages(ctx context.Context, limit, offset int) ([]onboarding.Option, error) {
	return c.ListReference(ctx, onboarding.ReferenceLanguages, limit, offset)
}

// UpdateUserDetails patches the signed-in user's profile. Writes are never retried here.
func (c *Client) UpdateUserDetails(ctx context.Context, accessToken string, patch onboarding.UserDetailsPatch) error {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return fmt.Errorf("%w: access token is required", usecase.ErrUnauthorized)
	}
	return c.patchUser(ctx, map[string]string{"Authorization": "Bearer " + accessToken}, patch)
}

// DeliverUserDetails replays a patch on behalf of userID with the service key.
func (c *Client) DeliverUserDetails(ctx context.Context, userID string, patch onboarding.UserDetailsPatch) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", usecase.ErrInvalidInput)
	}
	if c.serviceKey == "" {
		return fmt.Errorf("%w: service key is not configured", usecase.ErrUnauthorized)
	}
	return c.patchUser(ctx, map[string]string{
		headerServiceKey: c.serviceKey,
		headerUserID:     userID,
	}, patch)
}

func (c *Client) patchUser(ctx context.Context, headers map[string]string, patch onboarding.UserDetailsPatch) error {
	if patch.IsEmpty() {
		return fmt.Errorf("%w: empty user details patch", usecase.ErrInvalidInput)
	}
	body, err := sonic.Marshal(patch)
	if err != nil {
		return fmt.Errorf("encode user details: %w", err)
	}

	var out envelope[any]
	if err := c.doJSON(ctx, call{method: http.MethodPatch, path: userPath, body: body, headers: headers}, &out); err != nil {
		return fmt.Errorf("update user details: %w", err)
	}
	if !out.Success {
		return fmt.Errorf("update user details: %s", firstNonEmpty(out.Message, "request unsuccessful"))
	}
	return nil
}

// VerifyAccessToken resolves the caller behind token. Results are cached by token hash.
func (c *Client) VerifyAccessToken(ctx context.Context, token string) (user.Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return user.Principal{}, fmt.Errorf("%w: token is required", usecase.ErrUnauthorized)
	}

	return c.principals.GetOrLoad(ctx, hashToken(token), func(ctx context.Context) (user.Principal, error) {
		var out envelope[userItem]
		err := c.doJSON(ctx, call{
			method:  http.MethodGet,
			path:    userPath,
			headers: map[string]string{"Authorization": "Bearer " + token},
			flight:  hashToken(token),
		}, &out)
		if err != nil {
			return user.Principal{}, fmt.Errorf("verify access token: %w", err)
		}
		if !out.Success {
			return user.Principal{}, fmt.Errorf("%w: %s", usecase.ErrUnauthorized, firstNonEmpty(out.Message, "token rejected"))
		}
		userID := strings.TrimSpace(out.Data.ID.String())
		if userID == "" {
			return user.Principal{}, fmt.Errorf("invalid user response: id is empty")
		}
		return user.Principal{UserID: userID, Email: strings.TrimSpace(out.Data.Email)}, nil
	})
}

// ForUser binds the client to one user's access token.
func (c *Client) ForUser(creds usecase.UserCredentials) usecase.ProfileGateway {
	return &userGateway{client: c, token: creds.AccessToken}
}

type userGateway struct {
	client *Client
	token  string
}

func (g *userGateway) UpdateUserDetails(ctx context.Context, patch onboarding.UserDetailsPatch) error {
	return g.client.UpdateUserDetails(ctx, g.token, patch)
}

func (g *userGateway) UploadProfileImage(ctx context.Context, file onboarding.ImageRef) (string, error) {
	return g.client.UploadProfileImage(ctx, g.token, file)
}

type call struct {
	method  string
	path    string
	query   url.Values
	body    []byte
	headers map[string]string
	// flight scopes GET deduplication to one caller identity.
	flight string
}

func (c *Client) doJSON(ctx context.Context, in call, target any) error {
	if c.circuitEnabled {
		if err := c.breaker.Allow(); err != nil {
			c.logger.WarnContext(ctx, "learnapi circuit breaker rejected request", "state", c.breaker.State(), "path", in.path)
			return fmt.Errorf("%w: learning platform is temporarily unavailable", usecase.ErrDependencyUnavailable)
		}
	}

	fullURL := c.baseURL + in.path
	if encoded := in.query.Encode(); encoded != "" {
		fullURL += "?" + encoded
	}

	execute := func() ([]byte, error) {
		raw, reqErr := c.executeRequest(ctx, in, fullURL)
		if c.circuitEnabled {
			if isCircuitFailure(reqErr) {
				c.breaker.RecordFailure()
			} else {
				c.breaker.RecordSuccess()
			}
		}
		return raw, reqErr
	}

	var (
		raw []byte
		err error
	)
	if in.method == http.MethodGet {
		out, flightErr, _ := c.flight.Do(in.flight+"|"+fullURL, func() (any, error) {
			return execute()
		})
		err = flightErr
		if err == nil {
			var ok bool
			if raw, ok = out.([]byte); !ok {
				return fmt.Errorf("unexpected response payload type %T", out)
			}
		}
	} else {
		raw, err = execute()
	}
	if err != nil {
		return err
	}

	if err := sonic.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode learnapi payload: %w", err)
	}
	return nil
}

func (c *Client) executeRequest(ctx context.Context, in call, fullURL string) ([]byte, error) {
	retries := 0
	if in.method == http.MethodGet {
		retries = c.maxRetries
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		var body io.Reader
		if in.body != nil {
			body = bytes.NewReader(in.body)
		}
		req, err := http.NewRequestWithContext(ctx, in.method, fullURL, body)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if in.body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for key, value := range in.headers {
			req.Header.Set(key, value)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = crerr.Mark(
				crerr.Newf("send request: %s", c.sanitize(err.Error(), in.headers)),
				errLearnAPITransient,
			)
		} else {
			raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
			_ = resp.Body.Close()
			switch {
			case readErr != nil:
				lastErr = crerr.Mark(crerr.Wrap(readErr, "read response body"), errLearnAPITransient)
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				return raw, nil
			default:
				lastErr = statusError(resp.StatusCode, raw)
				if !isRetryableStatus(resp.StatusCode) {
					return nil, lastErr
				}
			}
		}

		if attempt == retries {
			break
		}
		backoff := time.Duration(attempt+1) * time.Second
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("learnapi request failed")
	}
	c.logger.WarnContext(ctx, "learnapi request failed", "method", in.method, "path", in.path, "error", lastErr)
	return nil, lastErr
}

func statusError(code int, raw []byte) error {
	message := abbreviateBody(raw)
	var decoded envelope[any]
	if err := sonic.Unmarshal(raw, &decoded); err == nil && strings.TrimSpace(decoded.Message) != "" {
		message = strings.TrimSpace(decoded.Message)
	}

	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: status=%d %s", usecase.ErrUnauthorized, code, message)
	case isRetryableStatus(code):
		return crerr.Mark(crerr.Newf("learnapi status=%d body=%s", code, message), errLearnAPITransient)
	default:
		return fmt.Errorf("learnapi status=%d body=%s", code, message)
	}
}

func (c *Client) sanitize(value string, headers map[string]string) string {
	secrets := make([]string, 0, len(headers)+1)
	secrets = append(secrets, c.serviceKey)
	for _, v := range headers {
		secrets = append(secrets, strings.TrimPrefix(v, "Bearer "))
	}
	return sanitizeSensitiveText(value, secrets...)
}
