package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"storysync/internal/domain"
)

// TokenProvider supplies the bearer token for authenticated calls. An
// empty token means guest mode: reads go out unauthenticated and
// creates are posted to the guest endpoint. Token lifecycle is owned by
// the auth collaborator, not by this client.
type TokenProvider interface {
	Token() string
}

// StaticToken is a TokenProvider holding a fixed token value.
type StaticToken string

func (t StaticToken) Token() string { return string(t) }

// APIError carries the error message from an error:true payload so
// callers can surface it verbatim.
type APIError struct {
	Message string
}

func (e *APIError) Error() string { return e.Message }

// Config holds story API client configuration.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Client is the remote data gateway: the authenticated HTTP client for
// the story API. Every request physically passes through the supplied
// transport, which is where the cache router sits.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	tokens         TokenProvider
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger
}

// New creates a story API client. A nil transport uses the default.
func New(cfg Config, tokens TokenProvider, transport http.RoundTripper, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		baseURL:        cfg.BaseURL,
		tokens:         tokens,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         logger.With("component", "gateway"),
	}
}

// ListStories fetches a page of stories.
func (c *Client) ListStories(ctx context.Context, opts domain.ListOptions) ([]domain.Story, error) {
	endpoint := c.baseURL + "/stories"

	params := url.Values{}
	if opts.Page > 0 {
		params.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.Size > 0 {
		params.Set("size", strconv.Itoa(opts.Size))
	}
	if opts.WithLocation {
		params.Set("location", "1")
	}
	if encoded := params.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	var resp listResponse
	if err := c.getWithRetry(ctx, endpoint, &resp); err != nil {
		return nil, err
	}
	if resp.Error {
		return nil, &APIError{Message: resp.Message}
	}

	return resp.ListStory, nil
}

// GetStory fetches a single story by id.
func (c *Client) GetStory(ctx context.Context, id string) (*domain.Story, error) {
	var resp detailResponse
	if err := c.getWithRetry(ctx, c.baseURL+"/stories/"+url.PathEscape(id), &resp); err != nil {
		return nil, err
	}
	if resp.Error {
		return nil, &APIError{Message: resp.Message}
	}
	if resp.Story == nil {
		return nil, fmt.Errorf("story %s: empty payload", id)
	}

	return resp.Story, nil
}

// CreateStory posts a new story as multipart form data. Unauthenticated
// clients post to the guest endpoint. Not retried: the request is not
// idempotent.
func (c *Client) CreateStory(ctx context.Context, draft domain.StoryDraft) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("description", draft.Description); err != nil {
		return fmt.Errorf("write description field: %w", err)
	}

	part, err := writer.CreateFormFile("photo", draft.PhotoName)
	if err != nil {
		return fmt.Errorf("create photo part: %w", err)
	}
	if _, err := part.Write(draft.Photo); err != nil {
		return fmt.Errorf("write photo part: %w", err)
	}

	if draft.Lat != nil && draft.Lon != nil {
		if err := writer.WriteField("lat", strconv.FormatFloat(*draft.Lat, 'f', -1, 64)); err != nil {
			return fmt.Errorf("write lat field: %w", err)
		}
		if err := writer.WriteField("lon", strconv.FormatFloat(*draft.Lon, 'f', -1, 64)); err != nil {
			return fmt.Errorf("write lon field: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("close multipart writer: %w", err)
	}

	endpoint := c.baseURL + "/stories"
	if c.token() == "" {
		endpoint = c.baseURL + "/stories/guest"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.setCommonHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	var apiResp createResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		if resp.StatusCode >= 300 {
			return fmt.Errorf("unexpected status: %d", resp.StatusCode)
		}
		return fmt.Errorf("decode response: %w", err)
	}
	if apiResp.Error {
		return &APIError{Message: apiResp.Message}
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return nil
}

func (c *Client) getWithRetry(ctx context.Context, endpoint string, dest any) error {
	var err error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		err = c.doGet(ctx, endpoint, dest)
		if err == nil {
			return nil
		}

		// The API's own rejection is final; retrying cannot change it.
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return err
		}

		if attempt == c.maxAttempts {
			break
		}

		backoff := c.calculateBackoff(attempt)
		c.logger.Warn("request failed, retrying",
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("after %d attempts: %w", c.maxAttempts, err)
}

func (c *Client) doGet(ctx context.Context, endpoint string, dest any) error {
	reqID := uuid.NewString()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	c.setCommonHeaders(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("request completed",
		"request_id", reqID,
		"url", endpoint,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	// A failing status is final no matter what the body decodes to;
	// surface the payload message verbatim when one is present.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &envelope) == nil && envelope.Message != "" {
			return &APIError{Message: envelope.Message}
		}
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

func (c *Client) setCommonHeaders(req *http.Request) {
	req.Header.Set("User-Agent", "storysync/1.0")
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func (c *Client) token() string {
	if c.tokens == nil {
		return ""
	}
	return c.tokens.Token()
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := c.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > c.maxBackoff {
		backoff = c.maxBackoff
	}
	return backoff
}
