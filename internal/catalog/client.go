// Package catalog is a client for the lineage endpoints of the metadata
// catalog REST API.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/leapstack-labs/leaplineage/internal/lineage"
)

const (
	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize is the maximum response body size (10MB).
	MaxResponseSize = 10 * 1024 * 1024
)

// ErrTokenExpired is returned before any request is made when the
// configured token carries an exp claim in the past.
var ErrTokenExpired = errors.New("catalog: access token expired")

// APIError is a non-2xx response from the catalog.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("catalog: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("catalog: %d %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the catalog.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Client talks to the catalog API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client for the API rooted at baseURL, e.g.
// http://localhost:8585/api/v1.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: DefaultTimeout},
		logger:  slog.New(slog.DiscardHandler),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetLineage fetches the lineage of the entity with the given fully
// qualified name.
func (c *Client) GetLineage(ctx context.Context, entityType lineage.EntityType, fqn string, upstreamDepth, downstreamDepth int) (lineage.Graph, error) {
	q := url.Values{}
	q.Set("upstreamDepth", strconv.Itoa(upstreamDepth))
	q.Set("downstreamDepth", strconv.Itoa(downstreamDepth))
	path := fmt.Sprintf("/lineage/%s/name/%s?%s", url.PathEscape(string(entityType)), url.PathEscape(fqn), q.Encode())

	var g lineage.Graph
	if err := c.do(ctx, http.MethodGet, path, nil, &g); err != nil {
		return lineage.Graph{}, fmt.Errorf("get lineage of %s %s: %w", entityType, fqn, err)
	}
	return g, nil
}

// GetColumns fetches the columns of an entity. Only tables have columns;
// any other type yields nil without a request.
func (c *Client) GetColumns(ctx context.Context, entityType lineage.EntityType, id string) ([]lineage.Column, error) {
	if entityType != lineage.EntityTable {
		return nil, nil
	}
	path := fmt.Sprintf("/%s/%s?fields=columns", collection(entityType), url.PathEscape(id))

	var body struct {
		Columns []lineage.Column `json:"columns"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &body); err != nil {
		return nil, fmt.Errorf("get columns of %s: %w", id, err)
	}
	return body.Columns, nil
}

type entityReference struct {
	ID   string             `json:"id"`
	Type lineage.EntityType `json:"type"`
}

type addLineageRequest struct {
	Edge struct {
		FromEntity     entityReference        `json:"fromEntity"`
		ToEntity       entityReference        `json:"toEntity"`
		LineageDetails *lineage.LineageDetail `json:"lineageDetails,omitempty"`
	} `json:"edge"`
}

// AddLineage creates or replaces the edge between two entities.
func (c *Client) AddLineage(ctx context.Context, from, to lineage.EntityRef, detail *lineage.LineageDetail) error {
	var req addLineageRequest
	req.Edge.FromEntity = entityReference{ID: from.ID, Type: from.Type}
	req.Edge.ToEntity = entityReference{ID: to.ID, Type: to.Type}
	req.Edge.LineageDetails = detail

	if err := c.do(ctx, http.MethodPut, "/lineage", req, nil); err != nil {
		return fmt.Errorf("add lineage %s -> %s: %w", from.ID, to.ID, err)
	}
	return nil
}

// DeleteLineage removes the edge between two entities.
func (c *Client) DeleteLineage(ctx context.Context, fromType lineage.EntityType, fromID string, toType lineage.EntityType, toID string) error {
	path := fmt.Sprintf("/lineage/%s/%s/%s/%s",
		url.PathEscape(string(fromType)), url.PathEscape(fromID),
		url.PathEscape(string(toType)), url.PathEscape(toID))
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("delete lineage %s -> %s: %w", fromID, toID, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if err := c.checkToken(); err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("catalog request failed", "method", method, "path", path, "error", err)
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if len(data) > MaxResponseSize {
		return fmt.Errorf("response body too large: %d bytes (max %d)", len(data), MaxResponseSize)
	}

	c.logger.Debug("catalog request", "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(data)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// checkToken fails fast on a JWT whose exp has passed. Opaque tokens and
// tokens without exp are sent as is; the signature is the server's concern.
func (c *Client) checkToken() error {
	if c.token == "" || strings.Count(c.token, ".") != 2 {
		return nil
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(c.token, claims); err != nil {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	if !exp.After(c.now()) {
		return ErrTokenExpired
	}
	return nil
}

func errorMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil && body.Message != "" {
		return body.Message
	}
	return strings.TrimSpace(string(data))
}

// collection maps an entity type to its REST collection.
func collection(t lineage.EntityType) string {
	return string(t) + "s"
}
