// Package supabase is a small client for the two Supabase surfaces
// Libula uses: PostgREST table access under /rest/v1 and object
// storage under /storage/v1. Every request carries the project anon
// key as apikey and a bearer token, which is the end user's session
// token when one is bound with [Client.WithToken].
package supabase

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
	"strings"
	"time"

	"github.com/nugget/libula/internal/config"
	"github.com/nugget/libula/internal/httpkit"
	"github.com/nugget/libula/internal/reqctx"
)

// ErrNoRows is returned by single-row helpers when a select matched nothing.
var ErrNoRows = errors.New("no rows")

// APIError is a non-2xx response from PostgREST or storage.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("supabase %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Client talks to one Supabase project.
type Client struct {
	baseURL    string
	anonKey    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for the project at baseURL. token is the
// default bearer token; an empty token falls back to the anon key.
func NewClient(baseURL, anonKey, token string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if token == "" {
		token = anonKey
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		anonKey: anonKey,
		token:   token,
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(timeout),
			httpkit.WithRetry(2, time.Second),
			httpkit.WithLogger(logger),
		),
		logger: logger,
	}
}

// WithToken returns a copy of c that authenticates as the given user
// session. An empty token returns c unchanged.
func (c *Client) WithToken(token string) *Client {
	if token == "" {
		return c
	}
	cp := *c
	cp.token = strings.TrimPrefix(token, "Bearer ")
	return &cp
}

// Order is a PostgREST ordering clause such as "id.desc".
type Order string

// Common orderings.
const (
	OrderNone   Order = ""
	OrderIDDesc Order = "id.desc"
	OrderIDAsc  Order = "id.asc"
)

// Select fetches the rows of table matching filter into dest, which
// must be a pointer to a slice.
func (c *Client) Select(ctx context.Context, table string, filter Filter, order Order, dest any) error {
	q := filter.Values()
	if order != OrderNone {
		q.Set("order", string(order))
	}
	return c.do(ctx, http.MethodGet, restPath(table, q), nil, dest)
}

// Insert writes row (a struct, map, or slice of them) into table and
// decodes the created rows, including generated ids, into dest.
func (c *Client) Insert(ctx context.Context, table string, row any, dest any) error {
	return c.do(ctx, http.MethodPost, restPath(table, nil), row, dest)
}

// Update applies patch to the rows of table matching filter and decodes
// the updated rows into dest. A filter that matches nothing is not an
// error; dest is then an empty slice.
func (c *Client) Update(ctx context.Context, table string, filter Filter, patch any, dest any) error {
	if filter.Empty() {
		return fmt.Errorf("update %s: refusing unfiltered update", table)
	}
	return c.do(ctx, http.MethodPatch, restPath(table, filter.Values()), patch, dest)
}

func restPath(table string, q url.Values) string {
	p := "/rest/v1/" + url.PathEscape(table)
	if len(q) > 0 {
		p += "?" + q.Encode()
	}
	return p
}

func (c *Client) do(ctx context.Context, method, path string, body any, dest any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", path, err)
		}
		reqctx.Logger(ctx, c.logger).Log(ctx, config.LevelTrace, "supabase request body",
			"method", method, "path", path, "body", string(data))
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	c.authorize(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "return=representation")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	reqctx.Logger(ctx, c.logger).Debug("supabase request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       httpkit.ReadErrorBody(resp.Body, 512),
		}
	}

	if dest != nil {
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+c.token)
}
