package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nugget/libula/internal/httpkit"
	"github.com/nugget/libula/internal/reqctx"
)

// Upload stores data at path inside bucket and returns the stored path
// relative to the bucket. An existing object at path is not replaced.
func (c *Client) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error) {
	objPath := "/storage/v1/object/" + url.PathEscape(bucket) + "/" + escapeObjectPath(path)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+objPath, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	c.authorize(req)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "false")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload %s/%s: %w", bucket, path, err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &APIError{
			Method:     http.MethodPost,
			Path:       objPath,
			StatusCode: resp.StatusCode,
			Body:       httpkit.ReadErrorBody(resp.Body, 512),
		}
	}

	var out struct {
		Key string `json:"Key"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}

	reqctx.Logger(ctx, c.logger).Debug("supabase object uploaded",
		"bucket", bucket, "path", path, "key", out.Key, "bytes", len(data))

	// Key is "<bucket>/<path>"; callers address objects relative to the bucket.
	if stored := strings.TrimPrefix(out.Key, bucket+"/"); stored != "" && stored != out.Key {
		return stored, nil
	}
	return path, nil
}

// SignedURL returns an absolute URL granting read access to the object
// at path for ttl. The TTL is truncated to whole seconds.
func (c *Client) SignedURL(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
	seconds := int64(ttl / time.Second)
	if seconds <= 0 {
		return "", fmt.Errorf("sign %s/%s: ttl %s is not positive", bucket, path, ttl)
	}

	signPath := "/storage/v1/object/sign/" + url.PathEscape(bucket) + "/" + escapeObjectPath(path)
	var out struct {
		SignedURL string `json:"signedURL"`
	}
	if err := c.do(ctx, http.MethodPost, signPath, map[string]int64{"expiresIn": seconds}, &out); err != nil {
		return "", err
	}
	if out.SignedURL == "" {
		return "", fmt.Errorf("sign %s/%s: empty signedURL in response", bucket, path)
	}
	return c.baseURL + "/storage/v1" + out.SignedURL, nil
}

func escapeObjectPath(p string) string {
	parts := strings.Split(strings.TrimPrefix(p, "/"), "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}
