// Package httpapi implements api.Collection against the collection HTTP
// service.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/justyntemme/shelf/internal/api"
	"github.com/justyntemme/shelf/internal/debug"
	"github.com/justyntemme/shelf/internal/location"
	"github.com/justyntemme/shelf/internal/logging"
	"github.com/justyntemme/shelf/internal/model"
)

// Routes, relative to the base URL.
const (
	collectionsPath = "/api/collections"
	foldersPath     = "/api/collections/folders"
	renamePath      = "/api/collections/rename"
	movePath        = "/api/collections/move"
	contentPath     = "/api/content"
)

// Error codes the service sends in the JSON error body.
const (
	codeNameCollision         = "name_collision"
	codeNotFound              = "not_found"
	codePermission            = "permission_denied"
	codeDescendantDestination = "descendant_destination"
	codeInvalidDestination    = "invalid_destination"
)

// Client talks to the collection service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retries    uint64
	backoff    time.Duration
	log        *zap.Logger

	mu        sync.RWMutex
	authToken string
}

// Config holds client configuration.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	AuthToken string

	// ListRetries bounds retries of idempotent listing requests.
	ListRetries uint64
	// Backoff is the first retry delay; later delays double.
	Backoff time.Duration
}

// New creates a new client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Backoff == 0 {
		cfg.Backoff = 250 * time.Millisecond
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		retries:   cfg.ListRetries,
		backoff:   cfg.Backoff,
		log:       logging.Named("httpapi"),
		authToken: cfg.AuthToken,
	}
}

// SetAuthToken sets the bearer token for requests.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authToken = token
}

func (c *Client) applyAuth(req *http.Request) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
}

// List implements api.Collection. Transport failures and 5xx responses are
// retried with exponential backoff.
func (c *Client) List(ctx context.Context, loc location.Location) ([]model.Item, error) {
	q := url.Values{}
	parent := location.Root
	if loc.IsVirtual() {
		q.Set("view", string(loc.Virtual))
	} else {
		q.Set("path", loc.Path)
		parent = loc.Path
	}
	endpoint := c.baseURL + collectionsPath + "?" + q.Encode()

	var items []model.Item
	b := retry.WithMaxRetries(c.retries, retry.NewExponential(c.backoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		body, err := c.do(ctx, "list", http.MethodGet, endpoint, nil)
		if err != nil {
			if retryable(err) {
				debug.Log(debug.API, "List %s: retrying: %v", loc, err)
				return retry.RetryableError(err)
			}
			return err
		}

		raws, err := decodeList(body)
		if err != nil {
			return &api.TransportError{Op: "list", Err: fmt.Errorf("%w: %v", api.ErrMalformed, err)}
		}
		items, err = model.NormalizeAll(raws, parent)
		if err != nil {
			return &api.TransportError{Op: "list", Err: fmt.Errorf("%w: %v", api.ErrMalformed, err)}
		}
		return nil
	})
	if err != nil {
		c.log.Warn("list failed", zap.Stringer("location", loc), zap.Error(err))
		return nil, err
	}

	debug.Log(debug.API, "List %s: %d items", loc, len(items))
	return items, nil
}

// CreateFolder implements api.Collection.
func (c *Client) CreateFolder(ctx context.Context, parent, name string) (model.Item, error) {
	req := map[string]string{"parent": parent, "name": name}
	return c.mutate(ctx, "create folder", foldersPath, req, parent)
}

// Rename implements api.Collection.
func (c *Client) Rename(ctx context.Context, item model.Item, newName string) (model.Item, error) {
	req := map[string]string{"id": item.ID, "path": item.Path, "name": newName}
	return c.mutate(ctx, "rename", renamePath, req, location.Parent(item.Path))
}

// Move implements api.Collection.
func (c *Client) Move(ctx context.Context, item model.Item, destDir string) (model.Item, error) {
	req := map[string]string{"id": item.ID, "path": item.Path, "destination": destDir}
	return c.mutate(ctx, "move", movePath, req, destDir)
}

// Delete implements api.Collection.
func (c *Client) Delete(ctx context.Context, item model.Item) error {
	q := url.Values{}
	q.Set("path", item.Path)
	if item.ID != item.Path {
		q.Set("id", item.ID)
	}
	_, err := c.do(ctx, "delete", http.MethodDelete, c.baseURL+collectionsPath+"?"+q.Encode(), nil)
	return err
}

// ContentURL implements api.Collection.
func (c *Client) ContentURL(p string) string {
	return c.baseURL + contentPath + "?" + url.Values{"path": {p}}.Encode()
}

// mutate posts payload and decodes the returned item. Mutations are never
// retried.
func (c *Client) mutate(ctx context.Context, op, route string, payload any, parent string) (model.Item, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return model.Item{}, err
	}

	body, err := c.do(ctx, op, http.MethodPost, c.baseURL+route, data)
	if err != nil {
		return model.Item{}, err
	}

	raw, err := decodeItem(body)
	if err == nil {
		var it model.Item
		if it, err = model.Normalize(raw, parent); err == nil {
			debug.Log(debug.API, "%s: ok id=%s path=%s", op, it.ID, it.Path)
			return it, nil
		}
	}
	return model.Item{}, &api.TransportError{Op: op, Err: fmt.Errorf("%w: %v", api.ErrMalformed, err)}
}

// do performs one request and classifies the outcome.
func (c *Client) do(ctx context.Context, op, method, endpoint string, payload []byte) ([]byte, error) {
	var rdr io.Reader
	if payload != nil {
		rdr = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.applyAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &api.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &api.TransportError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, rejection(op, resp.StatusCode, body)
	}
	return body, nil
}

// errorBody is the JSON error shape; plain-text bodies are used as the
// reason verbatim.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func rejection(op string, status int, body []byte) *api.RejectedError {
	re := &api.RejectedError{Op: op, Status: status}

	var eb errorBody
	if json.Unmarshal(body, &eb) == nil {
		re.Code = eb.Code
		re.Reason = eb.Message
		if re.Reason == "" {
			re.Reason = eb.Error
		}
	} else if s := strings.TrimSpace(string(body)); s != "" && len(s) < 200 {
		re.Reason = s
	}

	switch {
	case re.Code == codeDescendantDestination || re.Code == codeInvalidDestination:
		re.Err = api.ErrInvalidDestination
	case re.Code == codeNameCollision || status == http.StatusConflict:
		re.Err = api.ErrNameCollision
	case re.Code == codeNotFound || status == http.StatusNotFound:
		re.Err = api.ErrNotFound
	case re.Code == codePermission || status == http.StatusForbidden || status == http.StatusUnauthorized:
		re.Err = api.ErrPermission
	case status == http.StatusNotImplemented || status == http.StatusMethodNotAllowed:
		re.Err = api.ErrUnsupported
	}
	return re
}

func retryable(err error) bool {
	var te *api.TransportError
	if errors.As(err, &te) {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	if re, ok := api.AsRejected(err); ok {
		return re.Status >= 500 && re.Err == nil
	}
	return false
}

// decodeList accepts {"items":[...]}, {"collections":[...]} or a bare array.
func decodeList(body []byte) ([]model.RawItem, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var raws []model.RawItem
		err := json.Unmarshal(trimmed, &raws)
		return raws, err
	}

	var env struct {
		Items       []model.RawItem `json:"items"`
		Collections []model.RawItem `json:"collections"`
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, err
	}
	if env.Items == nil && env.Collections == nil {
		return nil, errors.New("no items field")
	}
	if env.Items != nil {
		return env.Items, nil
	}
	return env.Collections, nil
}

// decodeItem accepts {"item":{...}} or the item object itself.
func decodeItem(body []byte) (model.RawItem, error) {
	var env struct {
		Item *model.RawItem `json:"item"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return model.RawItem{}, err
	}
	if env.Item != nil {
		return *env.Item, nil
	}
	var raw model.RawItem
	err := json.Unmarshal(body, &raw)
	return raw, err
}

var _ api.Collection = (*Client)(nil)
