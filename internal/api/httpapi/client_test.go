package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justyntemme/shelf/internal/api"
	"github.com/justyntemme/shelf/internal/location"
	"github.com/justyntemme/shelf/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/", AuthToken: "secret", ListRetries: 2, Backoff: time.Millisecond})
}

func TestListEnvelopeAndBareArray(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{"envelope", `{"items":[{"name":"trip","isDir":true},{"id":"9","name":"a.jpg","modifiedTime":1709294400}]}`},
		{"bare", `[{"name":"trip","type":"folder"},{"id":"9","path":"/photos/a.jpg","modified":"2024-03-01T12:00:00Z"}]`},
	}
	for _, tc := range testCases {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/collections", r.URL.Path)
			assert.Equal(t, "/photos", r.URL.Query().Get("path"))
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
			w.Write([]byte(tc.body))
		})

		items, err := c.List(context.Background(), location.At("/photos"))
		require.NoError(t, err, tc.name)
		require.Len(t, items, 2, tc.name)
		assert.Equal(t, model.KindFolder, items[0].Kind, tc.name)
		assert.Equal(t, "/photos/trip", items[0].Path, tc.name)
		assert.Equal(t, "/photos/a.jpg", items[1].Path, tc.name)
		assert.Equal(t, int64(1709294400), items[1].ModifiedAt.Unix(), tc.name)
	}
}

func TestListVirtual(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "trash", r.URL.Query().Get("view"))
		assert.Empty(t, r.URL.Query().Get("path"))
		w.Write([]byte(`{"items":[]}`))
	})
	items, err := c.List(context.Background(), location.In(location.Trash))
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestListRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			http.Error(w, "busy", http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[]`))
	})
	_, err := c.List(context.Background(), location.At("/"))
	require.NoError(t, err)
	assert.EqualValues(t, 3, hits.Load())
}

func TestListGivesUpAfterRetries(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err := c.List(context.Background(), location.At("/"))
	re, ok := api.AsRejected(err)
	require.True(t, ok, "%v", err)
	assert.Equal(t, 500, re.Status)
	assert.EqualValues(t, 3, hits.Load())
}

func TestListDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})
	_, err := c.List(context.Background(), location.At("/gone"))
	assert.ErrorIs(t, err, api.ErrNotFound)
	assert.EqualValues(t, 1, hits.Load())
}

func TestListMalformed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>oops</html>`))
	})
	_, err := c.List(context.Background(), location.At("/"))
	assert.ErrorIs(t, err, api.ErrMalformed)
	var te *api.TransportError
	assert.ErrorAs(t, err, &te)
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := New(Config{BaseURL: srv.URL})

	_, err := c.Rename(context.Background(), model.Item{ID: "1", Path: "/a"}, "b")
	var te *api.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "rename", te.Op)
}

func TestMutations(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		if r.Method == http.MethodPost {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/collections/folders":
			assert.Equal(t, "/photos", req["parent"])
			w.Write([]byte(`{"item":{"id":"77","name":"` + req["name"] + `","isDir":true}}`))
		case r.Method == http.MethodPost && r.URL.Path == "/api/collections/rename":
			assert.Equal(t, "/photos/a.jpg", req["path"])
			w.Write([]byte(`{"id":"5","path":"/photos/` + req["name"] + `"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/api/collections/move":
			w.Write([]byte(`{"id":"5","name":"a.jpg","path":"` + req["destination"] + `/a.jpg"}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/api/collections":
			assert.Equal(t, "/photos/a.jpg", r.URL.Query().Get("path"))
			assert.Equal(t, "5", r.URL.Query().Get("id"))
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusTeapot)
		}
	})
	ctx := context.Background()
	item := model.Item{ID: "5", Path: "/photos/a.jpg", Name: "a.jpg", Kind: model.KindImage}

	f, err := c.CreateFolder(ctx, "/photos", "trip")
	require.NoError(t, err)
	assert.Equal(t, "77", f.ID)
	assert.Equal(t, "/photos/trip", f.Path)
	assert.Equal(t, model.KindFolder, f.Kind)

	r, err := c.Rename(ctx, item, "b.jpg")
	require.NoError(t, err)
	assert.Equal(t, "b.jpg", r.Name)

	m, err := c.Move(ctx, item, "/archive")
	require.NoError(t, err)
	assert.Equal(t, "/archive/a.jpg", m.Path)

	require.NoError(t, c.Delete(ctx, item))
}

func TestRejectionMapping(t *testing.T) {
	testCases := []struct {
		name   string
		status int
		body   string
		want   error
		reason string
	}{
		{"conflict", 409, `{"error":"exists"}`, api.ErrNameCollision, "exists"},
		{"forbidden", 403, ``, api.ErrPermission, ""},
		{"descendant", 422, `{"code":"descendant_destination","message":"cannot move into itself"}`, api.ErrInvalidDestination, "cannot move into itself"},
		{"plain text", 404, "no such item", api.ErrNotFound, "no such item"},
		{"unsupported", 501, ``, api.ErrUnsupported, ""},
	}
	for _, tc := range testCases {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			w.Write([]byte(tc.body))
		})
		_, err := c.Move(context.Background(), model.Item{ID: "1", Path: "/a"}, "/a/b")
		assert.ErrorIs(t, err, tc.want, tc.name)
		re, ok := api.AsRejected(err)
		require.True(t, ok, tc.name)
		assert.Equal(t, tc.status, re.Status, tc.name)
		assert.Equal(t, tc.reason, re.Reason, tc.name)
	}
}

func TestMutationMalformedResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"item":{}}`))
	})
	_, err := c.CreateFolder(context.Background(), "/", "x")
	assert.ErrorIs(t, err, api.ErrMalformed)
}

func TestContentURL(t *testing.T) {
	c := New(Config{BaseURL: "http://files.example/"})
	assert.Equal(t, "http://files.example/api/content?path=%2Fa+b.jpg", c.ContentURL("/a b.jpg"))
	assert.Equal(t, "http://files.example/api/content?path=%2Fa+b.jpg&retry=1", api.ContentURLFunc(c)("/a b.jpg", 1))
}
