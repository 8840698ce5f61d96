package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/aminofox/zenclient/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	Method string
	Path   string
	Body   string
	Cookie string
	Header http.Header
}

type backend struct {
	*httptest.Server
	mu       sync.Mutex
	requests []recorded
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.PasswordHash != PasswordHash("hunter2", "salt", "pepper") {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"bad credentials"}`))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "JWT", Value: "token-1", Path: "/"})
		_, _ = w.Write([]byte(`{"success":true,"message":"logged in"}`))
	})
	mux.HandleFunc("GET /auth/me", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("JWT"); err != nil || c.Value != "token-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"id":7,"username":"alice","email":"a@example.com","role":"STREAMER"}`))
	})
	mux.HandleFunc("GET /auth/logout", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "JWT", Value: "", Path: "/", MaxAge: -1})
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /streams", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":42,"title":"Speedrun","username":"alice","isLive":true,"isPublic":true,
			"stream_urls":[{"name":"720p","dash":"http://cdn/42/720p.mpd"}]}]`))
	})
	mux.HandleFunc("GET /streams/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "42" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"stream not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"42","title":"Speedrun"}`))
	})
	mux.HandleFunc("GET /users/{name}/notifications", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":2,"message":"b"},{"id":1,"message":"a","isRead":true}]`))
	})
	mux.HandleFunc("GET /broken", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	})
	mux.HandleFunc("GET /boom", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))
		b.mu.Lock()
		b.requests = append(b.requests, recorded{
			Method: r.Method,
			Path:   r.URL.Path,
			Body:   string(body),
			Cookie: r.Header.Get("Cookie"),
			Header: r.Header.Clone(),
		})
		b.mu.Unlock()
		if r.Method != http.MethodGet && r.URL.Path != "/auth/login" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(b.Close)
	return b
}

func (b *backend) last() recorded {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests[len(b.requests)-1]
}

func newTestClient(t *testing.T, b *backend, mutate func(*Options)) *Client {
	t.Helper()
	opts := Options{BaseURL: b.URL}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := New(opts)
	require.NoError(t, err)
	return c
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	_, err := New(Options{BaseURL: "localhost"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidConfig))
}

func TestLoginKeepsSessionCookie(t *testing.T) {
	b := newBackend(t)
	c := newTestClient(t, b, nil)
	ctx := context.Background()

	_, err := c.Me(ctx)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnauthorized))

	resp, err := c.Login(ctx, "alice", PasswordHash("hunter2", "salt", "pepper"))
	require.NoError(t, err)
	assert.True(t, resp.Success)

	user, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Name())
	assert.Equal(t, RoleStreamer, user.Role)
	assert.Contains(t, b.last().Cookie, "JWT=token-1")

	require.NoError(t, c.Logout(ctx))
	_, err = c.Me(ctx)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnauthorized))
}

func TestLoginRejected(t *testing.T) {
	b := newBackend(t)
	c := newTestClient(t, b, nil)

	_, err := c.Login(context.Background(), "alice", PasswordHash("wrong", "salt", "pepper"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnauthorized))
	assert.Contains(t, err.Error(), "bad credentials")

	_, err = c.Login(context.Background(), "alice", "")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidArgument))
}

func TestStreams(t *testing.T) {
	b := newBackend(t)
	c := newTestClient(t, b, nil)
	ctx := context.Background()

	streams, err := c.ListStreams(ctx)
	require.NoError(t, err)
	require.Len(t, streams, 1)
	assert.Equal(t, "42", streams[0].ID.String())
	assert.Equal(t, "http://cdn/42/720p.mpd", streams[0].StreamURLs[0].Dash)

	s, err := c.GetStream(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "Speedrun", s.Title)

	_, err = c.GetStream(ctx, "9")
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
	assert.Contains(t, err.Error(), "stream not found")

	_, err = c.GetStream(ctx, "")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidArgument))
}

func TestNotifications(t *testing.T) {
	b := newBackend(t)
	c := newTestClient(t, b, nil)
	ctx := context.Background()

	list, err := c.GetNotifications(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(2), list[0].ID)

	tests := []struct {
		name   string
		call   func() error
		method string
		path   string
		body   string
	}{
		{
			name:   "update one",
			call:   func() error { return c.UpdateNotification(ctx, "alice", 5, true) },
			method: http.MethodPatch,
			path:   "/users/alice/notifications/5",
			body:   `{"id":5,"isRead":true}`,
		},
		{
			name: "update many",
			call: func() error {
				return c.UpdateNotifications(ctx, "alice", []NotificationUpdate{{ID: 1, IsRead: true}, {ID: 2, IsRead: true}})
			},
			method: http.MethodPut,
			path:   "/users/alice/notifications",
			body:   `{"notifications":[{"id":1,"isRead":true},{"id":2,"isRead":true}]}`,
		},
		{
			name:   "delete one",
			call:   func() error { return c.DeleteNotification(ctx, "alice", 5) },
			method: http.MethodDelete,
			path:   "/users/alice/notifications/5",
		},
		{
			name:   "delete many",
			call:   func() error { return c.DeleteNotifications(ctx, "alice", []int64{1, 2}) },
			method: http.MethodDelete,
			path:   "/users/alice/notifications",
			body:   `{"notifications":[1,2]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.call())
			got := b.last()
			assert.Equal(t, tt.method, got.Method)
			assert.Equal(t, tt.path, got.Path)
			if tt.body == "" {
				assert.Empty(t, got.Body)
			} else {
				assert.JSONEq(t, tt.body, got.Body)
			}
		})
	}
}

func TestResponseErrors(t *testing.T) {
	b := newBackend(t)
	c := newTestClient(t, b, nil)

	err := c.do(context.Background(), http.MethodGet, "/broken", nil, &struct{}{})
	assert.True(t, errors.IsCode(err, errors.ErrCodeBadResponse))

	err = c.do(context.Background(), http.MethodGet, "/boom", nil, nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeRequestFailed))
	assert.Contains(t, err.Error(), "500")
}

func TestUnreachableBackend(t *testing.T) {
	b := newBackend(t)
	url := b.URL
	b.Close()

	c, err := New(Options{BaseURL: url})
	require.NoError(t, err)
	_, err = c.ListStreams(context.Background())
	assert.True(t, errors.IsCode(err, errors.ErrCodeRequestFailed))
}

func TestMiddleware(t *testing.T) {
	b := newBackend(t)
	c := newTestClient(t, b, func(o *Options) {
		o.Header = http.Header{"X-Client": []string{"zenclient"}}
		o.RatePerSecond = 0.001
		o.RateBurst = 2
	})
	ctx := context.Background()

	_, err := c.ListStreams(ctx)
	require.NoError(t, err)
	assert.Equal(t, "zenclient", b.last().Header.Get("X-Client"))
	assert.Equal(t, "application/json", b.last().Header.Get("Accept"))

	_, err = c.ListStreams(ctx)
	require.NoError(t, err)

	_, err = c.ListStreams(ctx)
	assert.True(t, errors.IsCode(err, errors.ErrCodeRateLimited))
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.RoundTripper) http.RoundTripper {
			return roundTripFunc(func(r *http.Request) (*http.Response, error) {
				order = append(order, name)
				return next.RoundTrip(r)
			})
		}
	}
	base := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		order = append(order, "base")
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	})

	req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	_, err := Chain(base, mw("a"), mw("b")).RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "base"}, order)
}

func TestPasswordHash(t *testing.T) {
	tests := []struct {
		name                   string
		password, salt, pepper string
		want                   string
	}{
		{name: "hello", password: "ll", salt: "he", pepper: "o", want: "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"},
		{name: "missing salt", password: "pw", pepper: "p", want: ""},
		{name: "missing pepper", password: "pw", salt: "s", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PasswordHash(tt.password, tt.salt, tt.pepper))
		})
	}

	assert.Len(t, PasswordHash("pw", "s", "p"), 64)
}
