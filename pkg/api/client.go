// Package api is the REST client for the streaming backend. Requests carry
// the session cookie through a shared jar so the socket transport can
// reuse the same credentials.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aminofox/zenclient/pkg/errors"
	"github.com/aminofox/zenclient/pkg/logger"
	"github.com/aminofox/zenclient/pkg/realtime"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Options configures a Client
type Options struct {
	// BaseURL is the backend origin, e.g. http://localhost:5000
	BaseURL string

	// Timeout bounds each request; 0 means no client-side timeout
	Timeout time.Duration

	// Jar stores the session cookie; a fresh jar is created when nil
	Jar http.CookieJar

	// Transport is the innermost round tripper; http.DefaultTransport when nil
	Transport http.RoundTripper

	// RatePerSecond limits outgoing requests; 0 disables the limiter
	RatePerSecond float64
	RateBurst     int

	// Header is added to every request
	Header http.Header

	Logger logger.Logger
}

// Client talks to the backend REST API
type Client struct {
	base   *url.URL
	http   *http.Client
	jar    http.CookieJar
	logger logger.Logger
}

// New creates a client
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfig, fmt.Sprintf("invalid API base URL %q", opts.BaseURL))
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidConfig, "create cookie jar", err)
		}
		opts.Jar = jar
	}
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}

	log := opts.Logger.With(logger.String("component", "api"))
	mws := []Middleware{WithLogging(log), WithHeaders(opts.Header)}
	if opts.RatePerSecond > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		mws = append(mws, WithRateLimit(opts.RatePerSecond, burst, log))
	}

	return &Client{
		base: base,
		http: &http.Client{
			Transport: otelhttp.NewTransport(Chain(opts.Transport, mws...)),
			Jar:       opts.Jar,
			Timeout:   opts.Timeout,
		},
		jar:    opts.Jar,
		logger: log,
	}, nil
}

// Jar returns the cookie jar shared with the socket transport
func (c *Client) Jar() http.CookieJar {
	return c.jar
}

// BaseURL returns the backend origin
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Me returns the signed-in user. It fails with ErrCodeUnauthorized when no
// session exists.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Login starts a session. passwordHash comes from PasswordHash.
func (c *Client) Login(ctx context.Context, username, passwordHash string) (*LoginResponse, error) {
	if username == "" || passwordHash == "" {
		return nil, errors.NewInvalidArgumentError("credentials", "username and password hash are required")
	}
	var resp LoginResponse
	body := loginRequest{Username: username, PasswordHash: passwordHash}
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout ends the session
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/auth/logout", nil, nil)
}

// ListStreams returns every stream currently known to the backend
func (c *Client) ListStreams(ctx context.Context) ([]realtime.Stream, error) {
	var streams []realtime.Stream
	if err := c.do(ctx, http.MethodGet, "/streams", nil, &streams); err != nil {
		return nil, err
	}
	return streams, nil
}

// GetStream returns one stream
func (c *Client) GetStream(ctx context.Context, streamID string) (*realtime.Stream, error) {
	if streamID == "" {
		return nil, errors.NewInvalidArgumentError("streamID", "must not be empty")
	}
	var s realtime.Stream
	if err := c.do(ctx, http.MethodGet, "/streams/"+url.PathEscape(streamID), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetNotifications lists a user's notifications
func (c *Client) GetNotifications(ctx context.Context, username string) ([]realtime.Notification, error) {
	var out []realtime.Notification
	if err := c.do(ctx, http.MethodGet, notificationsPath(username), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateNotification sets the read flag of one notification
func (c *Client) UpdateNotification(ctx context.Context, username string, id int64, isRead bool) error {
	path := notificationsPath(username) + "/" + strconv.FormatInt(id, 10)
	return c.do(ctx, http.MethodPatch, path, NotificationUpdate{ID: id, IsRead: isRead}, nil)
}

// UpdateNotifications sets the read flag of several notifications at once
func (c *Client) UpdateNotifications(ctx context.Context, username string, updates []NotificationUpdate) error {
	return c.do(ctx, http.MethodPut, notificationsPath(username), notificationsBody[NotificationUpdate]{Notifications: updates}, nil)
}

// DeleteNotification removes one notification
func (c *Client) DeleteNotification(ctx context.Context, username string, id int64) error {
	path := notificationsPath(username) + "/" + strconv.FormatInt(id, 10)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// DeleteNotifications removes several notifications at once
func (c *Client) DeleteNotifications(ctx context.Context, username string, ids []int64) error {
	return c.do(ctx, http.MethodDelete, notificationsPath(username), notificationsBody[int64]{Notifications: ids}, nil)
}

func notificationsPath(username string) string {
	return "/users/" + url.PathEscape(username) + "/notifications"
}

// do sends a JSON request and decodes a JSON response into out when non-nil
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidArgument, "encode request body", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, rd)
	if err != nil {
		return errors.Wrap(errors.ErrCodeRequestFailed, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeRateLimited) {
			return err
		}
		return errors.Wrap(errors.ErrCodeRequestFailed, fmt.Sprintf("%s %s", method, path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return statusError(method, path, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(errors.ErrCodeBadResponse, fmt.Sprintf("decode %s %s", method, path), err)
	}
	return nil
}

// statusError maps an HTTP failure onto an error code, keeping the server's message
func statusError(method, path string, resp *http.Response) error {
	var apiErr struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(data, &apiErr)

	msg := apiErr.Message
	if msg == "" {
		msg = apiErr.Error
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	msg = fmt.Sprintf("%s %s: %d %s", method, path, resp.StatusCode, msg)

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.New(errors.ErrCodeUnauthorized, msg)
	case http.StatusNotFound:
		return errors.New(errors.ErrCodeNotFound, msg)
	default:
		return errors.New(errors.ErrCodeRequestFailed, msg)
	}
}
