package gateway

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

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"authgate/internal/lib/logger/sl"
	"authgate/internal/storage"
)

const (
	DefaultRefreshPath = "auth/token/refresh/"
	DefaultLoginRoute  = "/login"

	HeaderRequestID = "X-Request-ID"
)

var (
	ErrInvalidPath      = errors.New("path must be relative to the base url")
	ErrRefreshRejected  = errors.New("refresh rejected")
	ErrMalformedRefresh = errors.New("malformed refresh response")
	ErrNoRefreshToken   = errors.New("no refresh token stored")
)

// CredentialStore persists the access and refresh tokens. Get returns
// storage.ErrCredentialNotFound for an absent key.
type CredentialStore interface {
	Get(ctx context.Context, key storage.Key) (string, error)
	Set(ctx context.Context, key storage.Key, value string) error
	Delete(ctx context.Context, keys ...storage.Key) error
}

type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// LogoutFunc is called once per request that ends unauthenticated.
type LogoutFunc func(ctx context.Context, loginRoute string)

type Options struct {
	// BaseURL every request path is resolved against.
	BaseURL     string
	RefreshPath string
	LoginRoute  string
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient   Doer
	SingleFlight bool
	OnLogout     LogoutFunc
	Metrics      *Metrics
}

// Gateway attaches the stored bearer token to outbound calls and recovers
// from a rejected token with one refresh and one retry.
type Gateway struct {
	logger       *slog.Logger
	store        CredentialStore
	client       Doer
	baseURL      *url.URL
	refreshPath  string
	refreshURL   string
	loginRoute   string
	singleFlight bool
	flight       singleflight.Group
	onLogout     LogoutFunc
	metrics      *Metrics
}

// New returns a new instance of the Gateway.
func New(logger *slog.Logger, store CredentialStore, opts Options) (*Gateway, error) {
	const op = "gateway.New"

	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s: parse base url: %w", op, err)
	}
	if !base.IsAbs() {
		return nil, fmt.Errorf("%s: base url %q is not absolute", op, opts.BaseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	g := &Gateway{
		logger:       logger,
		store:        store,
		client:       opts.HTTPClient,
		baseURL:      base,
		refreshPath:  opts.RefreshPath,
		loginRoute:   opts.LoginRoute,
		singleFlight: opts.SingleFlight,
		onLogout:     opts.OnLogout,
		metrics:      opts.Metrics,
	}
	if g.client == nil {
		g.client = http.DefaultClient
	}
	if g.refreshPath == "" {
		g.refreshPath = DefaultRefreshPath
	}
	if g.loginRoute == "" {
		g.loginRoute = DefaultLoginRoute
	}

	g.refreshURL, err = g.resolve(g.refreshPath)
	if err != nil {
		return nil, fmt.Errorf("%s: refresh path: %w", op, err)
	}

	return g, nil
}

// Send issues req with the current bearer token. HTTP error statuses are
// returned inside the Result; the error is non-nil only for transport and
// storage failures.
func (g *Gateway) Send(ctx context.Context, req Request) (Result, error) {
	const op = "gateway.Send"

	if req.Method == "" {
		req.Method = http.MethodGet
	}

	log := g.logger.With(
		slog.String("op", op),
		slog.String("method", req.Method),
		slog.String("path", req.Path),
	)

	c, err := g.prepare(req)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}
	log = log.With(slog.String("request_id", c.header.Get(HeaderRequestID)))

	if req.Public {
		resp, err := g.do(ctx, c, "")
		if err != nil {
			log.Warn("request failed", sl.Err(err))
			g.metrics.observeRequest(requestTransportError)
			return Result{}, err
		}
		return g.ok(resp, false), nil
	}

	access, err := g.credential(ctx, storage.KeyAccessToken)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}

	resp, err := g.do(ctx, c, access)
	if err != nil {
		log.Warn("request failed", sl.Err(err))
		g.metrics.observeRequest(requestTransportError)
		return Result{}, err
	}

	if resp.StatusCode != http.StatusUnauthorized {
		return g.ok(resp, false), nil
	}

	log.Info("access token rejected")

	if g.singleFlight {
		current, err := g.credential(ctx, storage.KeyAccessToken)
		if err != nil {
			return Result{}, fmt.Errorf("%s: %w", op, err)
		}
		if current != "" && current != access {
			log.Info("access token replaced concurrently, retrying")
			return g.retry(ctx, log, c, current)
		}
	}

	refreshToken, err := g.credential(ctx, storage.KeyRefreshToken)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}

	if refreshToken == "" {
		log.Info("no refresh token stored, ending session")
		if err := g.store.Delete(ctx, storage.KeyAccessToken); err != nil {
			log.Error("failed to clear access token", sl.Err(err))
			return Result{}, fmt.Errorf("%s: %w", op, err)
		}
		return g.logout(ctx, resp), nil
	}

	newAccess, err := g.refresh(ctx, refreshToken)
	if err != nil {
		if !IsRefreshFailure(err) {
			log.Warn("refresh did not complete", sl.Err(err))
			return Result{}, err
		}

		log.Warn("refresh failed, ending session", sl.Err(err))
		if err := g.store.Delete(ctx, storage.Keys...); err != nil {
			log.Error("failed to clear credentials", sl.Err(err))
			return Result{}, fmt.Errorf("%s: %w", op, err)
		}
		return g.logout(ctx, resp), nil
	}

	return g.retry(ctx, log, c, newAccess)
}

// retry re-issues the original call once; its response is final.
func (g *Gateway) retry(ctx context.Context, log *slog.Logger, c *call, access string) (Result, error) {
	resp, err := g.do(ctx, c, access)
	if err != nil {
		log.Warn("retry failed", sl.Err(err))
		g.metrics.observeRequest(requestTransportError)
		return Result{}, err
	}

	log.Debug("retried with refreshed token", slog.Int("status", resp.StatusCode))

	return g.ok(resp, true), nil
}

func (g *Gateway) ok(resp *Response, refreshed bool) Result {
	if refreshed {
		g.metrics.observeRequest(requestRefreshed)
	} else {
		g.metrics.observeRequest(requestOK)
	}

	return Result{Outcome: OutcomeOK, Response: resp, Refreshed: refreshed}
}

func (g *Gateway) logout(ctx context.Context, resp *Response) Result {
	g.metrics.observeRequest(requestUnauthenticated)

	if g.onLogout != nil {
		g.onLogout(ctx, g.loginRoute)
	}

	return Result{
		Outcome:    OutcomeUnauthenticated,
		Response:   resp,
		LoginRoute: g.loginRoute,
	}
}

// credential returns "" for an absent key.
func (g *Gateway) credential(ctx context.Context, key storage.Key) (string, error) {
	v, err := g.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrCredentialNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return v, nil
}

// call is a prepared request that can be issued more than once.
type call struct {
	method string
	url    string
	body   []byte
	header http.Header
}

func (g *Gateway) prepare(req Request) (*call, error) {
	target, err := g.resolve(req.Path)
	if err != nil {
		return nil, err
	}

	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}

	header := req.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	if !req.Public {
		header.Del("Authorization")
	}
	if header.Get(HeaderRequestID) == "" {
		header.Set(HeaderRequestID, uuid.NewString())
	}
	if header.Get("Accept") == "" {
		header.Set("Accept", "application/json")
	}
	if body != nil && header.Get("Content-Type") == "" {
		header.Set("Content-Type", "application/json")
	}

	return &call{
		method: req.Method,
		url:    target,
		body:   body,
		header: header,
	}, nil
}

// resolve joins path onto the base URL. The result must stay under the
// base path, so dot segments cannot climb out of it.
func (g *Gateway) resolve(path string) (string, error) {
	p, query, _ := strings.Cut(path, "?")
	if strings.Contains(p, "://") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}

	ref := &url.URL{Path: strings.TrimLeft(p, "/"), RawQuery: query}

	target := g.baseURL.ResolveReference(ref)
	if !strings.HasPrefix(target.Path, g.baseURL.Path) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}

	return target.String(), nil
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		return data, nil
	}
}

func (g *Gateway) do(ctx context.Context, c *call, token string) (*Response, error) {
	var body io.Reader
	if c.body != nil {
		body = bytes.NewReader(c.body)
	}

	req, err := http.NewRequestWithContext(ctx, c.method, c.url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header = c.header.Clone()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	op := c.method + " " + c.url

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}
