package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"authgate/internal/lib/logger/sl"
	"authgate/internal/storage"
)

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

// Issuers that rotate refresh tokens also return "refresh".
type refreshResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// refresh mints a new access token. With single-flight enabled, concurrent
// callers holding the same refresh token share one exchange; each waiter
// still returns early when its own ctx is done.
func (g *Gateway) refresh(ctx context.Context, refreshToken string) (string, error) {
	if !g.singleFlight {
		return g.exchange(ctx, refreshToken)
	}

	ch := g.flight.DoChan(refreshToken, func() (any, error) {
		return g.exchange(context.WithoutCancel(ctx), refreshToken)
	})

	select {
	case <-ctx.Done():
		return "", &TransportError{Op: http.MethodPost + " " + g.refreshURL, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Refresh swaps the stored refresh token for a new access token outside of
// any request and returns it. Unlike Send it never clears credentials: a
// rejected refresh is reported through IsRefreshFailure and the caller
// decides what to do with the session.
func (g *Gateway) Refresh(ctx context.Context) (string, error) {
	const op = "gateway.Refresh"

	refreshToken, err := g.credential(ctx, storage.KeyRefreshToken)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if refreshToken == "" {
		return "", fmt.Errorf("%s: %w", op, ErrNoRefreshToken)
	}

	access, err := g.refresh(ctx, refreshToken)
	if err != nil {
		g.logger.Warn("refresh failed", slog.String("op", op), sl.Err(err))
		return "", err
	}

	return access, nil
}

// exchange performs the refresh call and persists its result.
func (g *Gateway) exchange(ctx context.Context, refreshToken string) (string, error) {
	const op = "gateway.exchange"

	c, err := g.prepare(Request{
		Method: http.MethodPost,
		Path:   g.refreshPath,
		Body:   refreshRequest{Refresh: refreshToken},
		Public: true,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	resp, err := g.do(ctx, c, "")
	if err != nil {
		g.metrics.observeRefresh(refreshTransportError)
		return "", err
	}

	if !resp.IsSuccess() {
		g.metrics.observeRefresh(refreshRejected)
		return "", fmt.Errorf("%s: %w: status %d", op, ErrRefreshRejected, resp.StatusCode)
	}

	var payload refreshResponse
	if err := resp.Decode(&payload); err != nil {
		g.metrics.observeRefresh(refreshMalformed)
		return "", fmt.Errorf("%s: %w: %v", op, ErrMalformedRefresh, err)
	}
	if payload.Access == "" {
		g.metrics.observeRefresh(refreshMalformed)
		return "", fmt.Errorf("%s: %w: missing access", op, ErrMalformedRefresh)
	}

	if err := g.store.Set(ctx, storage.KeyAccessToken, payload.Access); err != nil {
		g.metrics.observeRefresh(refreshStoreError)
		return "", fmt.Errorf("%s: store access token: %w", op, err)
	}
	if payload.Refresh != "" && payload.Refresh != refreshToken {
		if err := g.store.Set(ctx, storage.KeyRefreshToken, payload.Refresh); err != nil {
			g.metrics.observeRefresh(refreshStoreError)
			return "", fmt.Errorf("%s: store refresh token: %w", op, err)
		}
	}

	g.metrics.observeRefresh(refreshSuccess)

	return payload.Access, nil
}

// IsRefreshFailure reports whether err means the issuer refused to refresh.
func IsRefreshFailure(err error) bool {
	return errors.Is(err, ErrRefreshRejected) || errors.Is(err, ErrMalformedRefresh)
}
