package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	refreshRoute = "/api/auth/token/refresh/"
	publicPrefix = "/api/public/"
)

// fakeAPI stands in for the REST backend: resource routes accept one
// bearer token, the refresh route swaps a refresh token for a new access
// token.
type fakeAPI struct {
	mu sync.Mutex

	accepted     string
	refreshToken string
	issue        string
	rotateTo     string
	rejectAll    bool

	refreshStatus int
	refreshBody   string
	refreshDelay  time.Duration

	// holdUnauthorized makes the first N unauthorized calls wait for each
	// other before answering.
	holdUnauthorized int
	held             int
	gate             sync.WaitGroup

	authHeaders  []string
	requestIDs   []string
	bodies       []string
	refreshCalls int
	refreshSent  []string
}

func (f *fakeAPI) hold(n int) {
	f.holdUnauthorized = n
	f.gate.Add(n)
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == refreshRoute {
		f.serveRefresh(w, r)
		return
	}

	body, _ := io.ReadAll(r.Body)
	auth := r.Header.Get("Authorization")

	f.mu.Lock()
	f.authHeaders = append(f.authHeaders, auth)
	f.requestIDs = append(f.requestIDs, r.Header.Get(HeaderRequestID))
	f.bodies = append(f.bodies, string(body))
	authorized := !f.rejectAll && f.accepted != "" && auth == "Bearer "+f.accepted
	public := strings.HasPrefix(r.URL.Path, publicPrefix)
	wait := false
	if !authorized && !public && f.held < f.holdUnauthorized {
		f.held++
		wait = true
	}
	f.mu.Unlock()

	if wait {
		f.gate.Done()
		f.gate.Wait()
	}

	if !authorized && !public {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "token not valid"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"path": r.URL.Path, "query": r.URL.RawQuery})
}

func (f *fakeAPI) serveRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Refresh string `json:"refresh"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	f.refreshCalls++
	f.refreshSent = append(f.refreshSent, req.Refresh)
	delay := f.refreshDelay
	f.mu.Unlock()

	time.Sleep(delay)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.refreshStatus != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.refreshStatus)
		_, _ = io.WriteString(w, f.refreshBody)
		return
	}

	if req.Refresh == "" || req.Refresh != f.refreshToken {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "token not valid"})
		return
	}

	f.accepted = f.issue
	resp := map[string]string{"access": f.issue}
	if f.rotateTo != "" {
		resp["refresh"] = f.rotateTo
		f.refreshToken = f.rotateTo
	}
	writeJSON(w, http.StatusOK, resp)
}

func (f *fakeAPI) snapshot() (auth []string, refreshCalls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.authHeaders...), f.refreshCalls
}

func (f *fakeAPI) recorded() (requestIDs, bodies, refreshSent []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requestIDs...),
		append([]string(nil), f.bodies...),
		append([]string(nil), f.refreshSent...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// failingDoer fails every request whose path matches, and delegates the rest.
type failingDoer struct {
	next Doer
	path string
	err  error
}

func (d failingDoer) Do(req *http.Request) (*http.Response, error) {
	if req.URL.Path == d.path {
		return nil, d.err
	}
	return d.next.Do(req)
}
