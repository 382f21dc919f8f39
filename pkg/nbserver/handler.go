// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package nbserver

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"html/template"
	"net/http"
	"sync"

	"github.com/klauspost/compress/gzhttp"
	"github.com/r3labs/sse/v2"
	"go.uber.org/zap"

	"github.com/teradata-labs/nblaunch/pkg/notebook"
)

const (
	sessionCookie = "nblaunch_session"
	statusStream  = "status"
)

var statusPage = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html>
<head><title>Notebook</title></head>
<body>
<h1>Notebook server</h1>
<p>Serving {{.Directory}}</p>
<p>{{.Worksheets}} worksheet(s), {{.Running}} running.</p>
{{if .SignedIn}}<p>Signed in as admin.</p>{{end}}
</body>
</html>
`))

type statusView struct {
	Directory  string
	Worksheets int
	Running    int
	SignedIn   bool
}

// handler serves the status page, the startup-token handshake and the status stream.
type handler struct {
	nb     *notebook.Notebook
	logger *zap.Logger
	events *sse.Server

	mu       sync.Mutex
	token    string
	sessions map[string]bool
}

func newHandler(nb *notebook.Notebook, token string, logger *zap.Logger) *handler {
	events := sse.New()
	events.AutoReplay = false
	events.CreateStream(statusStream)
	return &handler{
		nb:       nb,
		logger:   logger,
		events:   events,
		token:    token,
		sessions: make(map[string]bool),
	}
}

func (h *handler) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", gzhttp.GzipHandler(http.HandlerFunc(h.handleIndex)))
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.Handle("/events", h.events)
	return mux
}

// publish sends a status event to subscribed pages.
func (h *handler) publish(status string) {
	h.events.Publish(statusStream, &sse.Event{Event: []byte("status"), Data: []byte(status)})
}

func (h *handler) close() {
	h.events.Close()
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (h *handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if token := r.URL.Query().Get("startup_token"); token != "" {
		h.redeem(w, r, token)
		return
	}

	view, err := h.status(r.Context())
	if err != nil {
		h.logger.Error("Failed to read notebook status", zap.Error(err))
		http.Error(w, "notebook unavailable", http.StatusInternalServerError)
		return
	}
	view.SignedIn = h.signedIn(r)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := statusPage.Execute(w, view); err != nil {
		h.logger.Warn("Failed to render status page", zap.Error(err))
	}
}

// redeem trades the single-use startup token for a session cookie.
func (h *handler) redeem(w http.ResponseWriter, r *http.Request, token string) {
	h.mu.Lock()
	valid := h.token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(h.token)) == 1
	if valid {
		h.token = ""
	}
	h.mu.Unlock()

	if !valid {
		h.logger.Warn("Rejected startup token", zap.String("remote", r.RemoteAddr))
		http.Error(w, "invalid or used startup token", http.StatusForbidden)
		return
	}

	session, err := newSessionID()
	if err != nil {
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}
	h.mu.Lock()
	h.sessions[session] = true
	h.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    session,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
	h.logger.Info("Automatic login completed", zap.String("remote", r.RemoteAddr))
	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *handler) signedIn(r *http.Request) bool {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessions[c.Value]
}

func (h *handler) status(ctx context.Context) (statusView, error) {
	sheets, err := h.nb.Worksheets(ctx)
	if err != nil {
		return statusView{}, err
	}
	view := statusView{Directory: h.nb.Directory(), Worksheets: len(sheets)}
	for _, s := range sheets {
		if s.Running {
			view.Running++
		}
	}
	return view, nil
}

func newSessionID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
