package api

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"hip3-taker/internal/config"
)

// Handlers holds all HTTP handler dependencies.
type Handlers struct {
	provider MarketSnapshotProvider
	cfg      config.AppConfig
	hub      *Hub
	logger   *slog.Logger
}

// NewHandlers creates a new handlers instance.
func NewHandlers(provider MarketSnapshotProvider, cfg config.AppConfig, hub *Hub, logger *slog.Logger) *Handlers {
	return &Handlers{
		provider: provider,
		cfg:      cfg,
		hub:      hub,
		logger:   logger.With("component", "api-handlers"),
	}
}

// HandleHealth reports process liveness plus the one piece of state a
// dashboard consumer actually needs before polling further: whether the
// hard-stop latch has tripped. A tripped latch still answers with 200 (the
// process is alive and serving) but flips status to "halted" so an operator
// watching curl/health doesn't have to hit /api/snapshot to notice.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	risk := h.provider.GetRiskSnapshot()

	status := "ok"
	if risk.HardStopTripped {
		status = "halted"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":           status,
		"hard_stop_reason": risk.HardStopReason,
	})
}

// HandleSnapshot returns the current dashboard state.
func (h *Handlers) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	if !h.checkAuth(w, r) {
		return
	}

	snapshot := BuildSnapshot(h.provider, h.cfg)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshot); err != nil {
		h.logger.Error("failed to encode snapshot", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
}

// HandleWebSocket upgrades the connection and hands it to the hub.
// Connections are rejected past MaxConnections rather than accepted and
// immediately starved - the dashboard's broadcast loop fans out to every
// registered client on a fixed interval regardless of count, so an unbounded
// client set degrades every existing connection instead of just the new one.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !h.checkAuth(w, r) {
		return
	}

	if max := h.cfg.Dashboard.MaxConnections; max > 0 && h.hub.ClientCount() >= max {
		h.logger.Warn("dashboard connection limit reached, rejecting client", "max_connections", max)
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(req *http.Request) bool {
			return originAllowed(req.Header.Get("Origin"), h.cfg.Dashboard.AllowedOrigins, req.Host)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	// The connect-time snapshot rides along as the first frame so a fresh
	// client renders immediately instead of waiting for the next broadcast.
	var initial []byte
	if data, err := json.Marshal(DashboardEvent{Type: "snapshot", Data: BuildSnapshot(h.provider, h.cfg)}); err == nil {
		initial = data
	} else {
		h.logger.Error("failed to marshal connect-time snapshot", "error", err)
	}

	go h.hub.ServeClient(conn, initial)
}

// checkAuth enforces HTTP basic auth when the dashboard config carries
// non-empty credentials; dashboards with no username/password configured
// stay open, matching the opt-in auth the config struct describes.
func (h *Handlers) checkAuth(w http.ResponseWriter, r *http.Request) bool {
	if !h.cfg.Dashboard.AuthEnabled() {
		return true
	}

	user, pass, ok := r.BasicAuth()
	if ok &&
		subtle.ConstantTimeCompare([]byte(user), []byte(h.cfg.Dashboard.Username)) == 1 &&
		subtle.ConstantTimeCompare([]byte(pass), []byte(h.cfg.Dashboard.Password)) == 1 {
		return true
	}

	w.Header().Set("WWW-Authenticate", `Basic realm="dashboard"`)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
	return false
}

// originAllowed gates browser connections to the dashboard. This is an
// operator tool, not a public surface, so the policy is narrow: with no
// allowlist configured, only a page served by this same process (or a
// non-browser client, which sends no Origin header) may connect; a
// configured allowlist replaces the same-host rule with exact matching.
func originAllowed(origin string, allowed []string, reqHost string) bool {
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false
	}

	if len(allowed) > 0 {
		full := u.Scheme + "://" + u.Host
		for _, a := range allowed {
			if strings.EqualFold(strings.TrimRight(a, "/"), full) {
				return true
			}
		}
		return false
	}

	// Same-host rule, compared on hostname so the port the browser saw
	// (possibly forwarded) doesn't have to match the listen port. Loopback
	// names are admitted outright for local tooling.
	host := strings.ToLower(u.Hostname())
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	if rh, _, err := net.SplitHostPort(reqHost); err == nil {
		reqHost = rh
	}
	return host == strings.ToLower(reqHost)
}
