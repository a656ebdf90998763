// Package adminapi defines the small stdlib net/http + encoding/json
// control surface for bfdd: listing sessions and triggering a
// configuration reload. Both the daemon (server side) and bfdctl (client
// side) import this package so the wire shapes never drift apart.
package adminapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dantte-lp/bfdd/internal/bfd"
)

// Routes exposed by the admin HTTP endpoint.
const (
	PathSessions = "/api/v1/sessions"
	PathReload   = "/api/v1/reload"
	PathHealth   = "/healthz"
)

// SessionView is the JSON representation of one bfd.Snapshot.
type SessionView struct {
	Name                string `json:"name"`
	NeighborAddr        string `json:"neighbor_addr"`
	LocalState          string `json:"local_state"`
	RemoteState         string `json:"remote_state"`
	LocalDiag           string `json:"local_diag"`
	LocalDiscriminator  uint32 `json:"local_discriminator"`
	RemoteDiscriminator uint32 `json:"remote_discriminator"`
	LocalTxIntervalMS   int64  `json:"local_tx_interval_ms"`
	DetectTimeMS        int64  `json:"detect_time_ms"`
	RemoteDetectTimeMS  int64  `json:"remote_detect_time_ms"`
}

// SessionsResponse is the body of a GET PathSessions response.
type SessionsResponse struct {
	Sessions []SessionView `json:"sessions"`
}

// ReloadResponse is the body of a POST PathReload response.
type ReloadResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// viewFromSnapshot converts a dispatcher snapshot to its wire shape.
func viewFromSnapshot(s bfd.Snapshot) SessionView {
	return SessionView{
		Name:                s.Name,
		NeighborAddr:        s.NeighborAddr.String(),
		LocalState:          s.LocalState.String(),
		RemoteState:         s.RemoteState.String(),
		LocalDiag:           s.LocalDiag.String(),
		LocalDiscriminator:  s.LocalDiscr,
		RemoteDiscriminator: s.RemoteDiscr,
		LocalTxIntervalMS:   s.LocalTxIntv.Milliseconds(),
		DetectTimeMS:        s.DetectTime.Milliseconds(),
		RemoteDetectTimeMS:  s.RemoteDetectTime.Milliseconds(),
	}
}

// ReloadFunc performs a configuration reload and reports the outcome.
type ReloadFunc func() error

// NewHandler builds the admin HTTP mux: GET PathSessions, POST PathReload,
// GET PathHealth. Every handler runs on the calling HTTP server's own
// goroutine; reaching into dispatcher state is safe because d.Sessions()
// is already routed through Dispatcher.Do.
func NewHandler(d *bfd.Dispatcher, reload ReloadFunc, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	mux.HandleFunc(PathSessions, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		snapshots := d.Sessions()
		resp := SessionsResponse{Sessions: make([]SessionView, 0, len(snapshots))}
		for _, s := range snapshots {
			resp.Sessions = append(resp.Sessions, viewFromSnapshot(s))
		}

		writeJSON(w, logger, http.StatusOK, resp)
	})

	mux.HandleFunc(PathReload, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var resp ReloadResponse
		status := http.StatusOK
		if err := reload(); err != nil {
			resp.Error = err.Error()
			status = http.StatusInternalServerError
		} else {
			resp.OK = true
		}

		writeJSON(w, logger, status, resp)
	})

	mux.HandleFunc(PathHealth, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("admin api: failed to encode response", slog.String("error", err.Error()))
	}
}

// NewServer wraps NewHandler in an *http.Server bound to addr, with a
// conservative header-read timeout matching the rest of this codebase's
// HTTP servers.
func NewServer(addr string, d *bfd.Dispatcher, reload ReloadFunc, logger *slog.Logger) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewHandler(d, reload, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// SessionsURL and ReloadURL are convenience helpers for bfdctl.
func SessionsURL(baseAddr string) string { return fmt.Sprintf("http://%s%s", baseAddr, PathSessions) }
func ReloadURL(baseAddr string) string   { return fmt.Sprintf("http://%s%s", baseAddr, PathReload) }
