package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/lumasites/lumasites-backend/api/responses"
	"github.com/lumasites/lumasites-backend/internal/mediasync"
	"github.com/lumasites/lumasites-backend/pkg/logger"
)

const (
	progressWriteTimeout = 10 * time.Second
	progressPingInterval = 30 * time.Second
)

var progressUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The HTTP layer already enforced auth and site scope.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// MediaSaveProgress streams a running save's aggregate progress over a
// websocket. The stream ends with the terminal update once the save settles,
// or earlier if the client goes away.
func MediaSaveProgress(registry *mediasync.Registry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		saveID := chi.URLParam(r, "saveID")

		updates, unsubscribe, err := registry.Subscribe(saveID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer unsubscribe()

		conn, err := progressUpgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote the handshake failure.
			if logg != nil {
				logg.Warn(r.Context(), "progress websocket upgrade failed")
			}
			return
		}
		defer func() { _ = conn.Close() }()

		// Drain client frames so close messages are processed.
		clientGone := make(chan struct{})
		go func() {
			defer close(clientGone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		pings := time.NewTicker(progressPingInterval)
		defer pings.Stop()

		for {
			select {
			case update, open := <-updates:
				if !open {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
						time.Now().Add(progressWriteTimeout))
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(progressWriteTimeout))
				if err := conn.WriteJSON(update); err != nil {
					return
				}
			case <-pings.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(progressWriteTimeout)); err != nil {
					return
				}
			case <-clientGone:
				return
			}
		}
	}
}
