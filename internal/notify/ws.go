package notify

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/jun/dijitalmektup/internal/logger"
	"github.com/jun/dijitalmektup/internal/model"
)

// Authenticator resolves the user of a request from its headers.
type Authenticator interface {
	Authenticate(ctx context.Context, headers map[string]string) (*model.User, error)
}

// Handler upgrades authenticated requests to notification sockets.
type Handler struct {
	hub      *Hub
	auth     Authenticator
	upgrader websocket.Upgrader
	log      *logger.Logger
}

// NewHandler only accepts connections whose Origin equals allowedOrigin. An
// empty allowedOrigin accepts any origin.
func NewHandler(hub *Hub, auth Authenticator, allowedOrigin string, log *logger.Logger) *Handler {
	return &Handler{
		hub:  hub,
		auth: auth,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return allowedOrigin == "" || r.Header.Get("Origin") == allowedOrigin
			},
		},
		log: log,
	}
}

func requestHeaders(r *http.Request) map[string]string {
	headers := make(map[string]string, len(r.Header)+1)
	for k, v := range r.Header {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}
	// browsers cannot set headers on websocket requests
	if token := r.URL.Query().Get("token"); token != "" && headers["Authorization"] == "" {
		headers["Authorization"] = "Bearer " + token
	}
	return headers
}

// ServeWS handles websocket requests from the peer.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request, shutdownCtx context.Context) {
	user, authErr := h.auth.Authenticate(r.Context(), requestHeaders(r))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error(err, "failed to upgrade websocket connection")
		return
	}

	// the connection must be upgraded to send a close reason
	if authErr != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Unauthenticated"),
		)
		conn.Close()
		return
	}

	client := NewClient(h.hub, conn, *user, h.log)
	h.hub.OpenCh <- client

	go client.ReadPump()
	go client.WritePump(shutdownCtx)
}
