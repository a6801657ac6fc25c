package notify

import (
	"context"

	"github.com/jun/dijitalmektup/internal/adapter"
	"github.com/jun/dijitalmektup/internal/logger"
)

const maxConnectionsPerUser = 5

type delivery struct {
	uid     string
	message []byte
}

// Hub tracks connected clients per user. All maps are owned by Run; other
// goroutines talk to it through the channels.
type Hub struct {
	pubsub adapter.PubSub
	log    *logger.Logger

	OpenCh    chan *Client
	CloseCh   chan *Client
	deliverCh chan delivery

	userToClients    map[string]map[*Client]struct{}
	subscriberCancel map[string]context.CancelFunc
}

func NewHub(pubsub adapter.PubSub, log *logger.Logger) *Hub {
	return &Hub{
		pubsub:           pubsub,
		log:              log,
		OpenCh:           make(chan *Client, 256),
		CloseCh:          make(chan *Client, 256),
		deliverCh:        make(chan delivery, 1024),
		userToClients:    make(map[string]map[*Client]struct{}),
		subscriberCancel: make(map[string]context.CancelFunc),
	}
}

// Run serves the hub until shutdownCtx is cancelled.
func (h *Hub) Run(shutdownCtx context.Context) {
	for {
		select {
		case client := <-h.OpenCh:
			h.open(client)

		case client := <-h.CloseCh:
			h.close(client)

		case d := <-h.deliverCh:
			for client := range h.userToClients[d.uid] {
				select {
				case client.Send <- d.message:
				default:
					// slow consumer
					h.log.With("user", d.uid).Warn("dropping websocket client with a full send buffer")
					h.close(client)
				}
			}

		case <-shutdownCtx.Done():
			for _, cancel := range h.subscriberCancel {
				cancel()
			}
			return
		}
	}
}

func (h *Hub) open(client *Client) {
	uid := client.user.UID
	clients := h.userToClients[uid]
	if len(clients) >= maxConnectionsPerUser {
		h.log.With("user", uid).Warn("user reached max websocket connections")
		client.closeSend()
		return
	}

	if clients == nil {
		ctx, cancel := context.WithCancel(context.Background())
		err := h.pubsub.Subscribe(ctx, Channel(uid), func(message []byte) {
			h.deliverCh <- delivery{uid: uid, message: message}
		})
		if err != nil {
			cancel()
			h.log.With("user", uid).Error(err, "failed to subscribe to user channel")
			client.closeSend()
			return
		}
		clients = make(map[*Client]struct{})
		h.userToClients[uid] = clients
		h.subscriberCancel[uid] = cancel
	}
	clients[client] = struct{}{}
}

func (h *Hub) close(client *Client) {
	uid := client.user.UID
	clients, ok := h.userToClients[uid]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	client.closeSend()

	if len(clients) == 0 {
		if cancel, ok := h.subscriberCancel[uid]; ok {
			cancel()
			delete(h.subscriberCancel, uid)
		}
		delete(h.userToClients, uid)
	}
}
