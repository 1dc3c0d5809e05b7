package broadcast

import (
	"encoding/json"
	"log"
	"sync"
)

// Publisher fans a payload out to every subscriber of a place topic. The hub
// is the in-process implementation; a distributed backend can replace it
// without the lifecycle engine noticing.
type Publisher interface {
	Publish(placeID string, payload []byte)
}

type Client struct {
	ID      string
	Send    chan []byte
	PlaceID string
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// ControlMessage is the client-side subscribe/unsubscribe signal for a
// place topic.
type ControlMessage struct {
	Action  string `json:"action"`
	PlaceID string `json:"placeId"`
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) Subscribe(client *Client, placeID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.PlaceID = placeID
}

func (h *Hub) Publish(placeID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if client.PlaceID != placeID {
			continue
		}
		select {
		case client.Send <- payload:
		default:
			log.Printf("drop message for client %s", client.ID)
		}
	}
}

func ParseControl(data []byte) (ControlMessage, bool) {
	var msg ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ControlMessage{}, false
	}
	if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
		return ControlMessage{}, false
	}
	return msg, true
}
