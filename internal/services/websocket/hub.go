// Package websocket fans detection events out to live viewers.
package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"pharmascan/internal/dto"
	"pharmascan/internal/logger"
)

const broadcastBuffer = 64

// ViewerRecorder tracks the number of connected viewers. Metrics implement it.
type ViewerRecorder interface {
	SetViewers(n int)
}

type HubService struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mutex      sync.RWMutex
	recorder   ViewerRecorder
	logger     *logger.Logger
}

// NewHubService creates a hub. recorder may be nil.
func NewHubService(recorder ViewerRecorder, logger *logger.Logger) *HubService {
	return &HubService{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		recorder:   recorder,
		logger:     logger,
	}
}

// Run serves register, unregister and broadcast requests until ctx is done,
// then closes every client connection.
func (h *HubService) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			h.updateViewers()
			return nil

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			h.logger.Info("Client connected. Total: %d", h.GetClientCount())
			h.updateViewers()

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			h.mutex.Unlock()
			h.logger.Info("Client disconnected. Total: %d", h.GetClientCount())
			h.updateViewers()

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					h.logger.Error("Error sending message: %v", err)
					delete(h.clients, client)
					client.Close()
				}
			}
			h.mutex.Unlock()
			h.updateViewers()
		}
	}
}

func (h *HubService) updateViewers() {
	if h.recorder != nil {
		h.recorder.SetViewers(h.GetClientCount())
	}
}

// Register adds a client. It returns false when the hub is no longer running.
func (h *HubService) Register(client *websocket.Conn) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes and closes a client.
func (h *HubService) Unregister(client *websocket.Conn) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues a message for all clients. It never blocks the caller;
// when the queue is full the message is dropped.
func (h *HubService) Broadcast(message []byte) bool {
	select {
	case h.broadcast <- message:
		return true
	default:
		h.logger.Debug("Broadcast queue full, dropping message")
		return false
	}
}

// BroadcastEvent serializes event and broadcasts it when anyone is watching.
func (h *HubService) BroadcastEvent(event dto.DetectionEvent) bool {
	if h.GetClientCount() == 0 {
		return false
	}
	message, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to marshal detection event: %v", err)
		return false
	}
	return h.Broadcast(message)
}

func (h *HubService) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
