package ws

import (
	"context"
	"sync"
	"time"

	"crm_backend/internal/logger"
)

// Event - то, что уходит клиенту в сокет
type Event struct {
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// WebSocketManager держит подключения по аккаунтам. У одного аккаунта
// может быть несколько вкладок, поэтому клиенты хранятся множеством.
type WebSocketManager struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client

	// закрывается, когда Run вышел: дальше register/unregister никто не читает
	done chan struct{}
	mu   sync.RWMutex
}

func NewWebSocketManager() *WebSocketManager {
	return &WebSocketManager{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

func (manager *WebSocketManager) Run(ctx context.Context) {
	defer close(manager.done)
	for {
		select {
		case <-ctx.Done():
			manager.closeAll()
			return

		case client := <-manager.register:
			manager.mu.Lock()
			set, ok := manager.clients[client.UserID]
			if !ok {
				set = make(map[*Client]struct{})
				manager.clients[client.UserID] = set
			}
			set[client] = struct{}{}
			manager.mu.Unlock()
			logger.Debug("ws client registered", "user_id", client.UserID, "connections", len(set))

		case client := <-manager.unregister:
			manager.remove(client)
		}
	}
}

// Register возвращает false, если менеджер уже остановлен
func (manager *WebSocketManager) Register(client *Client) bool {
	select {
	case manager.register <- client:
		return true
	case <-manager.done:
		return false
	}
}

// Unregister не блокируется после остановки менеджера
func (manager *WebSocketManager) Unregister(client *Client) {
	select {
	case manager.unregister <- client:
	case <-manager.done:
	}
}

func (manager *WebSocketManager) remove(client *Client) {
	manager.mu.Lock()
	defer manager.mu.Unlock()

	set, ok := manager.clients[client.UserID]
	if !ok {
		return
	}
	if _, ok := set[client]; !ok {
		return
	}
	delete(set, client)
	close(client.Send)
	if len(set) == 0 {
		delete(manager.clients, client.UserID)
	}
	logger.Debug("ws client unregistered", "user_id", client.UserID)
}

func (manager *WebSocketManager) closeAll() {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	for userID, set := range manager.clients {
		for client := range set {
			close(client.Send)
		}
		delete(manager.clients, userID)
	}
}

// PublishToUser отправляет событие во все сокеты аккаунта.
// Медленный клиент отключается, отправитель не блокируется.
func (manager *WebSocketManager) PublishToUser(userID, eventType string, data any) {
	event := Event{Type: eventType, Data: data, Timestamp: time.Now().UTC()}

	manager.mu.RLock()
	defer manager.mu.RUnlock()

	for client := range manager.clients[userID] {
		select {
		case client.Send <- event:
		default:
			go manager.Unregister(client)
			logger.Warn("ws client dropped: send buffer full", "user_id", userID)
		}
	}
}

// GetClientCount возвращает количество подключений
func (manager *WebSocketManager) GetClientCount() int {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	n := 0
	for _, set := range manager.clients {
		n += len(set)
	}
	return n
}

// IsClientConnected проверяет, есть ли у аккаунта открытый сокет
func (manager *WebSocketManager) IsClientConnected(userID string) bool {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	return len(manager.clients[userID]) > 0
}
