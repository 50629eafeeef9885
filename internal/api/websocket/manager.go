package websocket

import (
	"encoding/json"
	"log"
	"sync"

	"face-identification/internal/models"
	"face-identification/internal/service/snapshot"

	"github.com/gorilla/websocket"
)

// Message типы сообщений для WebSocket
type MessageType string

const (
	MessageTypeSnapshotRebuilt     MessageType = "snapshot_rebuilt"
	MessageTypeSnapshotInvalidated MessageType = "snapshot_invalidated"
	MessageTypeSnapshotStale       MessageType = "snapshot_stale"
	MessageTypeSnapshotFailed      MessageType = "snapshot_failed"
	MessageTypeMatchCompleted      MessageType = "match_completed"
)

// Темы подписки
const (
	TopicSnapshot = "snapshot"
	TopicMatches  = "matches"
)

// Message структура WebSocket сообщения
type Message struct {
	Type    MessageType `json:"type"`
	Topic   string      `json:"topic"`
	Payload interface{} `json:"payload"`
}

// Client представляет WebSocket клиента
type Client struct {
	ID    string
	Conn  *websocket.Conn
	Send  chan Message
	Topic string // Пусто - все темы
}

// Manager управляет WebSocket соединениями
type Manager struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan Message
	mu         sync.RWMutex
}

// NewManager создает новый WebSocket manager
func NewManager() *Manager {
	return &Manager{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Message, 256),
	}
}

// Run запускает менеджер (должен работать в отдельной горутине)
func (m *Manager) Run() {
	for {
		select {
		case client := <-m.register:
			m.mu.Lock()
			m.clients[client.ID] = client
			m.mu.Unlock()
			log.Printf("WebSocket: клиент %s подключен (тема: %s)", client.ID, client.Topic)

		case client := <-m.unregister:
			m.mu.Lock()
			if _, ok := m.clients[client.ID]; ok {
				delete(m.clients, client.ID)
				close(client.Send)
				log.Printf("WebSocket: клиент %s отключен", client.ID)
			}
			m.mu.Unlock()

		case message := <-m.broadcast:
			m.mu.Lock()
			for _, client := range m.clients {
				// Клиент с темой получает только свою тему
				if client.Topic != "" && client.Topic != message.Topic {
					continue
				}

				select {
				case client.Send <- message:
				default:
					// Если канал переполнен - отключаем клиента
					close(client.Send)
					delete(m.clients, client.ID)
				}
			}
			m.mu.Unlock()
		}
	}
}

// RegisterClient регистрирует нового клиента
func (m *Manager) RegisterClient(client *Client) {
	m.register <- client
}

// UnregisterClient отключает клиента
func (m *Manager) UnregisterClient(client *Client) {
	m.unregister <- client
}

// Broadcast отправляет сообщение всем клиентам.
// Не блокируется: при переполненной очереди сообщение теряется.
func (m *Manager) Broadcast(message Message) {
	select {
	case m.broadcast <- message:
	default:
		log.Printf("WebSocket: очередь переполнена, сообщение %s потеряно", message.Type)
	}
}

// ClientCount - число подключенных клиентов
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// ============ SNAPSHOT EVENTS ============

// SnapshotBuilt - новый снапшот установлен в кэш
func (m *Manager) SnapshotBuilt(s *snapshot.Snapshot) {
	m.Broadcast(Message{
		Type:    MessageTypeSnapshotRebuilt,
		Topic:   TopicSnapshot,
		Payload: s.Info(false),
	})
}

// SnapshotInvalidated - кэш сброшен
func (m *Manager) SnapshotInvalidated() {
	m.Broadcast(Message{
		Type:    MessageTypeSnapshotInvalidated,
		Topic:   TopicSnapshot,
		Payload: map[string]interface{}{},
	})
}

// SnapshotStale - база недоступна, работаем со старым снапшотом
func (m *Manager) SnapshotStale(key snapshot.Key, err error) {
	m.Broadcast(Message{
		Type:  MessageTypeSnapshotStale,
		Topic: TopicSnapshot,
		Payload: map[string]interface{}{
			"page_size":   key.PageSize,
			"page_number": key.PageNumber,
			"error":       err.Error(),
		},
	})
}

// SnapshotFailed - сборка не удалась, снапшота нет
func (m *Manager) SnapshotFailed(key snapshot.Key, err error) {
	m.Broadcast(Message{
		Type:  MessageTypeSnapshotFailed,
		Topic: TopicSnapshot,
		Payload: map[string]interface{}{
			"page_size":   key.PageSize,
			"page_number": key.PageNumber,
			"error":       err.Error(),
		},
	})
}

// ============ MATCH EVENTS ============

// MatchCompleted отправляет результат распознавания
func (m *Manager) MatchCompleted(requestID string, results []models.MatchResult) {
	m.Broadcast(Message{
		Type:  MessageTypeMatchCompleted,
		Topic: TopicMatches,
		Payload: map[string]interface{}{
			"request_id": requestID,
			"results":    results,
		},
	})
}

// ReadPump читает сообщения от клиента
func (c *Client) ReadPump(manager *Manager) {
	defer func() {
		manager.UnregisterClient(c)
		c.Conn.Close()
	}()

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		// Входящие сообщения от клиента не используются
		log.Printf("Received from client %s: %s", c.ID, string(message))
	}
}

// WritePump отправляет сообщения клиенту
func (c *Client) WritePump() {
	defer func() {
		c.Conn.Close()
	}()

	for message := range c.Send {
		w, err := c.Conn.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}

		// Сериализуем сообщение в JSON
		data, err := json.Marshal(message)
		if err != nil {
			log.Printf("Error marshaling message: %v", err)
			continue
		}

		w.Write(data)

		if err := w.Close(); err != nil {
			return
		}
	}
}
