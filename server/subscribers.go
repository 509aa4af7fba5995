package annoserv

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

type SubscriberList struct {
	subscribers map[uuid.UUID]*wsConnection
	mu          sync.RWMutex
}

func NewSubscriberList() *SubscriberList {
	return &SubscriberList{
		subscribers: make(map[uuid.UUID]*wsConnection),
	}
}

func (sl *SubscriberList) Add(c *wsConnection) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.subscribers[c.id] = c
}

func (sl *SubscriberList) Remove(id uuid.UUID) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	delete(sl.subscribers, id)
}

func (sl *SubscriberList) Get(id uuid.UUID) (*wsConnection, bool) {
	sl.mu.RLock()
	defer sl.mu.RUnlock()
	c, ok := sl.subscribers[id]
	return c, ok
}

func (sl *SubscriberList) Len() int {
	sl.mu.RLock()
	defer sl.mu.RUnlock()
	return len(sl.subscribers)
}

// Broadcast queues data for every subscriber. Subscribers whose buffer is
// full miss the message.
func (sl *SubscriberList) Broadcast(data []byte) {
	sl.mu.RLock()
	defer sl.mu.RUnlock()

	for id, c := range sl.subscribers {
		select {
		case c.send <- data:
			slog.Debug("Sent message to subscriber", "subscriberID", id)
		default:
			slog.Warn("Failed to send to subscriber - channel full", "subscriberID", id)
		}
	}
}

// CloseAll closes every subscriber's send channel, which makes its write
// pump send a close frame.
func (sl *SubscriberList) CloseAll() {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	for id, c := range sl.subscribers {
		c.close()
		delete(sl.subscribers, id)
	}
}
