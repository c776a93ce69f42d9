// Package stream fan-outs live events to connected clients. It performs no
// persistence and no retry: the durable notification table is the recovery
// path for anything missed while disconnected.
package stream

import (
	"context"
	"sync"
	"time"
)

// Event kinds carried over the live channel.
const (
	KindNotification = "notification"
	KindLeadCreated  = "lead.created"
	KindLeadUpdated  = "lead.updated"
	KindLeadDeleted  = "lead.deleted"
)

// Event is a single push. Directed events carry a notification payload for one
// recipient; broadcast events carry lead changes for every connected client.
// Clients must treat broadcasts as cache hints only: the server-side policy on
// their next fetch decides what they may actually retain.
type Event struct {
	Kind      string    `json:"kind"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

type subscriber struct {
	userID string
	ch     chan Event
}

// Router maps authenticated users to subscription channels. One logical
// channel per user id; multiple connections for the same user all receive
// directed events. A single process owns all live connections.
type Router struct {
	mu      sync.RWMutex
	subs    map[int]subscriber
	next    int
	dropped func() // invoked when a slow subscriber loses an event
}

// NewRouter initialises an empty router. onDrop may be nil; when set it is
// called once per event lost to a slow subscriber (metrics hook).
func NewRouter(onDrop func()) *Router {
	return &Router{
		subs:    make(map[int]subscriber),
		dropped: onDrop,
	}
}

// Subscribe joins the channel for userID and returns the event feed. The
// channel is closed when ctx ends; the subscription is removed with it.
func (r *Router) Subscribe(ctx context.Context, userID string) <-chan Event {
	ch := make(chan Event, 16)

	r.mu.Lock()
	id := r.next
	r.next++
	r.subs[id] = subscriber{userID: userID, ch: ch}
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		delete(r.subs, id)
		close(ch)
		r.mu.Unlock()
	}()

	return ch
}

// PublishDirected delivers the event to every connection subscribed for
// userID. If nobody is connected the event is simply not delivered live.
func (r *Router) PublishDirected(userID string, evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, sub := range r.subs {
		if sub.userID != userID {
			continue
		}
		r.send(sub, evt)
	}
}

// PublishBroadcast delivers the event to every connected client regardless of
// ownership.
func (r *Router) PublishBroadcast(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, sub := range r.subs {
		r.send(sub, evt)
	}
}

// Subscribers reports the number of open connections.
func (r *Router) Subscribers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

func (r *Router) send(sub subscriber, evt Event) {
	select {
	case sub.ch <- evt:
	default:
		// Drop when the subscriber is slow to avoid blocking publishers.
		if r.dropped != nil {
			r.dropped()
		}
	}
}
