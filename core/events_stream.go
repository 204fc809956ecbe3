package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"tenure/core/events"
	"tenure/core/types"
	"tenure/observability"
)

const eventHistoryLimit = 2048

// EventUpdate is the stream envelope delivered to event subscribers.
type EventUpdate struct {
	Sequence   uint64            `json:"seq"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	Timestamp  int64             `json:"timestamp"`
}

func cloneEventUpdate(update EventUpdate) EventUpdate {
	cloned := update
	if len(update.Attributes) > 0 {
		attrs := make(map[string]string, len(update.Attributes))
		for k, v := range update.Attributes {
			attrs[k] = v
		}
		cloned.Attributes = attrs
	}
	return cloned
}

// vaultEventEmitter bridges the engine's emitter interface onto the node's
// subscriber fan-out.
type vaultEventEmitter struct {
	node *Node
}

func (e vaultEventEmitter) Emit(evt events.Event) {
	if e.node == nil || evt == nil {
		return
	}
	if provider, ok := evt.(interface{ Event() *types.Event }); ok {
		if payload := provider.Event(); payload != nil {
			e.node.publishEvent(payload)
		}
		return
	}
	e.node.publishEvent(&types.Event{Type: evt.EventType()})
}

func (n *Node) publishEvent(evt *types.Event) {
	if n == nil || evt == nil {
		return
	}
	evt.Normalize()

	n.eventMu.Lock()
	if n.eventSubs == nil {
		n.eventSubs = make(map[uint64]chan EventUpdate)
	}
	n.eventSeq++
	update := EventUpdate{
		Sequence:   n.eventSeq,
		Type:       evt.Type,
		Attributes: evt.Attributes,
		Timestamp:  time.Now().Unix(),
	}
	stored := cloneEventUpdate(update)
	n.eventHistory = append(n.eventHistory, stored)
	if len(n.eventHistory) > eventHistoryLimit {
		excess := len(n.eventHistory) - eventHistoryLimit
		trimmed := make([]EventUpdate, eventHistoryLimit)
		copy(trimmed, n.eventHistory[excess:])
		n.eventHistory = trimmed
	}
	subscribers := make([]chan EventUpdate, 0, len(n.eventSubs))
	for _, ch := range n.eventSubs {
		subscribers = append(subscribers, ch)
	}
	n.eventMu.Unlock()

	observability.Events().RecordPublished(update.Type)
	broadcast := cloneEventUpdate(update)
	for _, ch := range subscribers {
		select {
		case ch <- broadcast:
		default:
			observability.EventStream().RecordDropped()
		}
	}
}

// EventsSubscribe registers a subscriber for engine events starting after the
// supplied cursor. The returned backlog replays retained history; slow
// consumers silently drop live updates rather than blocking the engine.
func (n *Node) EventsSubscribe(ctx context.Context, cursor string) (<-chan EventUpdate, func(), []EventUpdate, error) {
	if n == nil {
		return nil, nil, nil, fmt.Errorf("node not initialised")
	}
	updates := make(chan EventUpdate, 32)

	var since uint64
	if trimmed := strings.TrimSpace(cursor); trimmed != "" {
		if parsed, err := strconv.ParseUint(trimmed, 10, 64); err == nil {
			since = parsed
		}
	}

	n.eventMu.Lock()
	if n.eventSubs == nil {
		n.eventSubs = make(map[uint64]chan EventUpdate)
	}
	id := n.eventNextID
	n.eventNextID++
	n.eventSubs[id] = updates
	live := len(n.eventSubs)
	history := make([]EventUpdate, len(n.eventHistory))
	copy(history, n.eventHistory)
	n.eventMu.Unlock()
	observability.EventStream().SetSubscribers(live)

	backlog := make([]EventUpdate, 0, len(history))
	for _, entry := range history {
		if entry.Sequence > since {
			backlog = append(backlog, cloneEventUpdate(entry))
		}
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.eventMu.Lock()
			sub, ok := n.eventSubs[id]
			if ok {
				delete(n.eventSubs, id)
				close(sub)
			}
			remaining := len(n.eventSubs)
			n.eventMu.Unlock()
			observability.EventStream().SetSubscribers(remaining)
		})
	}

	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}

	return updates, cancel, backlog, nil
}
