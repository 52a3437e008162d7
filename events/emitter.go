package events

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// EventType labels what happened.
type EventType string

const (
	EventTxExecuted    EventType = "tx_executed"
	EventTokenTransfer EventType = "token_transfer"

	EventCollectionCreated EventType = "collection_created"
	EventItemMinted        EventType = "item_minted"
	EventItemTransfer      EventType = "item_transfer"

	EventOrderListed    EventType = "order_listed"
	EventOrderRepriced  EventType = "order_repriced"
	EventOrderCancelled EventType = "order_cancelled"
	EventOrderSold      EventType = "order_sold"

	EventSigningApplied  EventType = "signing_applied"
	EventSigningApproved EventType = "signing_approved"
	EventSigningRejected EventType = "signing_rejected"
	EventSigningInvited  EventType = "signing_invited"
	EventSigningDeclined EventType = "signing_declined"
	EventSigningEnded    EventType = "signing_ended"

	EventPromoted           EventType = "promoted"
	EventPopularityBoosted  EventType = "popularity_boosted"
	EventLeaderboardRebuilt EventType = "leaderboard_rebuilt"

	EventTreasuryWithdraw EventType = "treasury_withdraw"
	EventTreasuryConfig   EventType = "treasury_config"
)

// Event carries a typed payload emitted after a state change is committed.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	TxID      string         `json:"tx_id"`
	Timestamp int64          `json:"timestamp"` // unix seconds
	Data      map[string]any `json:"data"`
}

// New builds an event with a fresh id.
func New(typ EventType, data map[string]any) Event {
	return Event{ID: uuid.NewString(), Type: typ, Data: data}
}

// Handler is a callback invoked for matching events.
type Handler func(Event)

// Emitter is a simple pub/sub broker. Subscribe before Emit.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	log      *slog.Logger
}

// NewEmitter creates an Emitter with no subscribers. A nil logger discards
// handler panics silently.
func NewEmitter(log *slog.Logger) *Emitter {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Emitter{handlers: make(map[EventType][]Handler), log: log}
}

// Subscribe registers h to be called whenever typ is emitted.
func (e *Emitter) Subscribe(typ EventType, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[typ] = append(e.handlers[typ], h)
}

// Emit delivers ev to all subscribers for ev.Type synchronously.
// A panicking handler is logged and skipped so it cannot take the engine down.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	handlers := e.handlers[ev.Type]
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.log.Error("event handler panicked", "type", ev.Type, "panic", r)
				}
			}()
			h(ev)
		}()
	}
}
