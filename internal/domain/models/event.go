package models

import "time"

const (
	EventSignalCreated         = "signal.created"
	EventSignalUpdated         = "signal.updated"
	EventPriceUpdate           = "price.update"
	EventConnectionEstablished = "connection.established"
	EventSubscribed            = "subscribed"
	EventUnsubscribed          = "unsubscribed"
	EventPong                  = "pong"
	EventError                 = "error"
)

// Event is a message fanned out to realtime subscribers. Ticker and
// RequiredTier drive delivery eligibility and are not serialized.
type Event struct {
	Type         string      `json:"type"`
	Payload      interface{} `json:"payload"`
	Timestamp    time.Time   `json:"timestamp"`
	Ticker       string      `json:"-"`
	RequiredTier string      `json:"-"`
}
