package entity

import "context"

type Publisher interface {
	JetstreamEventInit(ctx context.Context) error
}

// OrderPlacedEvent is published after the gateway acknowledges a market
// order submission.
type OrderPlacedEvent struct {
	Data OrderTicket `json:"data"`
}
