package ports

import (
	"context"

	"github.com/alejandrodnm/goldbot/internal/domain"
)

// OrderStatus is the terminal state of a submitted order request.
type OrderStatus string

const (
	OrderFilled   OrderStatus = "FILLED"
	OrderRejected OrderStatus = "REJECTED" // broker refused, retry is pointless
	OrderError    OrderStatus = "ERROR"    // transport failure, state unknown
)

// OrderRequest is a new market or limit order to be sent to the broker.
type OrderRequest struct {
	Symbol  string
	Side    domain.Side
	Volume  float64
	Price   float64 // 0 = market
	Comment string
}

// OrderResult is the gateway's answer to a Submit or Close.
type OrderResult struct {
	Status        OrderStatus
	Ticket        int64
	ExecutedPrice float64
	Reason        string // broker-side reason when Status != FILLED
}

// OrderGateway submits and closes orders on the trading platform.
//
// Submit is fire-and-forget from the caller's point of view: a FILLED result
// confirms the broker accepted the order, but the resulting position only
// becomes visible through the next PlatformFeed snapshot.
type OrderGateway interface {
	// Submit places a new order. A nil error with Status REJECTED means the
	// broker answered and said no; an OrderError result carries the reason.
	Submit(ctx context.Context, req OrderRequest) (OrderResult, error)

	// Close closes volume lots of the given position at market. Closing the
	// full remaining volume removes the position.
	Close(ctx context.Context, ticket int64, volume float64) (OrderResult, error)
}
