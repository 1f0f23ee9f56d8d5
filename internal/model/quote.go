package model

import (
	"math/big"
	"time"
)

// Quote is a single price reading from a feed. Value is signed fixed point with Decimals places.
type Quote struct {
	FeedID    string    `json:"feed_id"`
	Value     *big.Int  `json:"value"`
	Decimals  uint8     `json:"decimals"`
	RoundID   *big.Int  `json:"round_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Positive reports whether the quote carries a strictly positive value.
func (q Quote) Positive() bool {
	return q.Value != nil && q.Value.Sign() > 0
}
