package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// RequestStatus is the lifecycle state of a randomness request.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestFulfilled RequestStatus = "fulfilled"
)

// RandomnessRequest ties a provider request ID to the pot and participant seen at request time.
type RandomnessRequest struct {
	ID                  *uint256.Int
	SnapshotPot         *uint256.Int
	SnapshotParticipant common.Address
	Status              RequestStatus
	RandomWord          *uint256.Int
	Won                 bool
	RequestedAt         time.Time
	FulfilledAt         time.Time
}

// Clone returns a deep copy so callers cannot mutate coordinator state.
func (r RandomnessRequest) Clone() RandomnessRequest {
	out := r
	if r.ID != nil {
		out.ID = r.ID.Clone()
	}
	if r.SnapshotPot != nil {
		out.SnapshotPot = r.SnapshotPot.Clone()
	}
	if r.RandomWord != nil {
		out.RandomWord = r.RandomWord.Clone()
	}
	return out
}
