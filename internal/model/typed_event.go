package model

import (
	"encoding/json"
	"fmt"
)

// Event is an engine observation, either emitted locally or decoded from a chain log.
type Event struct {
	Sequence    uint64      `json:"sequence"`
	EventName   string      `json:"event_name"`
	Timestamp   uint64      `json:"timestamp"`
	ChainID     uint64      `json:"chain_id,omitempty"`
	BlockNumber uint64      `json:"block_number,omitempty"`
	TxHash      string      `json:"tx_hash,omitempty"`
	LogIndex    uint64      `json:"log_index,omitempty"`
	Address     string      `json:"address,omitempty"`
	Decoded     interface{} `json:"decoded"`
}

// EventRecord is the JSON representation used when reading events back.
type EventRecord struct {
	Sequence    uint64          `json:"sequence"`
	EventName   string          `json:"event_name"`
	Timestamp   uint64          `json:"timestamp"`
	ChainID     uint64          `json:"chain_id,omitempty"`
	BlockNumber uint64          `json:"block_number,omitempty"`
	TxHash      string          `json:"tx_hash,omitempty"`
	LogIndex    uint64          `json:"log_index,omitempty"`
	Address     string          `json:"address,omitempty"`
	Decoded     json.RawMessage `json:"decoded"`
}

// DecodePayload unmarshals the raw payload into the type matching EventName.
func (r EventRecord) DecodePayload() (interface{}, error) {
	var target interface{}
	switch r.EventName {
	case EventMint:
		target = &MintEventData{}
	case EventBurn:
		target = &BurnEventData{}
	case EventLotteryWon:
		target = &LotteryWonEventData{}
	case EventDrawRequested:
		target = &DrawRequestedEventData{}
	case EventDrawSettled:
		target = &DrawSettledEventData{}
	case EventFeesWithdrawn:
		target = &FeesWithdrawnEventData{}
	default:
		return nil, fmt.Errorf("unknown event %q", r.EventName)
	}
	if err := json.Unmarshal(r.Decoded, target); err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.EventName, err)
	}
	return target, nil
}
