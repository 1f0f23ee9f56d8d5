package model

// Event names emitted by the engine and decoded from chain logs.
const (
	EventMint          = "Mint"
	EventBurn          = "Burn"
	EventLotteryWon    = "LotteryWon"
	EventDrawRequested = "DrawRequested"
	EventDrawSettled   = "DrawSettled"
	EventFeesWithdrawn = "FeesWithdrawn"
)

// MintEventData is the Mint observation payload.
type MintEventData struct {
	Initiator     string `json:"initiator"`
	DepositAmount string `json:"deposit_amount"`
	TokensIssued  string `json:"tokens_issued"`
}

// BurnEventData is the Burn observation payload.
type BurnEventData struct {
	Initiator    string `json:"initiator"`
	TokenAmount  string `json:"token_amount"`
	BaseReturned string `json:"base_returned"`
}

// LotteryWonEventData is the payout observation payload.
type LotteryWonEventData struct {
	Winner    string `json:"winner"`
	Amount    string `json:"amount"`
	RequestID string `json:"request_id,omitempty"`
}

// DrawRequestedEventData records a randomness request and its snapshot.
type DrawRequestedEventData struct {
	RequestID   string `json:"request_id"`
	SnapshotPot string `json:"snapshot_pot"`
	Participant string `json:"participant"`
}

// DrawSettledEventData records the outcome of a fulfilled request.
type DrawSettledEventData struct {
	RequestID  string `json:"request_id"`
	RandomWord string `json:"random_word"`
	Won        bool   `json:"won"`
}

// FeesWithdrawnEventData records a privileged withdrawal.
type FeesWithdrawnEventData struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}
