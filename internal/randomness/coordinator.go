package randomness

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"goldpeg/internal/model"
	"goldpeg/internal/pool"
)

// RequestConfig carries the provider parameters sent with every request.
type RequestConfig struct {
	KeyHash          common.Hash
	SubscriptionID   uint64
	Confirmations    uint16
	CallbackGasLimit uint32
	NumWords         uint32
}

// DefaultRequestConfig asks for one word with three confirmations.
func DefaultRequestConfig() RequestConfig {
	return RequestConfig{
		Confirmations:    3,
		CallbackGasLimit: 100_000,
		NumWords:         1,
	}
}

// Provider issues randomness requests. Fulfillment arrives later through a separate call.
type Provider interface {
	RequestRandomWords(ctx context.Context, cfg RequestConfig) (*uint256.Int, error)
}

// PendingPolicy decides whether a new draw may start while another is unresolved.
type PendingPolicy string

const (
	PendingPolicyAllow  PendingPolicy = "allow"
	PendingPolicyReject PendingPolicy = "reject"
)

// ParsePendingPolicy accepts "allow" or "reject"; empty means allow.
func ParsePendingPolicy(input string) (PendingPolicy, error) {
	switch PendingPolicy(strings.ToLower(strings.TrimSpace(input))) {
	case "", PendingPolicyAllow:
		return PendingPolicyAllow, nil
	case PendingPolicyReject:
		return PendingPolicyReject, nil
	default:
		return "", fmt.Errorf("unknown pending policy %q", input)
	}
}

// Outcome is the payout decision for a pending request. It is computed before any state changes.
type Outcome struct {
	Request model.RandomnessRequest
	Word    *uint256.Int
	Won     bool
}

// Coordinator tracks randomness requests from issue to fulfillment.
// It is not safe for concurrent use; the owning service serializes access.
type Coordinator struct {
	provider Provider
	cfg      RequestConfig
	policy   PendingPolicy
	requests map[uint256.Int]*model.RandomnessRequest
	pending  int
	logger   *zap.Logger
}

func NewCoordinator(provider Provider, cfg RequestConfig, policy PendingPolicy, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy == "" {
		policy = PendingPolicyAllow
	}
	return &Coordinator{
		provider: provider,
		cfg:      cfg,
		policy:   policy,
		requests: make(map[uint256.Int]*model.RandomnessRequest),
		logger:   logger,
	}
}

func (c *Coordinator) SetProvider(provider Provider) { c.provider = provider }

func (c *Coordinator) SetConfig(cfg RequestConfig) { c.cfg = cfg }

func (c *Coordinator) SetPolicy(policy PendingPolicy) { c.policy = policy }

func (c *Coordinator) Policy() PendingPolicy { return c.policy }

// PendingCount returns the number of unresolved requests.
func (c *Coordinator) PendingCount() int { return c.pending }

// Request snapshots the pool and asks the provider for randomness.
func (c *Coordinator) Request(ctx context.Context, snap pool.Snapshot, now time.Time) (model.RandomnessRequest, error) {
	if snap.Balance == nil || snap.Balance.IsZero() {
		return model.RandomnessRequest{}, model.ErrEmptyPot
	}
	if c.provider == nil {
		return model.RandomnessRequest{}, model.ErrRandomnessProviderUnavailable
	}
	if c.policy == PendingPolicyReject && c.pending > 0 {
		return model.RandomnessRequest{}, fmt.Errorf("%d outstanding: %w", c.pending, model.ErrRequestAlreadyPending)
	}

	id, err := c.provider.RequestRandomWords(ctx, c.cfg)
	if err != nil {
		return model.RandomnessRequest{}, fmt.Errorf("request random words: %w", err)
	}
	if id == nil {
		return model.RandomnessRequest{}, fmt.Errorf("provider returned nil request id")
	}
	if _, exists := c.requests[*id]; exists {
		return model.RandomnessRequest{}, fmt.Errorf("provider reused request id %s", id.Dec())
	}

	req := &model.RandomnessRequest{
		ID:                  id.Clone(),
		SnapshotPot:         snap.Balance.Clone(),
		SnapshotParticipant: snap.Eligible,
		Status:              model.RequestPending,
		RequestedAt:         now,
	}
	c.requests[*id] = req
	c.pending++

	c.logger.Info("randomness requested",
		zap.String("request_id", id.Dec()),
		zap.String("snapshot_pot", req.SnapshotPot.Dec()),
		zap.String("participant", req.SnapshotParticipant.Hex()),
	)
	return req.Clone(), nil
}

// Resolve computes the outcome for a pending request without mutating anything.
// An even first word wins.
func (c *Coordinator) Resolve(id *uint256.Int, words []*uint256.Int) (Outcome, error) {
	if id == nil {
		return Outcome{}, model.ErrUnknownRequest
	}
	req, ok := c.requests[*id]
	if !ok {
		return Outcome{}, fmt.Errorf("request %s: %w", id.Dec(), model.ErrUnknownRequest)
	}
	if req.Status != model.RequestPending {
		return Outcome{}, fmt.Errorf("request %s already %s: %w", id.Dec(), req.Status, model.ErrUnknownRequest)
	}
	if len(words) == 0 || words[0] == nil {
		return Outcome{}, fmt.Errorf("request %s: %w", id.Dec(), model.ErrInvalidRandomness)
	}

	word := words[0].Clone()
	won := word.Uint64()%2 == 0
	return Outcome{Request: req.Clone(), Word: word, Won: won}, nil
}

// Commit marks a resolved request fulfilled. It must follow a successful Resolve for the same ID.
func (c *Coordinator) Commit(outcome Outcome, now time.Time) {
	req, ok := c.requests[*outcome.Request.ID]
	if !ok || req.Status != model.RequestPending {
		return
	}
	req.Status = model.RequestFulfilled
	req.RandomWord = outcome.Word.Clone()
	req.Won = outcome.Won
	req.FulfilledAt = now
	c.pending--
}

// Get returns a copy of the request with the given ID.
func (c *Coordinator) Get(id *uint256.Int) (model.RandomnessRequest, bool) {
	if id == nil {
		return model.RandomnessRequest{}, false
	}
	req, ok := c.requests[*id]
	if !ok {
		return model.RandomnessRequest{}, false
	}
	return req.Clone(), true
}

// Requests returns copies of all requests ordered by ID.
func (c *Coordinator) Requests() []model.RandomnessRequest {
	out := make([]model.RandomnessRequest, 0, len(c.requests))
	for _, req := range c.requests {
		out = append(out, req.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Lt(out[j].ID) })
	return out
}
