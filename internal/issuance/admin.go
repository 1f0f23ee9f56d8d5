package issuance

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"goldpeg/internal/model"
	"goldpeg/internal/randomness"
)

// WithdrawFees sends every base unit not reserved by the pool to the owner.
func (s *Service) WithdrawFees(ctx context.Context, caller common.Address) (*uint256.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.onlyOwner(caller); err != nil {
		return nil, err
	}

	total, err := s.treasury.Balance(ctx)
	if err != nil {
		return nil, fmt.Errorf("withdraw fees balance: %w", err)
	}
	reserved := s.pool.Balance()
	available, underflow := new(uint256.Int).SubOverflow(total, reserved)
	if underflow {
		return nil, fmt.Errorf("treasury %s below pool %s: %w", total.Dec(), reserved.Dec(), model.ErrArithmeticOverflow)
	}
	if available.IsZero() {
		return nil, model.ErrNothingToWithdraw
	}

	if err := s.send(ctx, s.owner, available); err != nil {
		return nil, fmt.Errorf("withdraw fees: %w", err)
	}

	s.logger.Info("fees withdrawn",
		zap.String("recipient", s.owner.Hex()),
		zap.String("amount", available.Dec()),
		zap.String("reserved", reserved.Dec()),
	)
	s.publish(s.event(model.EventFeesWithdrawn, model.FeesWithdrawnEventData{
		Recipient: s.owner.Hex(),
		Amount:    available.Dec(),
	}))
	return available, nil
}

func (s *Service) SetRandomnessConfig(caller common.Address, cfg randomness.RequestConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.onlyOwner(caller); err != nil {
		return err
	}
	if cfg.NumWords == 0 {
		return fmt.Errorf("num words must be greater than zero")
	}
	s.draws.SetConfig(cfg)
	return nil
}

func (s *Service) SetRandomnessProvider(caller common.Address, provider randomness.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.onlyOwner(caller); err != nil {
		return err
	}
	s.draws.SetProvider(provider)
	return nil
}

func (s *Service) SetPendingPolicy(caller common.Address, policy randomness.PendingPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.onlyOwner(caller); err != nil {
		return err
	}
	if _, err := randomness.ParsePendingPolicy(string(policy)); err != nil {
		return err
	}
	s.draws.SetPolicy(policy)
	return nil
}

// TransferOwnership hands the privileged role to next.
func (s *Service) TransferOwnership(caller, next common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.onlyOwner(caller); err != nil {
		return err
	}
	if next == (common.Address{}) {
		return fmt.Errorf("new owner is the zero address")
	}
	s.logger.Info("ownership transferred", zap.String("from", s.owner.Hex()), zap.String("to", next.Hex()))
	s.owner = next
	return nil
}

func (s *Service) Owner() common.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner
}

func (s *Service) FeePercent() uint64 { return s.engine.FeePercent() }

// PoolBalance returns the base units reserved for the next draw.
func (s *Service) PoolBalance() *uint256.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool.Balance()
}

// EligibleParticipant returns the last actor to contribute to the pool.
func (s *Service) EligibleParticipant() common.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool.Eligible()
}

func (s *Service) Request(id *uint256.Int) (model.RandomnessRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draws.Get(id)
}

func (s *Service) Requests() []model.RandomnessRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draws.Requests()
}

// State is a point-in-time view used for persistence.
type State struct {
	Owner           common.Address
	PoolBalance     *uint256.Int
	Eligible        common.Address
	TotalSupply     *uint256.Int
	TreasuryBalance *uint256.Int
	PendingPolicy   randomness.PendingPolicy
	Pending         int
	Requests        []model.RandomnessRequest
}

func (s *Service) State(ctx context.Context) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	supply, err := s.ledger.TotalSupply(ctx)
	if err != nil {
		return State{}, fmt.Errorf("state supply: %w", err)
	}
	balance, err := s.treasury.Balance(ctx)
	if err != nil {
		return State{}, fmt.Errorf("state treasury: %w", err)
	}
	return State{
		Owner:           s.owner,
		PoolBalance:     s.pool.Balance(),
		Eligible:        s.pool.Eligible(),
		TotalSupply:     supply,
		TreasuryBalance: balance,
		PendingPolicy:   s.draws.Policy(),
		Pending:         s.draws.PendingCount(),
		Requests:        s.draws.Requests(),
	}, nil
}

func (s *Service) onlyOwner(caller common.Address) error {
	if caller != s.owner {
		return fmt.Errorf("caller %s: %w", caller.Hex(), model.ErrUnauthorized)
	}
	return nil
}
