package issuance

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"goldpeg/internal/model"
)

// TriggerDraw requests randomness against the current pool. Owner only.
func (s *Service) TriggerDraw(ctx context.Context, caller common.Address) (*uint256.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.onlyOwner(caller); err != nil {
		return nil, err
	}

	req, err := s.draws.Request(ctx, s.pool.Snapshot(), s.now())
	if err != nil {
		return nil, fmt.Errorf("trigger draw: %w", err)
	}

	s.publish(s.event(model.EventDrawRequested, model.DrawRequestedEventData{
		RequestID:   req.ID.Dec(),
		SnapshotPot: req.SnapshotPot.Dec(),
		Participant: req.SnapshotParticipant.Hex(),
	}))
	return req.ID.Clone(), nil
}

// OnRandomnessFulfilled settles a pending draw. A winning draw pays the snapshotted pot to the
// snapshotted participant; if that payment fails nothing changes and the request stays pending.
func (s *Service) OnRandomnessFulfilled(ctx context.Context, requestID *uint256.Int, words []*uint256.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	outcome, err := s.draws.Resolve(requestID, words)
	if err != nil {
		return fmt.Errorf("fulfill: %w", err)
	}

	req := outcome.Request
	if outcome.Won {
		snap := s.pool.Snapshot()
		if err := s.pool.Payout(req.SnapshotPot); err != nil {
			return fmt.Errorf("fulfill %s payout %s of %s: %w", req.ID.Dec(), req.SnapshotPot.Dec(), snap.Balance.Dec(), err)
		}
		if err := s.send(ctx, req.SnapshotParticipant, req.SnapshotPot); err != nil {
			s.pool.Restore(snap)
			s.logger.Warn("draw payout failed, request left pending",
				zap.String("request_id", req.ID.Dec()),
				zap.String("winner", req.SnapshotParticipant.Hex()),
				zap.Error(err),
			)
			return fmt.Errorf("fulfill %s: %w", req.ID.Dec(), err)
		}
	}

	s.draws.Commit(outcome, s.now())

	s.logger.Info("draw settled",
		zap.String("request_id", req.ID.Dec()),
		zap.Bool("won", outcome.Won),
		zap.String("pot", req.SnapshotPot.Dec()),
	)

	events := []model.Event{s.event(model.EventDrawSettled, model.DrawSettledEventData{
		RequestID:  req.ID.Dec(),
		RandomWord: outcome.Word.Dec(),
		Won:        outcome.Won,
	})}
	if outcome.Won {
		events = append(events, s.event(model.EventLotteryWon, model.LotteryWonEventData{
			Winner:    req.SnapshotParticipant.Hex(),
			Amount:    req.SnapshotPot.Dec(),
			RequestID: req.ID.Dec(),
		}))
	}
	s.publish(events...)
	return nil
}

func isTransferFailed(err error) bool {
	return errors.Is(err, model.ErrTransferFailed)
}
