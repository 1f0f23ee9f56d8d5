package report

import (
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	"goldpeg/internal/model"
)

// Totals accumulates issuance flows over a stream of events.
type Totals struct {
	Events        uint64
	Counts        map[string]uint64
	Deposited     *uint256.Int
	Issued        *uint256.Int
	Burned        *uint256.Int
	Returned      *uint256.Int
	LotteryPaid   *uint256.Int
	FeesWithdrawn *uint256.Int
	DrawsSettled  uint64
	DrawsWon      uint64
	FirstTS       uint64
	LastTS        uint64
}

func NewTotals() *Totals {
	return &Totals{
		Counts:        make(map[string]uint64),
		Deposited:     new(uint256.Int),
		Issued:        new(uint256.Int),
		Burned:        new(uint256.Int),
		Returned:      new(uint256.Int),
		LotteryPaid:   new(uint256.Int),
		FeesWithdrawn: new(uint256.Int),
	}
}

// Summarize folds records in order. Unknown event names fail the whole summary.
func Summarize(records []model.EventRecord) (*Totals, error) {
	t := NewTotals()
	for _, record := range records {
		if err := t.Add(record); err != nil {
			return nil, fmt.Errorf("event %d (%s): %w", record.Sequence, record.EventName, err)
		}
	}
	return t, nil
}

func (t *Totals) Add(record model.EventRecord) error {
	payload, err := record.DecodePayload()
	if err != nil {
		return err
	}

	switch p := payload.(type) {
	case *model.MintEventData:
		if err := addDec(t.Deposited, p.DepositAmount); err != nil {
			return err
		}
		if err := addDec(t.Issued, p.TokensIssued); err != nil {
			return err
		}
	case *model.BurnEventData:
		if err := addDec(t.Burned, p.TokenAmount); err != nil {
			return err
		}
		if err := addDec(t.Returned, p.BaseReturned); err != nil {
			return err
		}
	case *model.LotteryWonEventData:
		if err := addDec(t.LotteryPaid, p.Amount); err != nil {
			return err
		}
	case *model.DrawSettledEventData:
		t.DrawsSettled++
		if p.Won {
			t.DrawsWon++
		}
	case *model.FeesWithdrawnEventData:
		if err := addDec(t.FeesWithdrawn, p.Amount); err != nil {
			return err
		}
	}

	t.Events++
	t.Counts[record.EventName]++
	if t.FirstTS == 0 || record.Timestamp < t.FirstTS {
		t.FirstTS = record.Timestamp
	}
	if record.Timestamp > t.LastTS {
		t.LastTS = record.Timestamp
	}
	return nil
}

// Outstanding is issued minus burned tokens. It fails if the stream burns more than it minted,
// which happens when a watch starts after the first mint.
func (t *Totals) Outstanding() (*uint256.Int, error) {
	out, underflow := new(uint256.Int).SubOverflow(t.Issued, t.Burned)
	if underflow {
		return nil, fmt.Errorf("burned %s exceeds issued %s: %w", t.Burned.Dec(), t.Issued.Dec(), model.ErrArithmeticOverflow)
	}
	return out, nil
}

// Names returns the observed event names in sorted order.
func (t *Totals) Names() []string {
	out := make([]string, 0, len(t.Counts))
	for name := range t.Counts {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func addDec(acc *uint256.Int, raw string) error {
	v, err := uint256.FromDecimal(raw)
	if err != nil {
		return fmt.Errorf("parse amount %q: %w", raw, err)
	}
	if _, overflow := acc.AddOverflow(acc, v); overflow {
		return fmt.Errorf("total overflow: %w", model.ErrArithmeticOverflow)
	}
	return nil
}
