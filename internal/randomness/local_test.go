package randomness

import (
	"context"
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

type recordingConsumer struct {
	calls int
	fail  error
	words []*uint256.Int
}

func (r *recordingConsumer) OnRandomnessFulfilled(_ context.Context, _ *uint256.Int, words []*uint256.Int) error {
	r.calls++
	if r.fail != nil {
		return r.fail
	}
	r.words = words
	return nil
}

func TestLocalProviderDeterministicWords(t *testing.T) {
	a := NewLocalProvider([]byte("seed"))
	b := NewLocalProvider([]byte("seed"))
	c := NewLocalProvider([]byte("other"))

	id := uint256.NewInt(1)
	wa := a.Words(id, 2)
	wb := b.Words(id, 2)
	wc := c.Words(id, 2)

	if !wa[0].Eq(wb[0]) || !wa[1].Eq(wb[1]) {
		t.Fatalf("same seed should derive same words")
	}
	if wa[0].Eq(wa[1]) {
		t.Fatalf("word index should change output")
	}
	if wa[0].Eq(wc[0]) {
		t.Fatalf("seed should change output")
	}
}

func TestLocalProviderFulfill(t *testing.T) {
	ctx := context.Background()
	p := NewLocalProvider([]byte("seed"))
	consumer := &recordingConsumer{fail: errors.New("reverted")}
	p.SetConsumer(consumer)

	cfg := DefaultRequestConfig()
	cfg.NumWords = 2
	id, err := p.RequestRandomWords(ctx, cfg)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	if err := p.Fulfill(ctx, id); err == nil {
		t.Fatalf("expected consumer error")
	}
	if len(p.Pending()) != 1 {
		t.Fatalf("rejected fulfillment should stay queued")
	}

	consumer.fail = nil
	if err := p.Fulfill(ctx, id); err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if len(consumer.words) != 2 || consumer.calls != 2 {
		t.Fatalf("consumer mismatch: %+v", consumer)
	}
	if len(p.Pending()) != 0 {
		t.Fatalf("accepted fulfillment should leave queue")
	}
	if err := p.Fulfill(ctx, id); err == nil {
		t.Fatalf("expected error for second fulfillment")
	}
}

func TestLocalProviderRejectsZeroWords(t *testing.T) {
	cfg := DefaultRequestConfig()
	cfg.NumWords = 0
	if _, err := NewLocalProvider(nil).RequestRandomWords(context.Background(), cfg); err == nil {
		t.Fatalf("expected error for zero words")
	}
}
