package replay

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"goldpeg/internal/issuance"
	"goldpeg/internal/model"
	"goldpeg/internal/randomness"
)

var (
	owner = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice = "0x1111111111111111111111111111111111111111"
	bob   = "0x2222222222222222222222222222222222222222"
)

type recordingSink struct {
	events []model.Event
}

func (r *recordingSink) PutEventBatch(events []model.Event) error {
	r.events = append(r.events, events...)
	return nil
}

func newEngine(t *testing.T, sink issuance.EventSink) *Engine {
	t.Helper()
	e, err := NewEngine(Config{
		Owner:         owner,
		FeePercent:    5,
		Randomness:    randomness.DefaultRequestConfig(),
		PendingPolicy: randomness.PendingPolicyAllow,
		Seed:          []byte("replay"),
		GoldPrice:     new(big.Int).Mul(big.NewInt(1800), big.NewInt(100_000_000)),
		EthPrice:      new(big.Int).Mul(big.NewInt(2000), big.NewInt(100_000_000)),
	}, sink, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

const script = `
# alice mints, then burns everything
{"op":"mint","account":"0x1111111111111111111111111111111111111111","amount":"1000"}
{"op":"draw"}
{"op":"mint","account":"0x2222222222222222222222222222222222222222","amount":"1000"}
{"op":"fulfill","request":"1","word":"8"}
{"op":"set_price","feed":"gold","value":"1900.5"}
{"op":"burn","account":"0x1111111111111111111111111111111111111111","amount":"all"}
{"op":"withdraw"}
`

func TestParseOps(t *testing.T) {
	ops, err := ParseOps(strings.NewReader(script))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(ops) != 7 || ops[0].Op != OpMint || ops[4].Value != "1900.5" {
		t.Fatalf("ops mismatch: %+v", ops)
	}

	if _, err := ParseOps(strings.NewReader(`{"op":"explode"}`)); err == nil {
		t.Fatalf("expected error for unknown op")
	}
	if _, err := ParseOps(strings.NewReader(`{"op":`)); err == nil {
		t.Fatalf("expected error for malformed line")
	}
}

func TestRunScript(t *testing.T) {
	ops, err := ParseOps(strings.NewReader(script))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	sink := &recordingSink{}
	e := newEngine(t, sink)

	summary, err := e.Run(context.Background(), ops, true)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Applied != 7 || summary.Failed != 0 {
		t.Fatalf("summary mismatch: %+v", summary)
	}

	if got := e.Treasury.Received(common.HexToAddress(alice)); got.IsZero() {
		t.Fatalf("alice should have received payout and burn proceeds")
	}
	if e.Service.EligibleParticipant() != common.HexToAddress(alice) {
		t.Fatalf("last burner should be eligible")
	}

	want := []string{
		model.EventMint,
		model.EventDrawRequested,
		model.EventMint,
		model.EventDrawSettled,
		model.EventLotteryWon,
		model.EventBurn,
		model.EventFeesWithdrawn,
	}
	if len(sink.events) != len(want) {
		t.Fatalf("events mismatch: %+v", sink.events)
	}
	for i, name := range want {
		if sink.events[i].EventName != name {
			t.Fatalf("event %d: %s != %s", i, sink.events[i].EventName, name)
		}
		if sink.events[i].Sequence != uint64(i+1) {
			t.Fatalf("event %d sequence %d", i, sink.events[i].Sequence)
		}
	}
}

func TestRunLenientSkipsFailures(t *testing.T) {
	ops := []Op{
		{Op: OpBurn, Account: bob, Amount: "1"},
		{Op: OpReject, Account: alice, Reject: true},
		{Op: OpMint, Account: alice, Amount: "10"},
		{Op: OpBurn, Account: alice, Amount: "all"},
		{Op: OpDraw, Caller: alice},
	}
	e := newEngine(t, nil)

	summary, err := e.Run(context.Background(), ops, false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Applied != 2 || summary.Failed != 3 {
		t.Fatalf("summary mismatch: %+v", summary)
	}

	_, err = e.Run(context.Background(), ops[:1], true)
	if !errors.Is(err, model.ErrInsufficientBalance) {
		t.Fatalf("strict run should surface the error, got %v", err)
	}
}

func TestFulfillAllPending(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()
	for _, op := range []Op{
		{Op: OpMint, Account: alice, Amount: "1"},
		{Op: OpSetPolicy, Policy: "allow"},
		{Op: OpDraw},
		{Op: OpDraw},
		{Op: OpFulfill, Word: "3"},
	} {
		if err := e.Apply(ctx, op); err != nil {
			t.Fatalf("apply %s: %v", op.Op, err)
		}
	}
	if len(e.Provider.Pending()) != 0 {
		t.Fatalf("all requests should be fulfilled")
	}
	for _, req := range e.Service.Requests() {
		if req.Status != model.RequestFulfilled || req.Won {
			t.Fatalf("request mismatch: %+v", req)
		}
	}
}

func TestApplyValidation(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()
	bad := []Op{
		{Op: OpSetPrice, Feed: "silver", Value: "1"},
		{Op: OpSetPrice, Feed: "gold", Value: "-1"},
		{Op: OpMint, Amount: "1"},
		{Op: OpMint, Account: "nope", Amount: "1"},
		{Op: OpFulfill, Request: "x"},
		{Op: "unknown"},
	}
	for _, op := range bad {
		if err := e.Apply(ctx, op); err == nil {
			t.Fatalf("expected error for %+v", op)
		}
	}
}

func TestEngineWithoutSink(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()
	for _, op := range []Op{
		{Op: OpMint, Account: alice, Amount: "10"},
		{Op: OpDraw},
		{Op: OpFulfill},
		{Op: OpBurn, Account: alice, Amount: "all"},
	} {
		if err := e.Apply(ctx, op); err != nil {
			t.Fatalf("apply %s: %v", op.Op, err)
		}
	}
}

func TestRunName(t *testing.T) {
	now := time.Unix(1700000000, 5)
	if got := RunName("", now); got != "replay-1700000000000000005" {
		t.Fatalf("generated name mismatch: %s", got)
	}
	if RunName("", now) == RunName("", now.Add(time.Nanosecond)) {
		t.Fatalf("runs at different times must not share a name")
	}
	if got := RunName("  nightly ", now); got != "nightly" {
		t.Fatalf("explicit name mismatch: %s", got)
	}
}
