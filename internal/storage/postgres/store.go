package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"goldpeg/internal/indexer"
	"goldpeg/internal/issuance"
	"goldpeg/internal/model"
)

//go:embed schema.sql
var schema string

const upsertRequestSQL = `
	INSERT INTO randomness_requests (
		name, request_id, snapshot_pot, participant, status, random_word, won, requested_at, fulfilled_at, updated_at
	) VALUES ($1,$2::numeric,$3::numeric,$4,$5,$6::numeric,$7,$8,$9,now())
	ON CONFLICT (name, request_id)
	DO UPDATE SET
		status = EXCLUDED.status,
		random_word = EXCLUDED.random_word,
		won = EXCLUDED.won,
		fulfilled_at = EXCLUDED.fulfilled_at,
		updated_at = now()
`

const insertEventSQL = `
	INSERT INTO goldpeg_events (
		source, sequence, chain_id, block_number, tx_hash, log_index, address, event_name, event_ts, payload
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	ON CONFLICT (source, chain_id, tx_hash, log_index, sequence) DO NOTHING
`

// eventArgs orders the insert arguments. Engine events carry no chain position, so
// (source, sequence) is their identity and each run needs its own source.
func eventArgs(source string, ev model.Event) ([]interface{}, error) {
	payload, err := json.Marshal(ev.Decoded)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", ev.EventName, err)
	}
	return []interface{}{
		source,
		int64(ev.Sequence),
		int64(ev.ChainID),
		int64(ev.BlockNumber),
		ev.TxHash,
		int64(ev.LogIndex),
		ev.Address,
		ev.EventName,
		int64(ev.Timestamp),
		payload,
	}, nil
}

func requestArgs(name string, req model.RandomnessRequest) []interface{} {
	var word *string
	if req.RandomWord != nil {
		w := req.RandomWord.Dec()
		word = &w
	}
	var fulfilled *time.Time
	if !req.FulfilledAt.IsZero() {
		ts := req.FulfilledAt
		fulfilled = &ts
	}
	return []interface{}{
		name,
		req.ID.Dec(),
		req.SnapshotPot.Dec(),
		req.SnapshotParticipant.Hex(),
		string(req.Status),
		word,
		req.Won,
		req.RequestedAt,
		fulfilled,
	}
}

// Store provides Postgres persistence for events and engine state.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates missing tables. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// InsertEvents stores events, skipping ones already present. Source separates engine runs from chain logs.
func (s *Store) InsertEvents(ctx context.Context, source string, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, ev := range events {
		args, err := eventArgs(source, ev)
		if err != nil {
			return err
		}
		batch.Queue(insertEventSQL, args...)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range events {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// ResetRun removes every row written under name so a rerun replaces it instead of colliding with it.
func (s *Store) ResetRun(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("run name required")
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, stmt := range []string{
		`DELETE FROM goldpeg_events WHERE source = $1`,
		`DELETE FROM randomness_requests WHERE name = $1`,
		`DELETE FROM engine_state WHERE name = $1`,
	} {
		if _, err := tx.Exec(ctx, stmt, name); err != nil {
			return fmt.Errorf("reset run %s: %w", name, err)
		}
	}
	return tx.Commit(ctx)
}

// SaveEngineState upserts the engine snapshot and replaces its requests in one transaction.
func (s *Store) SaveEngineState(ctx context.Context, name string, st issuance.State) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO engine_state (
			name, owner, pool_balance, eligible, total_supply, treasury_balance, pending_policy, updated_at
		) VALUES ($1,$2,$3::numeric,$4,$5::numeric,$6::numeric,$7,now())
		ON CONFLICT (name) DO UPDATE SET
			owner = EXCLUDED.owner,
			pool_balance = EXCLUDED.pool_balance,
			eligible = EXCLUDED.eligible,
			total_supply = EXCLUDED.total_supply,
			treasury_balance = EXCLUDED.treasury_balance,
			pending_policy = EXCLUDED.pending_policy,
			updated_at = now()
	`,
		name,
		st.Owner.Hex(),
		st.PoolBalance.Dec(),
		st.Eligible.Hex(),
		st.TotalSupply.Dec(),
		st.TreasuryBalance.Dec(),
		string(st.PendingPolicy),
	); err != nil {
		return fmt.Errorf("upsert engine state: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM randomness_requests WHERE name = $1`, name); err != nil {
		return fmt.Errorf("clear requests: %w", err)
	}
	for _, req := range st.Requests {
		if _, err := tx.Exec(ctx, upsertRequestSQL, requestArgs(name, req)...); err != nil {
			return fmt.Errorf("upsert request %s: %w", req.ID.Dec(), err)
		}
	}

	return tx.Commit(ctx)
}

// LoadCheckpoint returns the watch checkpoint stored under name.
func (s *Store) LoadCheckpoint(ctx context.Context, name string) (indexer.Checkpoint, bool, error) {
	if name == "" {
		return indexer.Checkpoint{}, false, fmt.Errorf("state name required")
	}
	var (
		block     int64
		chainID   int64
		contracts []string
		updated   time.Time
	)
	row := s.pool.QueryRow(ctx, `
		SELECT last_processed_block, chain_id, contracts, updated_at FROM indexer_state WHERE name=$1
	`, name)
	if err := row.Scan(&block, &chainID, &contracts, &updated); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return indexer.Checkpoint{}, false, nil
		}
		return indexer.Checkpoint{}, false, err
	}
	return indexer.Checkpoint{
		ChainID:            uint64(chainID),
		Contracts:          contracts,
		LastProcessedBlock: uint64(block),
		UpdatedAt:          updated.UTC().Format(time.RFC3339Nano),
	}, true, nil
}

// SaveCheckpoint upserts the watch checkpoint under name.
func (s *Store) SaveCheckpoint(ctx context.Context, name string, cp indexer.Checkpoint) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	contracts := cp.Contracts
	if contracts == nil {
		contracts = []string{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, last_processed_block, chain_id, contracts, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (name) DO UPDATE SET
			last_processed_block = EXCLUDED.last_processed_block,
			chain_id = EXCLUDED.chain_id,
			contracts = EXCLUDED.contracts,
			updated_at = now()
	`, name, int64(cp.LastProcessedBlock), int64(cp.ChainID), contracts)
	return err
}

// EventSink adapts the store to storage.Storage for one source.
type EventSink struct {
	store  *Store
	ctx    context.Context
	source string
}

func (s *Store) EventSink(ctx context.Context, source string) *EventSink {
	return &EventSink{store: s, ctx: ctx, source: source}
}

func (e *EventSink) PutEventBatch(events []model.Event) error {
	return e.store.InsertEvents(e.ctx, e.source, events)
}
