package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ErrCheckpointMismatch is returned when a checkpoint was written for another chain or contract set.
var ErrCheckpointMismatch = errors.New("checkpoint belongs to a different watch")

// Checkpoint records how far a watch over a fixed set of engine contracts has progressed.
type Checkpoint struct {
	ChainID            uint64   `json:"chain_id"`
	Contracts          []string `json:"contracts"`
	LastProcessedBlock uint64   `json:"last_processed_block"`
	UpdatedAt          string   `json:"updated_at,omitempty"`
}

// ContractSet normalizes addresses into the sorted lowercase form stored in checkpoints.
func ContractSet(contracts []common.Address) []string {
	out := make([]string, 0, len(contracts))
	seen := make(map[string]struct{}, len(contracts))
	for _, c := range contracts {
		key := strings.ToLower(c.Hex())
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// Resumes reports whether the checkpoint may continue a watch of contracts on chainID.
func (cp Checkpoint) Resumes(chainID uint64, contracts []string) error {
	if cp.ChainID != chainID {
		return fmt.Errorf("chain %d, watching %d: %w", cp.ChainID, chainID, ErrCheckpointMismatch)
	}
	if strings.Join(cp.Contracts, ",") != strings.Join(contracts, ",") {
		return fmt.Errorf("contracts %v, watching %v: %w", cp.Contracts, contracts, ErrCheckpointMismatch)
	}
	return nil
}

// CheckpointStore keeps the checkpoint in a JSON file, replaced atomically on save.
type CheckpointStore struct {
	path    string
	enabled bool
}

func NewCheckpointStore(path string, enabled bool) *CheckpointStore {
	return &CheckpointStore{path: path, enabled: enabled}
}

func (c *CheckpointStore) Load() (Checkpoint, bool, error) {
	if !c.enabled {
		return Checkpoint{}, false, nil
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Checkpoint{}, false, nil
		}
		return Checkpoint{}, false, fmt.Errorf("read checkpoint %s: %w", c.path, err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, false, fmt.Errorf("parse checkpoint %s: %w", c.path, err)
	}
	return cp, true, nil
}

func (c *CheckpointStore) Save(cp Checkpoint) error {
	if !c.enabled {
		return nil
	}
	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}

	cp.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}
