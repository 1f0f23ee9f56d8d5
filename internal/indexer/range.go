package indexer

import "fmt"

// BlockRange is an inclusive span of blocks fetched with one eth_getLogs call.
type BlockRange struct {
	From uint64
	To   uint64
}

// Blocks returns the number of blocks the range covers.
func (r BlockRange) Blocks() uint64 { return r.To - r.From + 1 }

// Halve splits a range of two or more blocks into two adjacent halves.
func (r BlockRange) Halve() (BlockRange, BlockRange, bool) {
	if r.To <= r.From {
		return r, BlockRange{}, false
	}
	mid := r.From + (r.To-r.From)/2
	return BlockRange{From: r.From, To: mid}, BlockRange{From: mid + 1, To: r.To}, true
}

// SafeHead is the newest block considered final when the chain head is latest.
// ok is false while the chain is shorter than finality.
func SafeHead(latest, finality uint64) (head uint64, ok bool) {
	if latest < finality {
		return 0, false
	}
	return latest - finality, true
}

// PlanRanges cuts [from, to] into spans of at most batchSize blocks so a single
// log query stays under provider result limits.
func PlanRanges(from, to, batchSize uint64) ([]BlockRange, error) {
	if batchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to block %d before from block %d", to, from)
	}

	ranges := make([]BlockRange, 0, (to-from)/batchSize+1)
	for start := from; ; {
		end := to
		if to-start >= batchSize {
			end = start + batchSize - 1
		}
		ranges = append(ranges, BlockRange{From: start, To: end})
		if end == to {
			return ranges, nil
		}
		start = end + 1
	}
}
