// Package status defines the canonical machine's fixed exit-code
// enumeration (spec.md §4.1 "Status codes") and a compressed ring of
// past status reports, used by host/statussrv to serve report history
// without holding it all in memory.
package status

import (
	"encoding/json"
	"sync"

	"tinygfw/tinycompress"
)

// Code is a canonical machine result code. Every CM operation returns
// one of these instead of an ad-hoc error string, so host tooling can
// switch on a stable small integer.
type Code int

const (
	OK Code = iota
	EAGAIN
	NOOP
	COMPLETE
	ErrFeedrateMissing
	ErrAxisMissing
	ErrAxisNotAllowed
	ErrSoftLimitExceeded
	ErrMinLength
	ErrMinTime
	ErrHomingFailed
	ErrProbeFailed
	ErrQueueFull
	ErrChecksumMismatch
	ErrUnsupportedCode
	ErrInternal
	ErrMemoryFault
)

func (c Code) String() string {
	switch c {
	case OK:
		return "ok"
	case EAGAIN:
		return "eagain"
	case NOOP:
		return "noop"
	case COMPLETE:
		return "complete"
	case ErrFeedrateMissing:
		return "feedrate_missing"
	case ErrAxisMissing:
		return "axis_missing"
	case ErrAxisNotAllowed:
		return "axis_not_allowed"
	case ErrSoftLimitExceeded:
		return "soft_limit_exceeded"
	case ErrMinLength:
		return "min_length"
	case ErrMinTime:
		return "min_time"
	case ErrHomingFailed:
		return "homing_failed"
	case ErrProbeFailed:
		return "probe_failed"
	case ErrQueueFull:
		return "queue_full"
	case ErrChecksumMismatch:
		return "checksum_mismatch"
	case ErrUnsupportedCode:
		return "unsupported_code"
	case ErrInternal:
		return "internal_error"
	case ErrMemoryFault:
		return "memory_fault"
	default:
		return "unknown"
	}
}

// IsError reports whether the code represents a rejected operation
// rather than a success/progress result.
func (c Code) IsError() bool {
	return c >= ErrFeedrateMissing
}

// Report is one status snapshot as exposed over host/statussrv.
type Report struct {
	Code     Code               `json:"code"`
	Cycle    string             `json:"cycle"`
	Position [6]float64         `json:"position"`
	Feed     float64            `json:"feed"`
	Line     int                `json:"line,omitempty"`
	Extra    map[string]float64 `json:"extra,omitempty"`
}

// History is a bounded, zlib-compressed log of past reports. Reports
// are appended as JSON records; old records are compressed in place
// once the live tail grows past liveLimit, trading CPU for the memory
// an embedded target cannot spare on an uncompressed report log.
//
// Grounded on amken3d-gopper's tinycompress/zlib.go, which the teacher
// wrote but never called from anywhere else in the tree.
type History struct {
	mu         sync.Mutex
	liveLimit  int
	live       []Report
	zlib       *tinycompress.ZlibEncoder
	blocks     [][]byte // one independent zlib stream per evicted report
	blockSize  int
}

// NewHistory creates a History that keeps liveLimit reports
// uncompressed before folding older ones into the compressed tail.
func NewHistory(liveLimit int) *History {
	if liveLimit <= 0 {
		liveLimit = 64
	}
	return &History{
		liveLimit: liveLimit,
		zlib:      tinycompress.NewZlib(4096),
	}
}

// Push appends a report, compressing the oldest live entry once the
// live window overflows.
func (h *History) Push(r Report) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.live = append(h.live, r)
	if len(h.live) <= h.liveLimit {
		return nil
	}

	evict := h.live[0]
	h.live = h.live[1:]

	buf, err := json.Marshal(evict)
	if err != nil {
		return err
	}

	compressed, n, err := h.zlib.Compress(buf)
	if err != nil {
		return err
	}
	block := make([]byte, n)
	copy(block, compressed[:n])
	h.blocks = append(h.blocks, block)
	h.blockSize += n
	return nil
}

// Live returns a copy of the uncompressed tail (most recent reports).
func (h *History) Live() []Report {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Report, len(h.live))
	copy(out, h.live)
	return out
}

// Archived decompresses and returns every evicted report, oldest
// first. Intended for on-demand history export, not the hot path.
func (h *History) Archived() ([]Report, error) {
	h.mu.Lock()
	blocks := make([][]byte, len(h.blocks))
	copy(blocks, h.blocks)
	h.mu.Unlock()

	dec := tinycompress.NewZlib(h.blockSize + 4096)
	out := make([]Report, 0, len(blocks))
	for _, block := range blocks {
		raw, _, err := dec.Decompress(block, len(block))
		if err != nil {
			return out, err
		}
		var r Report
		if err := json.Unmarshal(raw, &r); err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}
