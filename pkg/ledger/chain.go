package ledger

import (
	"sync"
	"time"
)

// Chain is the append-only sequence of blocks. A single RWMutex guards the
// whole sequence so hash links cannot interleave.
type Chain struct {
	mu      sync.RWMutex
	blocks  []Block
	records []StudentRecord
	now     func() time.Time
}

// Option configures a Chain.
type Option func(*Chain)

// WithClock overrides the clock used for block timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Chain) { c.now = now }
}

// New returns a chain holding only the genesis block.
func New(opts ...Option) *Chain {
	c := &Chain{now: time.Now}
	for _, o := range opts {
		o(c)
	}
	c.createGenesis()
	return c
}

func (c *Chain) clock() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}

func (c *Chain) createGenesis() {
	genesis := Block{
		Index:        0,
		Timestamp:    EpochSeconds(c.clock()),
		Data:         MarkerPayload(GenesisMarker),
		PreviousHash: GenesisPreviousHash,
	}
	// The marker is plain ASCII, so sealing cannot fail.
	_ = genesis.seal()
	c.blocks = append(c.blocks, genesis)
}

// AppendReport links a new report block to the current tip. Business rules
// are the caller's concern and must be checked before calling.
func (c *Chain) AppendReport(r Report) (Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, err := c.latestLocked()
	if err != nil {
		return Block{}, err
	}
	b := Block{
		Index:        len(c.blocks),
		Timestamp:    EpochSeconds(c.clock()),
		Data:         ReportPayload(r),
		PreviousHash: prev.Hash,
	}
	if err := b.seal(); err != nil {
		return Block{}, err
	}
	c.blocks = append(c.blocks, b)
	return b.clone(), nil
}

// AppendStudentRecord stores an unchained display record.
func (c *Chain) AppendStudentRecord(data string) StudentRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec := StudentRecord{Timestamp: EpochSeconds(c.clock()), Data: data}
	c.records = append(c.records, rec)
	return rec
}

// Latest returns the tip of the chain.
func (c *Chain) Latest() (Block, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latestLocked()
}

func (c *Chain) latestLocked() (Block, error) {
	if len(c.blocks) == 0 {
		return Block{}, ErrEmptyChain
	}
	return c.blocks[len(c.blocks)-1].clone(), nil
}

// Len returns the number of blocks including genesis.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

// Blocks returns a deep copy of the chain.
func (c *Chain) Blocks() []Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneBlocks(c.blocks)
}

// Reports returns every report payload after genesis, in chain order.
// Updated reports appear once per block that carried them.
func (c *Chain) Reports() []Report {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return reportsOf(c.blocks)
}

func reportsOf(blocks []Block) []Report {
	var out []Report
	for i := 1; i < len(blocks); i++ {
		if blocks[i].Data.IsReport() {
			out = append(out, *blocks[i].Data.Report)
		}
	}
	return out
}

// StudentRecords returns a copy of the unchained records.
func (c *Chain) StudentRecords() []StudentRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]StudentRecord, len(c.records))
	copy(out, c.records)
	return out
}

// QualityMetrics summarizes the chain for dashboards.
type QualityMetrics struct {
	ChainLength   int     `json:"chain_length"`
	LastBlockTime float64 `json:"last_block_time"`
}

func (c *Chain) QualityMetrics() QualityMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m := QualityMetrics{ChainLength: len(c.blocks)}
	if n := len(c.blocks); n > 0 {
		m.LastBlockTime = c.blocks[n-1].Timestamp
	}
	return m
}
