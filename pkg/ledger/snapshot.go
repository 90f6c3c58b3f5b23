package ledger

// Snapshot is a read-only summary of the chain at one instant.
type Snapshot struct {
	SnapshotName string     `json:"snapshot_name"`
	Timestamp    float64    `json:"timestamp"`
	ChainLength  int        `json:"chain_length"`
	ReportsCount int        `json:"reports_count"`
	Validation   Validation `json:"validation"`
}

// AnalyzeSnapshot summarizes the chain under a single read lock so the
// counts and the verdict describe the same sequence.
func (c *Chain) AnalyzeSnapshot(name string) Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		SnapshotName: name,
		Timestamp:    EpochSeconds(c.clock()),
		ChainLength:  len(c.blocks),
		ReportsCount: len(reportsOf(c.blocks)),
		Validation:   Validate(c.blocks),
	}
}
