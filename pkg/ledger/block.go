// Package ledger implements the in-memory, hash-chained report log: blocks,
// the chain that appends them, the validator that walks it and the attack
// simulator that exercises the validator on throwaway copies.
package ledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	"github.com/Ksmashhero06/smart-data-integration-portal/pkg/canonical"
)

const (
	// GenesisMarker is the payload of block 0.
	GenesisMarker = "Genesis Block"
	// GenesisPreviousHash is the link sentinel stored in block 0.
	GenesisPreviousHash = "0"
)

// Report is the payload carried by every non-genesis block.
// Field order matters: it is the order the payload is hashed in.
type Report struct {
	ReportID   string `json:"report_id"`
	ReportData string `json:"report_data"`
	Category   string `json:"category"`
	FromDate   string `json:"from_date"`
	ToDate     string `json:"to_date"`
	Department string `json:"department"`
	Author     string `json:"author"`
	Target     string `json:"target"`
}

func (r Report) object() canonical.Object {
	return canonical.Object{
		{Key: "report_id", Value: r.ReportID},
		{Key: "report_data", Value: r.ReportData},
		{Key: "category", Value: r.Category},
		{Key: "from_date", Value: r.FromDate},
		{Key: "to_date", Value: r.ToDate},
		{Key: "department", Value: r.Department},
		{Key: "author", Value: r.Author},
		{Key: "target", Value: r.Target},
	}
}

// Payload is either a plain marker string or a Report.
type Payload struct {
	Marker string
	Report *Report
}

// MarkerPayload wraps a plain string payload.
func MarkerPayload(s string) Payload { return Payload{Marker: s} }

// ReportPayload wraps a report payload.
func ReportPayload(r Report) Payload { return Payload{Report: &r} }

// IsReport reports whether the payload is report-shaped.
func (p Payload) IsReport() bool { return p.Report != nil }

// Canonical returns the text the live hashing rule consumes: insertion
// ordered JSON for reports, a JSON string for markers.
func (p Payload) Canonical() (string, error) {
	var v any = p.Marker
	if p.Report != nil {
		v = p.Report.object()
	}
	s, err := canonical.Encode(v)
	if err != nil {
		return "", &SerializationError{Err: err}
	}
	return s, nil
}

func (p Payload) clone() Payload {
	if p.Report != nil {
		r := *p.Report
		p.Report = &r
	}
	return p
}

func (p Payload) MarshalJSON() ([]byte, error) {
	if p.Report != nil {
		return json.Marshal(p.Report)
	}
	return json.Marshal(p.Marker)
}

func (p *Payload) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var r Report
		if err := json.Unmarshal(b, &r); err != nil {
			return err
		}
		*p = Payload{Report: &r}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*p = Payload{Marker: s}
	return nil
}

// Block is one link of the chain.
type Block struct {
	Index        int     `json:"index"`
	Timestamp    float64 `json:"timestamp"`
	Data         Payload `json:"data"`
	PreviousHash string  `json:"previous_hash"`
	Hash         string  `json:"hash"`
}

// ComputeHash is the live chain hashing rule:
// SHA-256(index || timestamp || payload || previousHash), lowercase hex.
// payload must already be in canonical text form (see Payload.Canonical).
func ComputeHash(index int, timestamp float64, payload, previousHash string) string {
	h := sha256.New()
	h.Write([]byte(strconv.Itoa(index)))
	h.Write([]byte(canonical.FormatFloat(timestamp)))
	h.Write([]byte(payload))
	h.Write([]byte(previousHash))
	return hex.EncodeToString(h.Sum(nil))
}

// ComputeHash recomputes the block hash from its other four fields.
func (b Block) ComputeHash() (string, error) {
	payload, err := b.Data.Canonical()
	if err != nil {
		return "", err
	}
	return ComputeHash(b.Index, b.Timestamp, payload, b.PreviousHash), nil
}

func (b *Block) seal() error {
	h, err := b.ComputeHash()
	if err != nil {
		return err
	}
	b.Hash = h
	return nil
}

func (b Block) clone() Block {
	b.Data = b.Data.clone()
	return b
}

func cloneBlocks(blocks []Block) []Block {
	out := make([]Block, len(blocks))
	for i, b := range blocks {
		out[i] = b.clone()
	}
	return out
}

// StudentRecord is kept next to the chain for display only. It is not
// linked, hashed or validated.
type StudentRecord struct {
	Timestamp float64 `json:"timestamp"`
	Data      string  `json:"data"`
}

// EpochSeconds converts t to fractional Unix seconds, the timestamp unit
// stored in blocks.
func EpochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
