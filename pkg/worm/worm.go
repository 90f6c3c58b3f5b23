// Package worm builds and verifies the sealed, write-once report chain that
// the offline rebuild produces for auditors, plus per-object SHA-256 checks
// for archived artifacts.
//
// The sealing rule hashes the key-sorted JSON text of the whole block. It is
// deliberately independent of the live chain rule in package ledger and the
// two never produce comparable digests.
package worm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/Ksmashhero06/smart-data-integration-portal/pkg/canonical"
)

const (
	GenesisData         = "Genesis Block"
	GenesisPreviousHash = "0"
	// NoneMarker fills the target fields of the genesis block.
	NoneMarker = "None"
)

// Block is one entry of the sealed chain. Block 0 carries only the genesis
// fields; the report fields are empty there.
type Block struct {
	Index          int     `json:"index"`
	Timestamp      float64 `json:"timestamp"`
	ReportID       string  `json:"report_id,omitempty"`
	Data           string  `json:"data"`
	Category       string  `json:"category,omitempty"`
	ReportType     string  `json:"report_type,omitempty"`
	FromDate       string  `json:"from_date,omitempty"`
	ToDate         string  `json:"to_date,omitempty"`
	Department     string  `json:"department,omitempty"`
	Author         string  `json:"author,omitempty"`
	Target         string  `json:"target"`
	TargetUsername string  `json:"target_username"`
	PreviousHash   string  `json:"previous_hash"`
	Hash           string  `json:"hash"`
}

// Entry is one registry report fed into Build.
type Entry struct {
	ReportID       string
	Timestamp      float64
	Data           string
	Category       string
	ReportType     string
	FromDate       string
	ToDate         string
	Department     string
	Author         string
	Target         string
	TargetUsername string
}

// sealedFields returns the object the seal is computed over. The genesis
// block is sealed with an explicit null hash key; report blocks are sealed
// before the hash key exists.
func (b Block) sealedFields() canonical.Object {
	if b.Index == 0 {
		return canonical.Object{
			{Key: "index", Value: b.Index},
			{Key: "timestamp", Value: b.Timestamp},
			{Key: "data", Value: b.Data},
			{Key: "previous_hash", Value: b.PreviousHash},
			{Key: "target", Value: b.Target},
			{Key: "target_username", Value: b.TargetUsername},
			{Key: "hash", Value: nil},
		}
	}
	return canonical.Object{
		{Key: "index", Value: b.Index},
		{Key: "timestamp", Value: b.Timestamp},
		{Key: "report_id", Value: b.ReportID},
		{Key: "data", Value: b.Data},
		{Key: "category", Value: b.Category},
		{Key: "report_type", Value: b.ReportType},
		{Key: "from_date", Value: b.FromDate},
		{Key: "to_date", Value: b.ToDate},
		{Key: "department", Value: b.Department},
		{Key: "author", Value: b.Author},
		{Key: "target", Value: b.Target},
		{Key: "target_username", Value: b.TargetUsername},
		{Key: "previous_hash", Value: b.PreviousHash},
	}
}

// SealHash computes SHA-256 over the key-sorted canonical JSON of b,
// ignoring the Hash field itself.
func SealHash(b Block) (string, error) {
	text, err := canonical.EncodeSorted(b.sealedFields())
	if err != nil {
		return "", fmt.Errorf("worm: seal block %d: %w", b.Index, err)
	}
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:]), nil
}

// Genesis returns the sealed root block for the given timestamp.
func Genesis(ts float64) (Block, error) {
	g := Block{
		Index:          0,
		Timestamp:      ts,
		Data:           GenesisData,
		PreviousHash:   GenesisPreviousHash,
		Target:         NoneMarker,
		TargetUsername: NoneMarker,
	}
	h, err := SealHash(g)
	if err != nil {
		return Block{}, err
	}
	g.Hash = h
	return g, nil
}

// Build seals a fresh chain: genesis, then one block per entry in order.
func Build(genesisTS float64, entries []Entry) ([]Block, error) {
	g, err := Genesis(genesisTS)
	if err != nil {
		return nil, err
	}
	chain := make([]Block, 0, len(entries)+1)
	chain = append(chain, g)
	for _, e := range entries {
		b := Block{
			Index:          len(chain),
			Timestamp:      e.Timestamp,
			ReportID:       e.ReportID,
			Data:           e.Data,
			Category:       e.Category,
			ReportType:     e.ReportType,
			FromDate:       e.FromDate,
			ToDate:         e.ToDate,
			Department:     e.Department,
			Author:         e.Author,
			Target:         e.Target,
			TargetUsername: e.TargetUsername,
			PreviousHash:   chain[len(chain)-1].Hash,
		}
		if b.Hash, err = SealHash(b); err != nil {
			return nil, err
		}
		chain = append(chain, b)
	}
	return chain, nil
}

// ChainError locates the first broken block of a sealed chain.
type ChainError struct {
	Index  int
	Reason string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("worm: block %d: %s", e.Index, e.Reason)
}

// VerifyChain re-derives every seal and link, genesis included.
func VerifyChain(blocks []Block) error {
	if len(blocks) == 0 {
		return &ChainError{Index: 0, Reason: "empty chain"}
	}
	for i, b := range blocks {
		if b.Index != i {
			return &ChainError{Index: i, Reason: fmt.Sprintf("index %d out of sequence", b.Index)}
		}
		want := GenesisPreviousHash
		if i > 0 {
			want = blocks[i-1].Hash
		}
		if b.PreviousHash != want {
			return &ChainError{Index: i, Reason: "previous hash mismatch"}
		}
		h, err := SealHash(b)
		if err != nil {
			return err
		}
		if h != b.Hash {
			return &ChainError{Index: i, Reason: "seal mismatch"}
		}
	}
	return nil
}

// ObjectHash returns the lowercase hex SHA-256 of data.
func ObjectHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VerifyObject confirms that the SHA-256 of data matches expected.
func VerifyObject(data []byte, expectedHex string) error {
	got := ObjectHash(data)
	if got != expectedHex {
		return fmt.Errorf("worm: sha256 mismatch: got %s, expected %s", got, expectedHex)
	}
	return nil
}
