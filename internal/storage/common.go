package storage

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// PrepareBlob compresses and hashes raw archive content and derives its key:
// <kind>/<YYYY>/<MM>/<DD>/<timestamp>_<sha[:8]>.json.gz
func PrepareBlob(raw []byte, kind string, at time.Time) ([]byte, ObjectMeta, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(raw); err != nil {
		return nil, ObjectMeta{}, fmt.Errorf("storage: gzip write: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, ObjectMeta{}, fmt.Errorf("storage: gzip close: %w", err)
	}
	compressed := buf.Bytes()

	sum := sha256.Sum256(raw)
	sha256hex := hex.EncodeToString(sum[:])

	key := fmt.Sprintf("%s/%s/%s_%s.json.gz",
		kind,
		at.UTC().Format("2006/01/02"),
		at.UTC().Format("20060102T150405Z"),
		sha256hex[:8],
	)
	return compressed, ObjectMeta{Key: key, SHA256: sha256hex, Size: int64(len(compressed))}, nil
}

// DecompressBlob reads gzip compressed data from a reader.
func DecompressBlob(r io.Reader) ([]byte, error) {
	gr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("storage: gzip reader: %w", err)
	}
	defer gr.Close()
	return io.ReadAll(gr)
}
