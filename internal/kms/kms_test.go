package kms_test

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ksmashhero06/smart-data-integration-portal/internal/kms"
)

const testKey = "0000000000000000000000000000000000000000000000000000000000000000"

var reportID = []byte("7f1c1f3e-report")

func newTestEncryptor(t *testing.T) *kms.Encryptor {
	t.Helper()
	enc, err := kms.New(testKey)
	require.NoError(t, err)
	return enc
}

func TestNew_InvalidHex(t *testing.T) {
	_, err := kms.New("not-valid-hex")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode key")
}

func TestNew_WrongLength(t *testing.T) {
	// 16 bytes = 32 hex chars – too short for AES-256.
	_, err := kms.New(strings.Repeat("0", 32))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "32 bytes")
}

func TestSealOpen_RoundTrip(t *testing.T) {
	enc := newTestEncryptor(t)
	pdf := []byte("%PDF-1.7 certificate body")

	envelope, err := enc.Seal(pdf, reportID)
	require.NoError(t, err)
	assert.NotContains(t, envelope, "PDF")
	_, err = base64.StdEncoding.DecodeString(envelope)
	require.NoError(t, err, "envelope must be JSON-safe base64")

	recovered, err := enc.Open(envelope, reportID)
	require.NoError(t, err)
	assert.Equal(t, pdf, recovered)
}

func TestSeal_Nondeterministic(t *testing.T) {
	enc := newTestEncryptor(t)
	c1, err := enc.Seal([]byte("same"), reportID)
	require.NoError(t, err)
	c2, err := enc.Seal([]byte("same"), reportID)
	require.NoError(t, err)
	assert.NotEqual(t, c1, c2, "GCM encryption must be non-deterministic (random nonce)")
}

func TestOpen_WrongReport(t *testing.T) {
	enc := newTestEncryptor(t)
	envelope, err := enc.Seal([]byte("cert"), reportID)
	require.NoError(t, err)

	_, err = enc.Open(envelope, []byte("another-report"))
	require.Error(t, err, "an envelope moved to another report must not open")
}

func TestOpen_Tampered(t *testing.T) {
	enc := newTestEncryptor(t)
	envelope, err := enc.Seal([]byte("sensitive-value"), reportID)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(envelope)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	_, err = enc.Open(base64.StdEncoding.EncodeToString(raw), reportID)
	require.Error(t, err)
}

func TestOpen_Malformed(t *testing.T) {
	enc := newTestEncryptor(t)
	_, err := enc.Open("!!!", reportID)
	require.Error(t, err)
	_, err = enc.Open("", reportID)
	require.Error(t, err)
}

func TestSealOpen_Large(t *testing.T) {
	enc := newTestEncryptor(t)
	img := bytes.Repeat([]byte{0x89, 'P', 'N', 'G'}, 1<<16)

	envelope, err := enc.Seal(img, reportID)
	require.NoError(t, err)
	recovered, err := enc.Open(envelope, reportID)
	require.NoError(t, err)
	assert.Equal(t, img, recovered)
}
