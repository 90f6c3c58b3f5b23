package ledger_test

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ksmashhero06/smart-data-integration-portal/pkg/ledger"
)

// tickingClock returns a clock starting at 1700000000 that advances one
// second per call.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	next := time.Unix(1700000000, 0)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := next
		next = next.Add(time.Second)
		return t
	}
}

func sampleReport(id string) ledger.Report {
	return ledger.Report{
		ReportID:   id,
		ReportData: "Attended AI seminar",
		Category:   "Seminar",
		FromDate:   "2024-01-10",
		ToDate:     "2024-01-12",
		Department: "CSE",
		Author:     "faculty1",
		Target:     "Student",
	}
}

func TestComputeHash_KnownVector(t *testing.T) {
	payload, err := ledger.ReportPayload(sampleReport("r-1")).Canonical()
	require.NoError(t, err)
	assert.Equal(t,
		`{"report_id": "r-1", "report_data": "Attended AI seminar", "category": "Seminar", "from_date": "2024-01-10", "to_date": "2024-01-12", "department": "CSE", "author": "faculty1", "target": "Student"}`,
		payload)
	assert.Equal(t,
		"bd12d0fe8f2dccdf811e9ac72d5db409e0ff781133d7dd132bbe9ef94985ce6c",
		ledger.ComputeHash(1, 1700000000.5, payload, "abc"))
}

func TestComputeHash_Deterministic(t *testing.T) {
	a := ledger.ComputeHash(3, 1.5, `"x"`, "prev")
	b := ledger.ComputeHash(3, 1.5, `"x"`, "prev")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	assert.NotEqual(t, a, ledger.ComputeHash(4, 1.5, `"x"`, "prev"))
	assert.NotEqual(t, a, ledger.ComputeHash(3, 1.25, `"x"`, "prev"))
	assert.NotEqual(t, a, ledger.ComputeHash(3, 1.5, `"y"`, "prev"))
	assert.NotEqual(t, a, ledger.ComputeHash(3, 1.5, `"x"`, "prev2"))
}

func TestBlockComputeHash_SensitiveToEachField(t *testing.T) {
	c := ledger.New(ledger.WithClock(tickingClock()))
	b, err := c.AppendReport(sampleReport("r-1"))
	require.NoError(t, err)

	mutations := map[string]func(*ledger.Block){
		"index":         func(b *ledger.Block) { b.Index++ },
		"timestamp":     func(b *ledger.Block) { b.Timestamp += 0.001 },
		"payload":       func(b *ledger.Block) { b.Data.Report.Author = "someone" },
		"previous_hash": func(b *ledger.Block) { b.PreviousHash = "x" },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			m := b
			r := *b.Data.Report
			m.Data = ledger.ReportPayload(r)
			mutate(&m)
			h, err := m.ComputeHash()
			require.NoError(t, err)
			assert.NotEqual(t, b.Hash, h)
		})
	}
}

func TestNew_Genesis(t *testing.T) {
	c := ledger.New(ledger.WithClock(tickingClock()))

	blocks := c.Blocks()
	require.Len(t, blocks, 1)
	g := blocks[0]
	assert.Equal(t, 0, g.Index)
	assert.Equal(t, ledger.GenesisPreviousHash, g.PreviousHash)
	assert.False(t, g.Data.IsReport())
	assert.Equal(t, ledger.GenesisMarker, g.Data.Marker)
	assert.Equal(t, "068afe4c18b942bb8e34d39f28ef92ca0315ab0395007df4e25f49e222eb57ac", g.Hash)

	assert.Equal(t, ledger.Validation{Valid: true}, c.Validate())
	assert.Empty(t, c.Reports())
}

func TestAppendReport_LinksToTip(t *testing.T) {
	c := ledger.New(ledger.WithClock(tickingClock()))
	genesis, err := c.Latest()
	require.NoError(t, err)

	b, err := c.AppendReport(sampleReport("r-1"))
	require.NoError(t, err)
	assert.Equal(t, 1, b.Index)
	assert.Equal(t, 1700000001.0, b.Timestamp)
	assert.Equal(t, genesis.Hash, b.PreviousHash)
	assert.Equal(t, "1ae176c31e66fe4b4d32e0fd7f0c2722212f8da30bc86026552ae1cf4fce7c95", b.Hash)

	latest, err := c.Latest()
	require.NoError(t, err)
	assert.Equal(t, b, latest)
}

func TestAppendReport_Monotonic(t *testing.T) {
	c := ledger.New()
	const n = 25
	for i := 0; i < n; i++ {
		_, err := c.AppendReport(sampleReport(fmt.Sprintf("r-%d", i)))
		require.NoError(t, err)
	}
	blocks := c.Blocks()
	require.Len(t, blocks, n+1)
	for i, b := range blocks {
		assert.Equal(t, i, b.Index)
		if i > 0 {
			assert.Equal(t, blocks[i-1].Hash, b.PreviousHash)
		}
	}
	assert.True(t, c.Validate().Valid)
	assert.Len(t, c.Reports(), n)
	assert.Equal(t, "r-0", c.Reports()[0].ReportID)
}

func TestAppendReport_ConcurrentAppendsStayLinked(t *testing.T) {
	c := ledger.New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.AppendReport(sampleReport(fmt.Sprintf("r-%d", i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 17, c.Len())
	assert.True(t, c.Validate().Valid)
}

func TestAppendReport_InvalidUTF8(t *testing.T) {
	c := ledger.New()
	r := sampleReport("r-1")
	r.ReportData = string([]byte{0xff})

	_, err := c.AppendReport(r)
	var serr *ledger.SerializationError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 1, c.Len())
}

func TestLatest_ZeroValueChain(t *testing.T) {
	var c ledger.Chain
	_, err := c.Latest()
	assert.ErrorIs(t, err, ledger.ErrEmptyChain)
	_, err = c.AppendReport(sampleReport("r-1"))
	assert.ErrorIs(t, err, ledger.ErrEmptyChain)
}

func TestStudentRecords_AreNotChained(t *testing.T) {
	c := ledger.New(ledger.WithClock(tickingClock()))
	rec := c.AppendStudentRecord("Scored 9.1 CGPA")
	assert.Equal(t, "Scored 9.1 CGPA", rec.Data)
	assert.Equal(t, 1700000001.0, rec.Timestamp)

	assert.Equal(t, 1, c.Len())
	assert.Equal(t, []ledger.StudentRecord{rec}, c.StudentRecords())
}

func TestQualityMetrics(t *testing.T) {
	c := ledger.New(ledger.WithClock(tickingClock()))
	_, err := c.AppendReport(sampleReport("r-1"))
	require.NoError(t, err)

	m := c.QualityMetrics()
	assert.Equal(t, 2, m.ChainLength)
	assert.Equal(t, 1700000001.0, m.LastBlockTime)
}

func TestBlocks_ReturnsDeepCopy(t *testing.T) {
	c := ledger.New()
	_, err := c.AppendReport(sampleReport("r-1"))
	require.NoError(t, err)

	blocks := c.Blocks()
	blocks[1].Data.Report.ReportData = "changed"
	blocks[1].Hash = "changed"

	assert.Equal(t, "Attended AI seminar", c.Reports()[0].ReportData)
	assert.True(t, c.Validate().Valid)
}

func buildChain(t *testing.T, reports int) []ledger.Block {
	t.Helper()
	c := ledger.New(ledger.WithClock(tickingClock()))
	for i := 0; i < reports; i++ {
		_, err := c.AppendReport(sampleReport(fmt.Sprintf("r-%d", i)))
		require.NoError(t, err)
	}
	return c.Blocks()
}

func TestValidate_HashMismatchAtIndex(t *testing.T) {
	for k := 1; k <= 4; k++ {
		blocks := buildChain(t, 4)
		blocks[k].Hash = "deadbeef"
		v := ledger.Validate(blocks)
		assert.False(t, v.Valid)
		assert.Equal(t, fmt.Sprintf("Hash mismatch at block %d", k), v.Error)
	}
}

func TestValidate_PayloadChangeIsHashMismatch(t *testing.T) {
	blocks := buildChain(t, 3)
	blocks[2].Data.Report.Category = "Workshop"
	assert.Equal(t, "Hash mismatch at block 2", ledger.Validate(blocks).Error)
}

func TestValidate_PreviousHashMismatch(t *testing.T) {
	blocks := buildChain(t, 3)
	// Re-point block 2 at a foreign parent and keep it self-consistent.
	blocks[2].PreviousHash = "foreign"
	payload, err := blocks[2].Data.Canonical()
	require.NoError(t, err)
	blocks[2].Hash = ledger.ComputeHash(blocks[2].Index, blocks[2].Timestamp, payload, blocks[2].PreviousHash)

	v := ledger.Validate(blocks)
	assert.False(t, v.Valid)
	assert.Equal(t, "Previous hash mismatch at block 2", v.Error)
}

func TestValidate_GenesisIsTrusted(t *testing.T) {
	blocks := buildChain(t, 1)
	blocks[0].Timestamp = 1
	assert.True(t, ledger.Validate(blocks).Valid)
}

func TestValidation_JSON(t *testing.T) {
	raw, err := json.Marshal(ledger.Validation{Valid: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"valid": true, "error": null}`, string(raw))

	raw, err = json.Marshal(ledger.Validation{Error: "Hash mismatch at block 1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"valid": false, "error": "Hash mismatch at block 1"}`, string(raw))

	var v ledger.Validation
	require.NoError(t, json.Unmarshal(raw, &v))
	assert.Equal(t, ledger.Validation{Error: "Hash mismatch at block 1"}, v)
}

func TestBlock_JSONRoundTripKeepsHashes(t *testing.T) {
	blocks := buildChain(t, 2)
	raw, err := json.Marshal(blocks)
	require.NoError(t, err)

	var decoded []ledger.Block
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, blocks, decoded)
	assert.True(t, ledger.Validate(decoded).Valid)
	assert.Contains(t, string(raw), `"data":"Genesis Block"`)
}

func TestParseAttackKind(t *testing.T) {
	cases := map[string]ledger.AttackKind{
		"":                  ledger.AttackTampering,
		"tampering":         ledger.AttackTampering,
		"double_submission": ledger.AttackDoubleSubmission,
		"invalid_hash":      ledger.AttackInvalidHash,
	}
	for name, want := range cases {
		got, err := ledger.ParseAttackKind(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ledger.ParseAttackKind("sybil")
	var unknown *ledger.UnknownAttackTypeError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "sybil", unknown.Name)
}

func TestSimulateAttack_NotEnoughBlocks(t *testing.T) {
	c := ledger.New()
	want := map[ledger.AttackKind]string{
		ledger.AttackTampering:        "Not enough blocks to tamper",
		ledger.AttackDoubleSubmission: "Not enough blocks for double submission",
		ledger.AttackInvalidHash:      "Not enough blocks to inject invalid hash",
	}
	for kind, result := range want {
		res, err := c.SimulateAttack(kind)
		require.NoError(t, err)
		assert.Equal(t, ledger.AttackResult{AttackType: kind.String(), Result: result}, res)
	}
}

func TestSimulateAttack_TamperingBlindSpot(t *testing.T) {
	c := ledger.New()
	_, err := c.AppendReport(sampleReport("r-1"))
	require.NoError(t, err)

	res, err := c.SimulateAttack(ledger.AttackTampering)
	require.NoError(t, err)
	assert.Equal(t, "tampering", res.AttackType)
	assert.Equal(t, "Tampering not detected", res.Result)
}

func TestSimulateAttack_TamperingDetectedDownstream(t *testing.T) {
	c := ledger.New()
	for i := 0; i < 2; i++ {
		_, err := c.AppendReport(sampleReport(fmt.Sprintf("r-%d", i)))
		require.NoError(t, err)
	}
	res, err := c.SimulateAttack(ledger.AttackTampering)
	require.NoError(t, err)
	assert.Equal(t, "Tampering detected: Previous hash mismatch at block 2", res.Result)
}

func TestSimulateAttack_DoubleSubmission(t *testing.T) {
	c := ledger.New()
	_, err := c.AppendReport(sampleReport("r-1"))
	require.NoError(t, err)

	res, err := c.SimulateAttackNamed("double_submission")
	require.NoError(t, err)
	assert.Equal(t, "double_submission", res.AttackType)
	assert.Equal(t, "Double submission detected: Duplicate report ID found", res.Result)
}

func TestSimulateAttack_InvalidHash(t *testing.T) {
	c := ledger.New()
	_, err := c.AppendReport(sampleReport("r-1"))
	require.NoError(t, err)

	res, err := c.SimulateAttack(ledger.AttackInvalidHash)
	require.NoError(t, err)
	assert.Equal(t, ledger.AttackResult{
		AttackType: "invalid_hash",
		Result:     "Invalid hash detected: Hash mismatch at block 1",
	}, res)
	assert.Equal(t, 2, c.Len())
}

func TestSimulateAttack_LiveChainUntouched(t *testing.T) {
	c := ledger.New()
	for i := 0; i < 3; i++ {
		_, err := c.AppendReport(sampleReport(fmt.Sprintf("r-%d", i)))
		require.NoError(t, err)
	}
	before := c.Blocks()

	for _, kind := range ledger.AttackKinds() {
		_, err := c.SimulateAttack(kind)
		require.NoError(t, err)
		assert.Equal(t, before, c.Blocks(), kind.String())
	}
	assert.True(t, c.Validate().Valid)
}

func TestSimulateAttackNamed_Unknown(t *testing.T) {
	c := ledger.New()
	_, err := c.SimulateAttackNamed("replay")
	var unknown *ledger.UnknownAttackTypeError
	assert.ErrorAs(t, err, &unknown)
}

func TestAnalyzeSnapshot(t *testing.T) {
	c := ledger.New(ledger.WithClock(tickingClock()))
	_, err := c.AppendReport(sampleReport("r-1"))
	require.NoError(t, err)

	s := c.AnalyzeSnapshot("weekly")
	assert.Equal(t, ledger.Snapshot{
		SnapshotName: "weekly",
		Timestamp:    1700000002.0,
		ChainLength:  2,
		ReportsCount: 1,
		Validation:   ledger.Validation{Valid: true},
	}, s)
}

func TestAttackResult_Detected(t *testing.T) {
	cases := map[string]bool{
		"Tampering detected: Previous hash mismatch at block 2": true,
		"Tampering not detected":                                false,
		"Double submission detected: Duplicate report ID found": true,
		"Chain validation failed: Hash mismatch at block 3":     true,
		"Double submission not detected (but chain is valid)":   false,
		"Invalid hash detected: Hash mismatch at block 1":       true,
		"Not enough blocks to inject invalid hash":              false,
	}
	for result, want := range cases {
		assert.Equal(t, want, ledger.AttackResult{Result: result}.Detected(), result)
	}
}
