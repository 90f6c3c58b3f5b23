package ledger

import (
	"strings"
	"time"
)

// AttackKind names one adversarial scenario.
type AttackKind int

const (
	AttackTampering AttackKind = iota
	AttackDoubleSubmission
	AttackInvalidHash
)

const (
	// TamperedData replaces the report text of block 1 in the tampering scenario.
	TamperedData = "Tampered Data"
	// InvalidHashSentinel overwrites the hash of block 1 in the invalid-hash scenario.
	InvalidHashSentinel = "invalid_hash_value"
)

var attackNames = map[AttackKind]string{
	AttackTampering:        "tampering",
	AttackDoubleSubmission: "double_submission",
	AttackInvalidHash:      "invalid_hash",
}

func (k AttackKind) String() string {
	if s, ok := attackNames[k]; ok {
		return s
	}
	return "unknown"
}

// ParseAttackKind maps a scenario name to its kind. The empty name selects
// tampering.
func ParseAttackKind(name string) (AttackKind, error) {
	if name == "" {
		return AttackTampering, nil
	}
	for k, s := range attackNames {
		if s == name {
			return k, nil
		}
	}
	return 0, &UnknownAttackTypeError{Name: name}
}

// AttackKinds lists every scenario in declaration order.
func AttackKinds() []AttackKind {
	return []AttackKind{AttackTampering, AttackDoubleSubmission, AttackInvalidHash}
}

// AttackResult is the outcome of one simulated attack.
type AttackResult struct {
	AttackType string `json:"attack_type"`
	Result     string `json:"result"`
}

// Detected reports whether the scenario was caught, either by the validator
// or by the duplicate-id check.
func (r AttackResult) Detected() bool {
	return strings.Contains(r.Result, " detected:") || strings.HasPrefix(r.Result, "Chain validation failed")
}

// attackFunc mutates an owned copy of the chain and describes what the
// validator made of it.
type attackFunc func(blocks []Block, now time.Time) string

var attacks = map[AttackKind]attackFunc{
	AttackTampering:        tamper,
	AttackDoubleSubmission: doubleSubmit,
	AttackInvalidHash:      injectInvalidHash,
}

// SimulateAttack runs the scenario against a private deep copy. The live
// chain is only read, under the read lock, while the copy is taken.
func (c *Chain) SimulateAttack(kind AttackKind) (AttackResult, error) {
	fn, ok := attacks[kind]
	if !ok {
		return AttackResult{}, &UnknownAttackTypeError{Name: kind.String()}
	}
	blocks := c.Blocks()
	return AttackResult{AttackType: kind.String(), Result: fn(blocks, c.clock())}, nil
}

// SimulateAttackNamed parses name and runs the matching scenario.
func (c *Chain) SimulateAttackNamed(name string) (AttackResult, error) {
	kind, err := ParseAttackKind(name)
	if err != nil {
		return AttackResult{}, err
	}
	return c.SimulateAttack(kind)
}

func tamper(blocks []Block, _ time.Time) string {
	if len(blocks) < 2 {
		return "Not enough blocks to tamper"
	}
	b := &blocks[1]
	if b.Data.IsReport() {
		b.Data.Report.ReportData = TamperedData
	} else {
		b.Data = MarkerPayload(TamperedData)
	}
	if err := b.seal(); err != nil {
		return "Tampering detected: " + err.Error()
	}
	if v := Validate(blocks); !v.Valid {
		return "Tampering detected: " + v.Error
	}
	return "Tampering not detected"
}

func doubleSubmit(blocks []Block, now time.Time) string {
	if len(blocks) < 2 {
		return "Not enough blocks for double submission"
	}
	last := blocks[len(blocks)-1]
	dup := last.clone()
	dup.Timestamp = EpochSeconds(now)
	dup.PreviousHash = last.Hash
	if err := dup.seal(); err != nil {
		return "Chain validation failed: " + err.Error()
	}
	blocks = append(blocks, dup)

	seen := make(map[string]struct{})
	duplicate := false
	for _, r := range reportsOf(blocks) {
		if _, ok := seen[r.ReportID]; ok {
			duplicate = true
			break
		}
		seen[r.ReportID] = struct{}{}
	}
	v := Validate(blocks)
	switch {
	case duplicate:
		return "Double submission detected: Duplicate report ID found"
	case !v.Valid:
		return "Chain validation failed: " + v.Error
	default:
		return "Double submission not detected (but chain is valid)"
	}
}

func injectInvalidHash(blocks []Block, _ time.Time) string {
	if len(blocks) < 2 {
		return "Not enough blocks to inject invalid hash"
	}
	blocks[1].Hash = InvalidHashSentinel
	if v := Validate(blocks); !v.Valid {
		return "Invalid hash detected: " + v.Error
	}
	return "Invalid hash not detected"
}
