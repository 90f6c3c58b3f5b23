package ledger

import (
	"encoding/json"
	"fmt"
)

// Validation is the verdict of a chain walk. An invalid chain is a normal
// result, not an error.
type Validation struct {
	Valid bool
	Error string
}

type validationJSON struct {
	Valid bool    `json:"valid"`
	Error *string `json:"error"`
}

func (v Validation) MarshalJSON() ([]byte, error) {
	out := validationJSON{Valid: v.Valid}
	if v.Error != "" {
		out.Error = &v.Error
	}
	return json.Marshal(out)
}

func (v *Validation) UnmarshalJSON(b []byte) error {
	var in validationJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	v.Valid = in.Valid
	v.Error = ""
	if in.Error != nil {
		v.Error = *in.Error
	}
	return nil
}

// Validate walks blocks[1:] and stops at the first broken block: first the
// block's own hash, then its link to the predecessor. Block 0 is the
// trusted root and is never re-hashed.
func Validate(blocks []Block) Validation {
	for i := 1; i < len(blocks); i++ {
		cur, prev := blocks[i], blocks[i-1]

		h, err := cur.ComputeHash()
		if err != nil || h != cur.Hash {
			return Validation{Error: fmt.Sprintf("Hash mismatch at block %d", i)}
		}
		if cur.PreviousHash != prev.Hash {
			return Validation{Error: fmt.Sprintf("Previous hash mismatch at block %d", i)}
		}
	}
	return Validation{Valid: true}
}

// Validate checks the live chain.
func (c *Chain) Validate() Validation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Validate(c.blocks)
}
