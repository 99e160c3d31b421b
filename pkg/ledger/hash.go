package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"modelmine/internal/model"
	"modelmine/pkg/constants"
)

// CanonicalJSON encodes an entry with fixed field order and sorted map keys.
func CanonicalJSON(entry model.LedgerEntry) ([]byte, error) {
	if entry.Result == nil {
		entry.Result = map[string]interface{}{}
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to encode ledger entry: %w", err)
	}
	return data, nil
}

// ComputeHash returns hex(sha256(prev || canonical(entry) || nonce)).
// A nil prevHash hashes as the genesis sentinel.
func ComputeHash(prevHash *string, entry model.LedgerEntry, nonce int64) (string, error) {
	data, err := CanonicalJSON(entry)
	if err != nil {
		return "", err
	}

	prev := constants.LedgerGenesisPrevHash
	if prevHash != nil {
		prev = *prevHash
	}

	h := sha256.New()
	h.Write([]byte(prev))
	h.Write(data)
	h.Write([]byte(strconv.FormatInt(nonce, 10)))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// NonceClock hands out unix-millisecond nonces that strictly increase,
// even when the wall clock stalls or steps backwards.
type NonceClock struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewNonceClock creates a clock reading now, time.Now when nil.
func NewNonceClock(now func() time.Time) *NonceClock {
	if now == nil {
		now = time.Now
	}
	return &NonceClock{now: now}
}

// Next returns the next nonce.
func (c *NonceClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.now().UnixMilli()
	if n <= c.last {
		n = c.last + 1
	}
	c.last = n
	return n
}

// Observe raises the floor to a nonce already on the chain, so a restarted
// process never reuses a value.
func (c *NonceClock) Observe(nonce int64) {
	c.mu.Lock()
	if nonce > c.last {
		c.last = nonce
	}
	c.mu.Unlock()
}

// CheckLink verifies block against its predecessor (nil for genesis).
func CheckLink(prev, block *model.LedgerBlock) error {
	if prev == nil {
		if block.Height != 0 {
			return fmt.Errorf("first block has height %d", block.Height)
		}
		if block.PrevHash != nil {
			return fmt.Errorf("genesis block has prevHash %s", *block.PrevHash)
		}
	} else {
		if block.Height != prev.Height+1 {
			return fmt.Errorf("height %d follows %d", block.Height, prev.Height)
		}
		if block.PrevHash == nil || *block.PrevHash != prev.Hash {
			return fmt.Errorf("prevHash does not match hash of block %d", prev.Height)
		}
	}

	want, err := ComputeHash(block.PrevHash, block.Data, block.Nonce)
	if err != nil {
		return err
	}
	if want != block.Hash {
		return fmt.Errorf("stored hash does not match recomputed hash")
	}
	return nil
}

// Verifier walks a chain in ascending height order and records the first break.
type Verifier struct {
	prev   *model.LedgerBlock
	report model.ChainReport
	broken bool
}

// NewVerifier creates a verifier positioned before genesis.
func NewVerifier() *Verifier {
	return &Verifier{report: model.ChainReport{Valid: true}}
}

// Add checks the next block. It returns false once the chain is broken.
func (v *Verifier) Add(block *model.LedgerBlock) bool {
	if v.broken {
		return false
	}
	if err := CheckLink(v.prev, block); err != nil {
		height := block.Height
		v.broken = true
		v.report.Valid = false
		v.report.BrokenHeight = &height
		v.report.Reason = err.Error()
		return false
	}
	v.prev = block
	v.report.Blocks++
	return true
}

// Report returns the verification outcome so far.
func (v *Verifier) Report() model.ChainReport {
	return v.report
}

// Verify checks a complete chain given in ascending height order.
func Verify(blocks []*model.LedgerBlock) model.ChainReport {
	v := NewVerifier()
	for _, b := range blocks {
		if !v.Add(b) {
			break
		}
	}
	return v.Report()
}
