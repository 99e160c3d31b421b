package model

import "time"

// LedgerBlock is one immutable, hash-linked entry of the audit ledger.
type LedgerBlock struct {
	ID        string      `json:"id"`
	Height    int64       `json:"height"`
	PrevHash  *string     `json:"prevHash"`
	Data      LedgerEntry `json:"data"`
	Nonce     int64       `json:"nonce"`
	Hash      string      `json:"hash"`
	Timestamp time.Time   `json:"timestamp"`
}

// LedgerEntry is the hashed payload of a block. Field order is the canonical
// encoding order.
type LedgerEntry struct {
	JobID     string                 `json:"jobId"`
	Result    map[string]interface{} `json:"result"`
	Timestamp string                 `json:"timestamp"`
}

// ChainReport is the outcome of an offline chain verification.
type ChainReport struct {
	Valid        bool   `json:"valid"`
	Blocks       int64  `json:"blocks"`
	BrokenHeight *int64 `json:"brokenHeight,omitempty"`
	Reason       string `json:"reason,omitempty"`
}
