// Package ledger defines the external key-value ledger contract and provides
// in-memory, SQLite and Redis backed implementations of it.
package ledger

import (
	"context"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
)

// Reader is the read-only ledger handle. IsAvailable must be checked before
// reads. GetData returns empty bytes for an unknown key.
type Reader interface {
	IsAvailable(ctx context.Context) bool
	GetData(ctx context.Context, key string) ([]byte, error)
}

// Writer is the authenticated, write-capable ledger handle.
type Writer interface {
	SetData(ctx context.Context, key string, value []byte) (*Receipt, error)
}

// Receipt acknowledges a write.
type Receipt struct {
	TxHash string    `json:"tx_hash"`
	Key    string    `json:"key"`
	From   string    `json:"from"`
	At     time.Time `json:"at"`
}

// Key names used by the record store.
const (
	IndexKey     = "record_keys"
	RecordPrefix = "record_"
)

// RecordKey returns the ledger key of the record blob for id.
func RecordKey(id string) string {
	return RecordPrefix + id
}

func newReceipt(from, key string, value []byte, at time.Time) *Receipt {
	h := crypto.Keccak256Hash(
		[]byte(from), []byte{0},
		[]byte(key), []byte{0},
		value, []byte{0},
		[]byte(strconv.FormatInt(at.UnixNano(), 10)),
	)
	return &Receipt{TxHash: h.Hex(), Key: key, From: from, At: at}
}
