package ledger

import "time"

// Dispatch statuses of a transaction record. On-chain confirmation is not
// tracked.
const (
	StatusSubmitted        = "submitted"
	StatusConfirmedUnknown = "confirmed-unknown"
)

// Key identifies one recipient on one network.
type Key struct {
	NetworkID string
	Recipient string
}

// String is the storage key, "<network>#<recipient>".
func (k Key) String() string { return k.NetworkID + "#" + k.Recipient }

// TransactionRecord is one funding transaction sent to a recipient.
type TransactionRecord struct {
	TxCID       string    `dynamodbav:"tx_cid" json:"tx_cid"`
	NetworkID   string    `dynamodbav:"network_id" json:"network_id"`
	Recipient   string    `dynamodbav:"recipient_address" json:"recipient_address"`
	Amount      string    `dynamodbav:"amount" json:"amount"` // attoFIL
	SubmittedAt time.Time `dynamodbav:"submitted_at" json:"submitted_at"`
	Status      string    `dynamodbav:"dispatch_status" json:"dispatch_status"`
}

// DripRecord is the durable cooldown and lease state of a Key.
type DripRecord struct {
	DripKey         string              `dynamodbav:"drip_key"` // PK
	NetworkID       string              `dynamodbav:"network_id"`
	Recipient       string              `dynamodbav:"recipient_address"`
	LastDripAt      time.Time           `dynamodbav:"last_drip_at"`
	CooldownSeconds int64               `dynamodbav:"cooldown_seconds"`
	Pending         bool                `dynamodbav:"pending"`
	LeaseID         string              `dynamodbav:"lease_id,omitempty"`
	LeaseAcquiredAt time.Time           `dynamodbav:"lease_acquired_at"`
	Version         int64               `dynamodbav:"version"`
	Transactions    []TransactionRecord `dynamodbav:"transactions,omitempty"` // oldest first
	UpdatedAt       time.Time           `dynamodbav:"updated_at"`
}

// NewRecord returns an empty record for k.
func NewRecord(k Key) DripRecord {
	return DripRecord{DripKey: k.String(), NetworkID: k.NetworkID, Recipient: k.Recipient}
}

// Key returns the record's key.
func (r DripRecord) Key() Key {
	return Key{NetworkID: r.NetworkID, Recipient: r.Recipient}
}

// HasDripped reports whether a drip was ever recorded.
func (r DripRecord) HasDripped() bool { return !r.LastDripAt.IsZero() }

// AppendTransaction adds tx and evicts the oldest entries beyond keep.
func (r *DripRecord) AppendTransaction(tx TransactionRecord, keep int) {
	r.Transactions = append(r.Transactions, tx)
	if keep > 0 && len(r.Transactions) > keep {
		r.Transactions = append([]TransactionRecord(nil), r.Transactions[len(r.Transactions)-keep:]...)
	}
}

// Recent returns up to limit transactions, newest first. The result is
// never nil.
func (r DripRecord) Recent(limit int) []TransactionRecord {
	n := len(r.Transactions)
	if limit > n {
		limit = n
	}
	out := make([]TransactionRecord, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.Transactions[i])
	}
	return out
}
