package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// ShareSample represents one persisted vault valuation bucket.
type ShareSample struct {
	Bucket      time.Time
	Vault       string
	SharePrice  decimal.Decimal
	BlockNumber *int64
	Status      string
	Error       *string
	CreatedAt   time.Time
}

// Sample status values.
const (
	SampleStatusComplete = "complete"
	SampleStatusRejected = "rejected"
	SampleStatusErrored  = "errored"
)

// OracleEvent is a persisted configuration change event, the audit trail of
// all admin mutations.
type OracleEvent struct {
	ID         int64
	Kind       string
	Asset      string
	Value      string
	Actor      string
	OccurredAt time.Time
}

// AlertRecord captures an emitted alert for de-duplication/auditing.
type AlertRecord struct {
	ID        int64
	Vault     string
	SampleTS  time.Time
	Reason    string
	Detail    string
	Channels  []string
	CreatedAt time.Time
}
