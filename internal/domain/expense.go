package domain

import (
	"time"

	"github.com/google/uuid"
)

type ExpenseStatus string

const (
	ExpenseStatusPending    ExpenseStatus = "pending"
	ExpenseStatusApproved   ExpenseStatus = "approved"
	ExpenseStatusProcessing ExpenseStatus = "processing"
	ExpenseStatusPaid       ExpenseStatus = "paid"
	ExpenseStatusRejected   ExpenseStatus = "rejected"
)

// Expense is a payout request against a collective's balance. Expenses in
// processing status earmark funds awaiting external payout confirmation;
// the balance engine subtracts them as blocked funds.
type Expense struct {
	ID               uuid.UUID
	CollectiveID     uuid.UUID
	FromCollectiveID uuid.UUID

	Amount   int64
	Currency Currency

	Status      ExpenseStatus
	Description string

	CreatedAt time.Time
	UpdatedAt time.Time
}
