package consumption

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mohasbks/advanced-cid-bot/internal/domain/ledger"
)

// InstallationIDLength is the digit count of a Microsoft installation id:
// nine groups of seven digits.
const InstallationIDLength = 63

// Status is the request lifecycle state. Processing is the only
// non-terminal state.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusInvalidIID Status = "invalid_installation_id"
)

// Request is one attempt to exchange a CID unit for a confirmation id.
type Request struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	UserID         int64      `db:"user_id" json:"user_id"`
	InstallationID string     `db:"installation_id" json:"installation_id"`
	ConfirmationID *string    `db:"confirmation_id" json:"confirmation_id,omitempty"`
	Status         Status     `db:"status" json:"status"`
	CostCID        int64      `db:"cost_cid" json:"cost_cid"`
	ErrorMessage   *string    `db:"error_message" json:"error_message,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	CompletedAt    *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// Result is a settled request together with its ledger posting.
type Result struct {
	Request        *Request            `json:"request"`
	ConfirmationID string              `json:"confirmation_id"`
	Transaction    *ledger.Transaction `json:"transaction"`
}

// UserStats summarizes a user's consumption history.
type UserStats struct {
	CompletedRequests int64 `db:"completed_requests" json:"completed_requests"`
	FailedRequests    int64 `db:"failed_requests" json:"failed_requests"`
	TotalPurchased    int64 `db:"total_purchased" json:"total_purchased"`
	BalanceCID        int64 `db:"-" json:"balance_cid"`
}

// NormalizeInstallationID strips separators from keyboard or OCR input and
// checks the digit count. The cleaned digits are returned even when the id
// is rejected, so callers can record what they saw.
func NormalizeInstallationID(raw string) (string, error) {
	var b strings.Builder
	b.Grow(InstallationIDLength)
	for _, c := range raw {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	id := b.String()

	if len(id) != InstallationIDLength {
		return id, fmt.Errorf("%w: want %d digits, got %d", ErrInvalidInstallationID, InstallationIDLength, len(id))
	}
	if strings.HasPrefix(id, "000000") {
		return id, fmt.Errorf("%w: implausible leading zeros", ErrInvalidInstallationID)
	}
	return id, nil
}

// FormatInstallationID renders the dashed form shown in Office activation
// dialogs. Anything but a full-length id is returned untouched.
func FormatInstallationID(id string) string {
	if len(id) != InstallationIDLength {
		return id
	}
	groups := make([]string, 0, InstallationIDLength/7)
	for i := 0; i < len(id); i += 7 {
		end := i + 7
		if end > len(id) {
			end = len(id)
		}
		groups = append(groups, id[i:end])
	}
	return strings.Join(groups, "-")
}
