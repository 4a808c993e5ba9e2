package admin

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Action names recorded in the audit log.
type Action string

const (
	ActionBalanceAdjustment Action = "balance_adjustment"
	ActionBanUser           Action = "ban_user"
	ActionUnbanUser         Action = "unban_user"
)

// AuditLog is one admin action record. Every balance correction and ban
// flip writes exactly one entry.
type AuditLog struct {
	ID           uuid.UUID `db:"id" json:"id"`
	AdminID      int64     `db:"admin_id" json:"admin_id"`
	Action       Action    `db:"action" json:"action"`
	TargetUserID *int64    `db:"target_user_id" json:"target_user_id,omitempty"`
	Details      string    `db:"details" json:"details"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

func newAuditLog(adminID int64, action Action, targetUserID int64, details string) *AuditLog {
	l := &AuditLog{
		ID:        uuid.New(),
		AdminID:   adminID,
		Action:    action,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}
	if targetUserID != 0 {
		l.TargetUserID = &targetUserID
	}
	return l
}

// AdjustParams describes a signed balance correction.
type AdjustParams struct {
	AdminID      int64
	TargetUserID int64
	CIDDelta     int64
	USDDelta     decimal.Decimal
	Reason       string
}
