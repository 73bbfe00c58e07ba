package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	TypeNewCharge       = "new_charge"
	TypePaymentApproved = "payment_approved"
	TypePaymentPartial  = "payment_partial"
	TypePaymentRejected = "payment_rejected"
)

// Notification is one row of the in-app inbox.
type Notification struct {
	ID        snowflake.ID      `gorm:"column:id;primaryKey" json:"id"`
	UserID    string            `gorm:"column:user_id" json:"user_id"`
	Title     string            `gorm:"column:title" json:"title"`
	Message   string            `gorm:"column:message" json:"message"`
	Type      string            `gorm:"column:type" json:"type"`
	Metadata  datatypes.JSONMap `gorm:"column:metadata" json:"metadata,omitempty"`
	IsRead    bool              `gorm:"column:is_read" json:"is_read"`
	CreatedAt time.Time         `gorm:"column:created_at" json:"created_at"`
}

func (Notification) TableName() string { return "notifications" }

// Event is raised by a ledger operation and published only after it commits.
type Event struct {
	UserID   string
	Title    string
	Message  string
	Type     string
	Metadata map[string]any
}

// Sink stores notifications; failures are reported but never fatal to the caller.
type Sink interface {
	Insert(ctx context.Context, db *gorm.DB, n *Notification) error
}

// RoleResolver tells the publisher who is an admin.
type RoleResolver interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// Publisher delivers post-commit events. It never returns an error.
type Publisher interface {
	Publish(ctx context.Context, events ...Event)
}
