package model

import (
	"time"

	"github.com/google/uuid"
)

// User is a back-office account (cashier, manager, admin). The authenticated
// identity feeds the ledgers' adjusted_by / actor fields.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Username     string    `gorm:"uniqueIndex;not null"`
	Name         string    `gorm:"not null"`
	PasswordHash string    `gorm:"not null"`
	Role         string    `gorm:"not null;default:'cashier'"` // cashier | manager | admin
	Active       bool      `gorm:"not null;default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
