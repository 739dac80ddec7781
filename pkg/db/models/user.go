package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User maps an identity-provider subject to its payment customer and active plan.
// Rows are provisioned by the identity sync and only the subscription pointer is
// written by this service.
type User struct {
	ID                    uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ClerkID               string     `gorm:"column:clerk_id;not null;uniqueIndex"`
	StripeCustomerID      string     `gorm:"column:stripe_customer_id;not null"`
	CurrentSubscriptionID *uuid.UUID `gorm:"column:current_subscription_id;type:uuid;index"`
	CreatedAt             time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate assigns an id when the database does not generate one.
func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
