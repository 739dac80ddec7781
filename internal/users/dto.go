package users

import (
	"strings"

	"github.com/angelmondragon/learnpay-backend/pkg/db/models"
)

// CreateUserDTO holds the data required by the repo to persist a new user.
type CreateUserDTO struct {
	ClerkID          string
	StripeCustomerID string
}

// ToModel converts the DTO into a GORM model.
func (dto CreateUserDTO) ToModel() *models.User {
	return &models.User{
		ClerkID:          strings.TrimSpace(dto.ClerkID),
		StripeCustomerID: strings.TrimSpace(dto.StripeCustomerID),
	}
}
