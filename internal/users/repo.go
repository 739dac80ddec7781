package users

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/learnpay-backend/internal/repo"
	"github.com/angelmondragon/learnpay-backend/pkg/db/models"
)

// Repository exposes user-related persistence operations.
type Repository struct {
	repo.Base
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// WithTx returns a repository bound to the supplied transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Bind(tx)}
}

// Create inserts a new user and returns the persisted model.
func (r *Repository) Create(ctx context.Context, dto CreateUserDTO) (*models.User, error) {
	user := dto.ToModel()
	if err := r.DB(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// FindByClerkID retrieves the user mapped to the identity-provider subject.
func (r *Repository) FindByClerkID(ctx context.Context, clerkID string) (*models.User, error) {
	var user models.User
	if err := r.DB(ctx).Where("clerk_id = ?", clerkID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByID loads a user by their UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.DB(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// SetCurrentSubscription points the user at the given subscription and
// reports how many rows were updated.
func (r *Repository) SetCurrentSubscription(ctx context.Context, userID, subscriptionID uuid.UUID) (int64, error) {
	res := r.DB(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("current_subscription_id", subscriptionID)
	return res.RowsAffected, res.Error
}

// ClearCurrentSubscription unsets the pointer on any user referencing the subscription.
func (r *Repository) ClearCurrentSubscription(ctx context.Context, subscriptionID uuid.UUID) (int64, error) {
	res := r.DB(ctx).
		Model(&models.User{}).
		Where("current_subscription_id = ?", subscriptionID).
		UpdateColumn("current_subscription_id", nil)
	return res.RowsAffected, res.Error
}
