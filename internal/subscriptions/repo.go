package subscriptions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/learnpay-backend/internal/repo"
	"github.com/angelmondragon/learnpay-backend/pkg/db/models"
	"github.com/angelmondragon/learnpay-backend/pkg/enums"
)

// Repository handles subscription persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	FindByStripeID(ctx context.Context, stripeSubscriptionID string, limit int) ([]models.Subscription, error)
	Create(ctx context.Context, subscription *models.Subscription) error
	Patch(ctx context.Context, id uuid.UUID, fields map[string]any) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteUnreferenced(ctx context.Context, statuses []enums.SubscriptionStatus, updatedBefore time.Time, limit int) (int64, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns a subscription repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Bind(tx)}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.DB(ctx).First(&sub, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repository) FindByStripeID(ctx context.Context, stripeSubscriptionID string, limit int) ([]models.Subscription, error) {
	var subs []models.Subscription
	query := r.DB(ctx).Where("stripe_subscription_id = ?", stripeSubscriptionID).Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) Create(ctx context.Context, subscription *models.Subscription) error {
	return r.DB(ctx).Create(subscription).Error
}

func (r *repository) Patch(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return r.DB(ctx).
		Model(&models.Subscription{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.DB(ctx).Where("id = ?", id).Delete(&models.Subscription{}).Error
}

// DeleteUnreferenced removes rows in the given statuses that no user points at
// and that have not changed since updatedBefore.
func (r *repository) DeleteUnreferenced(ctx context.Context, statuses []enums.SubscriptionStatus, updatedBefore time.Time, limit int) (int64, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	if limit <= 0 {
		limit = 500
	}
	raw := make([]string, 0, len(statuses))
	for _, status := range statuses {
		raw = append(raw, status.String())
	}
	db := r.DB(ctx)
	candidates := db.
		Model(&models.Subscription{}).
		Select("subscriptions.id").
		Where("subscriptions.status IN ?", raw).
		Where("subscriptions.updated_at < ?", updatedBefore).
		Where("NOT EXISTS (?)", db.Model(&models.User{}).
			Select("1").
			Where("users.current_subscription_id = subscriptions.id")).
		Limit(limit)

	res := db.Where("id IN (?)", candidates).Delete(&models.Subscription{})
	return res.RowsAffected, res.Error
}
