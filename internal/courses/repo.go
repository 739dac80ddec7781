package courses

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/learnpay-backend/internal/repo"
	"github.com/angelmondragon/learnpay-backend/pkg/db/models"
)

// Repository reads the course catalog.
type Repository struct {
	repo.Base
}

// NewRepository constructs a courses repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// Create inserts a course. The catalog is managed elsewhere; this exists for seeding.
func (r *Repository) Create(ctx context.Context, course *models.Course) error {
	return r.DB(ctx).Create(course).Error
}

// FindByID loads a course by id.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Course, error) {
	var course models.Course
	if err := r.DB(ctx).First(&course, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &course, nil
}
