package repositories

import (
	"context"

	"github.com/SAP-F-2025/exam-session-service/internal/models"
	"gorm.io/gorm"
)

// PackageRepository is read-only access to authored content. Categories,
// packages, pages and items are maintained by the tutor tooling.
type PackageRepository interface {
	GetCategory(ctx context.Context, tx *gorm.DB, id string) (*models.QuestionCategory, error)
	ListCategoriesWithPublished(ctx context.Context, tx *gorm.DB) ([]*models.QuestionCategory, error)

	// GetPackage loads the package row with its category, no pages.
	GetPackage(ctx context.Context, tx *gorm.DB, id string) (*models.QuestionPackage, error)
	// GetPackageContent loads pages and items in display order.
	GetPackageContent(ctx context.Context, tx *gorm.DB, id string) (*models.QuestionPackage, error)
	ListPublishedByCategory(ctx context.Context, tx *gorm.DB, categoryID string) ([]*models.QuestionPackage, error)
}
