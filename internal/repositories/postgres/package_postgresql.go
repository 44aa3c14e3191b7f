package postgres

import (
	"context"

	"github.com/SAP-F-2025/exam-session-service/internal/models"
	"github.com/SAP-F-2025/exam-session-service/internal/repositories"
	"gorm.io/gorm"
)

type PackagePostgreSQL struct {
	db *gorm.DB
}

func NewPackagePostgreSQL(db *gorm.DB) repositories.PackageRepository {
	return &PackagePostgreSQL{db: db}
}

func (p *PackagePostgreSQL) GetCategory(ctx context.Context, tx *gorm.DB, id string) (*models.QuestionCategory, error) {
	var category models.QuestionCategory
	if err := p.getDB(tx).WithContext(ctx).Where("id = ?", id).First(&category).Error; err != nil {
		return nil, repositories.Translate(err)
	}
	return &category, nil
}

func (p *PackagePostgreSQL) ListCategoriesWithPublished(ctx context.Context, tx *gorm.DB) ([]*models.QuestionCategory, error) {
	var categories []*models.QuestionCategory
	err := p.getDB(tx).WithContext(ctx).
		Where("EXISTS (SELECT 1 FROM question_packages qp WHERE qp.category_id = question_categories.id AND qp.status = ?)",
			models.PackagePublished).
		Order("name ASC").
		Find(&categories).Error
	if err != nil {
		return nil, err
	}
	return categories, nil
}

func (p *PackagePostgreSQL) GetPackage(ctx context.Context, tx *gorm.DB, id string) (*models.QuestionPackage, error) {
	var pkg models.QuestionPackage
	if err := p.getDB(tx).WithContext(ctx).
		Preload("Category").
		Where("id = ?", id).
		First(&pkg).Error; err != nil {
		return nil, repositories.Translate(err)
	}
	return &pkg, nil
}

func (p *PackagePostgreSQL) GetPackageContent(ctx context.Context, tx *gorm.DB, id string) (*models.QuestionPackage, error) {
	var pkg models.QuestionPackage
	if err := p.getDB(tx).WithContext(ctx).
		Preload("Category").
		Preload("Pages", func(db *gorm.DB) *gorm.DB {
			return db.Order("page_order ASC")
		}).
		Preload("Pages.Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("item_order ASC")
		}).
		Where("id = ?", id).
		First(&pkg).Error; err != nil {
		return nil, repositories.Translate(err)
	}
	return &pkg, nil
}

func (p *PackagePostgreSQL) ListPublishedByCategory(ctx context.Context, tx *gorm.DB, categoryID string) ([]*models.QuestionPackage, error) {
	var packages []*models.QuestionPackage
	if err := p.getDB(tx).WithContext(ctx).
		Where("category_id = ? AND status = ?", categoryID, models.PackagePublished).
		Order("created_at ASC").
		Find(&packages).Error; err != nil {
		return nil, err
	}
	return packages, nil
}

func (p *PackagePostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	return conn(p.db, tx)
}
