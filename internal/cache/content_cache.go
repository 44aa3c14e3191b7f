package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/exam-session-service/internal/models"
)

// PackageContentCache caches the pages and items of published packages for
// the play screen. Answer keys are not serialized, so cached copies must never
// be used for grading. Publication status is always checked against the
// database by the caller.
type PackageContentCache struct {
	store  CacheService
	ttl    time.Duration
	logger *slog.Logger
}

func NewPackageContentCache(store CacheService, ttl time.Duration, logger *slog.Logger) *PackageContentCache {
	return &PackageContentCache{
		store:  store,
		ttl:    ttl,
		logger: logger,
	}
}

func contentKey(packageID string) string {
	return fmt.Sprintf("package:content:%s", packageID)
}

func (c *PackageContentCache) GetOrLoad(ctx context.Context, packageID string, load func() (*models.QuestionPackage, error)) (*models.QuestionPackage, error) {
	var pkg models.QuestionPackage
	err := c.store.CacheOrExecute(ctx, contentKey(packageID), &pkg, c.ttl, func() (interface{}, error) {
		return load()
	})
	if err != nil {
		return nil, err
	}
	return &pkg, nil
}

func (c *PackageContentCache) Invalidate(ctx context.Context, packageID string) {
	if err := c.store.Delete(ctx, contentKey(packageID)); err != nil {
		c.logger.Warn("Failed to invalidate package content", "package_id", packageID, "error", err)
	}
}
