package services

import (
	"context"
	"fmt"

	"github.com/SAP-F-2025/exam-session-service/internal/grading"
	"github.com/SAP-F-2025/exam-session-service/internal/models"
	"github.com/SAP-F-2025/exam-session-service/internal/repositories"
)

// Prepare builds a test plan: one random published package for every
// requested category not yet completed in the record.
func (s *testSessionService) Prepare(ctx context.Context, studentID string, req *PrepareTestRequest) (*PrepareTestResponse, error) {
	s.logger.Info("Preparing test",
		"student_id", studentID,
		"categories", len(req.CategoryIDs),
		"create_new_record", req.CreateNewRecord)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if len(req.CategoryIDs) == 0 && !req.CreateNewRecord {
		return nil, ValidationErrors{*NewValidationError("category_ids", "is required", nil)}
	}

	var record *models.TestRecord
	if !req.CreateNewRecord {
		var err error
		if record, err = s.prepareRecord(ctx, studentID, req.RecordID); err != nil {
			return nil, err
		}
	}

	completed := map[string]bool{}
	if record != nil {
		attempts, err := s.repo.Attempt().ListByRecord(ctx, nil, record.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list record attempts: %w", err)
		}
		for _, a := range attempts {
			if a.IsCompleted() && a.Package != nil {
				completed[a.Package.CategoryID] = true
			}
		}
	}

	categoryIDs, err := s.requestedCategories(ctx, req.CategoryIDs)
	if err != nil {
		return nil, err
	}

	resp := &PrepareTestResponse{
		Categories:            []models.PreparedCategory{},
		UnavailableCategories: []UnavailableCategory{},
	}
	for _, categoryID := range categoryIDs {
		category, err := s.repo.Package().GetCategory(ctx, nil, categoryID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				s.logger.Debug("Skipping unknown category", "category_id", categoryID)
				continue
			}
			return nil, fmt.Errorf("failed to load category: %w", err)
		}
		if completed[categoryID] {
			continue
		}

		packages, err := s.repo.Package().ListPublishedByCategory(ctx, nil, categoryID)
		if err != nil {
			return nil, fmt.Errorf("failed to list packages: %w", err)
		}
		if len(packages) == 0 {
			resp.UnavailableCategories = append(resp.UnavailableCategories, UnavailableCategory{
				CategoryID:   categoryID,
				CategoryName: category.Name,
				Reason:       ReasonNoPublishedPackages,
			})
			continue
		}

		chosen := packages[s.pick(len(packages))]
		content, err := s.loadContent(ctx, chosen.ID)
		if err != nil {
			return nil, err
		}
		resp.Categories = append(resp.Categories, models.PreparedCategory{
			CategoryID:      categoryID,
			CategoryName:    category.Name,
			PackageID:       chosen.ID,
			TotalQuestions:  grading.CountQuestions(content.Items()),
			DurationMinutes: chosen.DurationMinutes,
		})
	}

	if len(resp.Categories) == 0 {
		return nil, &NoCategoriesAvailableError{Unavailable: resp.UnavailableCategories}
	}

	if req.CreateNewRecord {
		record = &models.TestRecord{StudentID: studentID}
		if err := s.repo.Record().Create(ctx, nil, record); err != nil {
			return nil, fmt.Errorf("failed to create record: %w", err)
		}
	}
	if record != nil {
		resp.RecordID = &record.ID
	}
	return resp, nil
}

// prepareRecord returns the requested record when it belongs to the student,
// otherwise the latest one. nil means the student has no record yet.
func (s *testSessionService) prepareRecord(ctx context.Context, studentID string, recordID *string) (*models.TestRecord, error) {
	if recordID != nil && *recordID != "" {
		record, err := s.repo.Record().GetForStudent(ctx, nil, *recordID, studentID)
		if err == nil {
			return record, nil
		}
		if !repositories.IsNotFoundError(err) {
			return nil, fmt.Errorf("failed to load record: %w", err)
		}
	}

	record, err := s.repo.Record().GetLatest(ctx, nil, studentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load latest record: %w", err)
	}
	return record, nil
}

// requestedCategories dedupes the request; an empty request means every
// category that has a published package.
func (s *testSessionService) requestedCategories(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		categories, err := s.repo.Package().ListCategoriesWithPublished(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to list categories: %w", err)
		}
		for _, c := range categories {
			ids = append(ids, c.ID)
		}
		return ids, nil
	}

	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}
