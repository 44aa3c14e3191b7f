package services

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/SAP-F-2025/exam-session-service/internal/models"
)

const (
	sessionTokenBytes = 32
	pageCounterPrefix = "page:"
)

// newSessionToken returns an opaque token. A new one is issued on every
// start and resume so a stale device loses write access.
func newSessionToken() (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func tokenMatches(session *models.ActiveSession, token string) bool {
	return subtle.ConstantTimeCompare([]byte(session.SessionToken), []byte(token)) == 1
}

// checkToken accepts an empty token from the authenticated owner and rejects
// any other mismatch.
func checkToken(session *models.ActiveSession, token string) error {
	if token == "" || tokenMatches(session, token) {
		return nil
	}
	return ErrInvalidSessionToken
}

func sessionDeadline(startedAt time.Time, durationMinutes int) time.Time {
	return startedAt.Add(time.Duration(durationMinutes) * time.Minute)
}

// mergeAudioCounts combines play counters with max() and caps every value.
func mergeAudioCounts(dst map[string]int, src map[string]int) map[string]int {
	if dst == nil {
		dst = make(map[string]int, len(src))
	}
	for key, n := range src {
		if key == "" {
			continue
		}
		n = models.CapAudioPlays(n)
		if n > dst[key] {
			dst[key] = n
		}
	}
	return dst
}

func isPageCounter(key string) bool {
	return strings.HasPrefix(key, pageCounterPrefix)
}

// mergeMetadata applies one save onto the stored session metadata. Page
// counters only grow; unknown keys are kept.
func mergeMetadata(meta models.SessionMetadata, req *SaveProgressRequest, at time.Time) error {
	if req.CurrentPageIndex != nil {
		if err := meta.Set(models.MetaCurrentPageIndex, *req.CurrentPageIndex); err != nil {
			return err
		}
	}
	if len(req.AudioCounts) > 0 {
		counts := mergeAudioCounts(meta.AudioCounts(), req.AudioCounts)
		if err := meta.Set(models.MetaAudioCounts, counts); err != nil {
			return err
		}
	}
	if req.Meta != nil {
		if err := meta.Set(models.MetaTestPlan, req.Meta); err != nil {
			return err
		}
	}
	return meta.Set(models.MetaLastSyncAt, at)
}

// buildTestPlan returns the plan stored with a new session: the client plan
// when given, otherwise one reconstructed from the prepared categories.
func buildTestPlan(req *StartTestRequest, recordID, categoryName string) *models.TestPlan {
	if req.TestMeta != nil {
		plan := *req.TestMeta
		if plan.RecordID == "" {
			plan.RecordID = recordID
		}
		plan.CurrentCategoryID = req.CategoryID
		return &plan
	}

	plan := &models.TestPlan{
		RecordID:          recordID,
		CategoryNames:     map[string]string{},
		Mode:              models.PlanModeSingle,
		CurrentCategoryID: req.CategoryID,
	}
	if len(req.PreparedCategories) == 0 {
		plan.CategoryIDs = []string{req.CategoryID}
		plan.CategoryNames[req.CategoryID] = categoryName
		return plan
	}

	for _, pc := range req.PreparedCategories {
		plan.CategoryIDs = append(plan.CategoryIDs, pc.CategoryID)
		plan.CategoryNames[pc.CategoryID] = pc.CategoryName
	}
	plan.PreparedCategories = req.PreparedCategories
	if len(plan.CategoryIDs) > 1 {
		plan.Mode = models.PlanModeMultiple
	}
	return plan
}
