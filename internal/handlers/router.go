package handlers

import (
	"net/http"

	"github.com/SAP-F-2025/exam-session-service/internal/services"
	"github.com/SAP-F-2025/exam-session-service/internal/utils"
	"github.com/gin-gonic/gin"
)

type HandlerManager struct {
	testSessionHandler *TestSessionHandler
	recordHandler      *RecordHandler
	maintenanceHandler *MaintenanceHandler
	authenticator      *Authenticator
	cronSecret         string
}

type RouterConfig struct {
	JWTSecret     string
	CronSecret    string
	RetentionDays int
}

func NewHandlerManager(
	sessionService services.TestSessionService,
	recordService services.RecordService,
	maintenanceService services.MaintenanceService,
	cfg RouterConfig,
	logger utils.Logger,
) *HandlerManager {
	return &HandlerManager{
		testSessionHandler: NewTestSessionHandler(sessionService, logger),
		recordHandler:      NewRecordHandler(recordService, logger),
		maintenanceHandler: NewMaintenanceHandler(maintenanceService, cfg.RetentionDays, logger),
		authenticator:      NewAuthenticator(cfg.JWTSecret),
		cronSecret:         cfg.CronSecret,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.GET("/health", HealthCheck)

	v1 := router.Group("/api/v1")

	// Cron routes authenticate with a shared secret instead of a user token
	cron := v1.Group("/cron", CronSecretMiddleware(hm.cronSecret))
	{
		cron.POST("/finalize-expired", hm.maintenanceHandler.FinalizeExpired)
		cron.POST("/retention", hm.maintenanceHandler.Retention)
		cron.POST("/cleanup-duplicates", hm.maintenanceHandler.CleanupDuplicates)
	}

	authed := v1.Group("", hm.authenticator.Middleware())

	tests := authed.Group("/tests")
	{
		tests.POST("/prepare", hm.testSessionHandler.PrepareTest)
		tests.POST("/start", hm.testSessionHandler.StartTest)
		tests.POST("/force-cleanup", hm.testSessionHandler.ForceCleanup)

		tests.GET("/:id", hm.testSessionHandler.GetTest)
		tests.POST("/:id/save-answers", hm.testSessionHandler.SaveAnswers)
		tests.POST("/:id/beacon-save", hm.testSessionHandler.BeaconSave)
		tests.POST("/:id/submit", hm.testSessionHandler.SubmitTest)
		tests.GET("/:id/restore", hm.testSessionHandler.RestoreTest)
		tests.POST("/:id/cleanup", hm.testSessionHandler.CleanupTest)
		tests.GET("/:id/package-status", hm.testSessionHandler.PackageStatus)
	}

	student := authed.Group("/student")
	{
		student.GET("/active-session", hm.testSessionHandler.ActiveSession)
		student.GET("/test-records", hm.recordHandler.ListTestRecords)
		student.GET("/test-records/export", hm.recordHandler.ExportTestRecords)
		student.GET("/dashboard/summary", hm.recordHandler.DashboardSummary)
	}

	tutor := authed.Group("/tutor", RequireReviewer())
	{
		tutor.PUT("/test-records/:id/feedback", hm.recordHandler.SetFeedback)
	}
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "exam-session-service",
	})
}
