package main

import (
	"testmgmt-service/internal/audit"
	"testmgmt-service/internal/authz"
	"testmgmt-service/internal/handler"
	"testmgmt-service/internal/middleware"
	"testmgmt-service/internal/model"
	"testmgmt-service/pkg/config"
	"testmgmt-service/pkg/database"
	"testmgmt-service/pkg/jwtutil"
	"testmgmt-service/pkg/logger"
	"testmgmt-service/prometheus"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"

	"testmgmt-service/internal/apperror"

	"go.uber.org/zap"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	if err := logger.InitLogger(cfg); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	log := logger.GetLogger()
	log.Info("Starting test management service...", zap.String("environment", cfg.Server.Env))

	// Initialize database and run migrations
	if _, err := database.InitDB(&cfg.DB); err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	if err := database.MigrateModels(model.All()...); err != nil {
		log.Fatal("Failed to migrate database models", zap.Error(err))
	}
	if err := authz.SeedPermissions(database.GetDB()); err != nil {
		log.Fatal("Failed to seed permissions", zap.Error(err))
	}
	log.Info("Database connection established and migrations completed")

	// Initialize JWT signing
	jwtutil.Initialize(&cfg.JWT)

	// Initialize Prometheus metrics
	prometheus.InitMetrics(cfg)
	log.Info("Prometheus metrics initialized")

	// Wire the audit recorder into the handlers
	handler.Init(audit.NewRecorder(database.GetDB, log))

	// Initialize Echo framework
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = apperror.HTTPErrorHandler(log)

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware())
	e.Use(middleware.MetricsMiddleware)

	// Public routes - no authentication required
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", handler.MetricsHandler)

	api := e.Group("/api")

	// Auth routes sit inside /api but stay exempt from tenant verification
	api.POST("/auth/login", handler.Login, middleware.AuthMiddleware, middleware.TenantVerification(database.GetDB))
	api.POST("/auth/register", handler.Register)
	api.POST("/auth/confirm-email", handler.ConfirmEmail)

	// Everything below requires a valid token and a verified tenant
	protected := api.Group("", middleware.AuthMiddleware, middleware.TenantVerification(database.GetDB))

	// Tenant administration
	protected.GET("/tenant", handler.GetTenant)
	protected.PUT("/tenant", handler.UpdateTenant)
	protected.GET("/tenant/address", handler.GetTenantAddress)
	protected.PUT("/tenant/address", handler.UpsertTenantAddress)

	// Users and roles
	protected.GET("/users", handler.ListUsers)
	protected.GET("/users/:id", handler.GetUser)
	protected.DELETE("/users/:id", handler.DeactivateUser)
	protected.POST("/users/:id/roles", handler.AssignRole)
	protected.DELETE("/roles/:id", handler.RevokeRole)

	// Projects and membership
	protected.POST("/projects", handler.CreateProject)
	protected.GET("/projects", handler.ListProjects)
	protected.GET("/projects/:id", handler.GetProject)
	protected.PUT("/projects/:id", handler.UpdateProject)
	protected.DELETE("/projects/:id", handler.DeleteProject)
	protected.POST("/projects/:id/members", handler.AddProjectMember)
	protected.GET("/projects/:id/members", handler.ListProjectMembers)
	protected.PUT("/projects/:id/members/:member_id", handler.UpdateProjectMember)
	protected.DELETE("/projects/:id/members/:member_id", handler.RemoveProjectMember)

	// Suites and folders
	protected.POST("/suites", handler.CreateSuite)
	protected.GET("/suites/:id", handler.GetSuite)
	protected.GET("/projects/:project_id/suites", handler.ListSuites)
	protected.PUT("/suites/:id", handler.UpdateSuite)
	protected.DELETE("/suites/:id", handler.DeleteSuite)
	protected.POST("/folders", handler.CreateFolder)
	protected.GET("/projects/:project_id/folders", handler.ListFolders)
	protected.PUT("/folders/:id", handler.UpdateFolder)
	protected.DELETE("/folders/:id", handler.DeleteFolder)

	// Test cases
	protected.POST("/cases", handler.CreateCase)
	protected.GET("/cases/:id", handler.GetCase)
	protected.GET("/suites/:suite_id/cases", handler.ListCases)
	protected.PUT("/cases/:id", handler.UpdateCase)
	protected.DELETE("/cases/:id", handler.DeleteCase)

	// Test runs and results
	protected.POST("/runs", handler.CreateRun)
	protected.GET("/runs/:id", handler.GetRun)
	protected.GET("/projects/:project_id/runs", handler.ListRuns)
	protected.PUT("/runs/:id", handler.UpdateRun)
	protected.POST("/runs/:id/start", handler.StartRun)
	protected.POST("/runs/:id/complete", handler.CompleteRun)
	protected.DELETE("/runs/:id", handler.DeleteRun)
	protected.GET("/runs/:run_id/results", handler.ListRunResults)
	protected.PUT("/results/:id", handler.RecordResult)

	// Defects
	protected.POST("/defects", handler.CreateDefect)
	protected.GET("/defects/:id", handler.GetDefect)
	protected.GET("/defects", handler.ListDefects)
	protected.PUT("/defects/:id", handler.UpdateDefect)
	protected.POST("/defects/:id/transition", handler.TransitionDefect)
	protected.GET("/defects/:id/history", handler.ListDefectHistory)

	// Requirements and traceability
	protected.POST("/requirements", handler.CreateRequirement)
	protected.GET("/requirements/:id", handler.GetRequirement)
	protected.GET("/projects/:project_id/requirements", handler.ListRequirements)
	protected.PUT("/requirements/:id", handler.UpdateRequirement)
	protected.DELETE("/requirements/:id", handler.DeleteRequirement)
	protected.POST("/requirements/:id/cases", handler.LinkRequirementCase)
	protected.DELETE("/requirements/:id/cases/:case_id", handler.UnlinkRequirementCase)
	protected.POST("/requirements/:id/suites", handler.LinkRequirementSuite)
	protected.DELETE("/requirements/:id/suites/:suite_id", handler.UnlinkRequirementSuite)
	protected.GET("/requirements/:id/links", handler.ListRequirementLinks)

	// Audit trail
	protected.GET("/audit-logs", handler.ListAuditLogs)

	// Start server
	port := cfg.Server.Port
	log.Info("Starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}
