package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exam-portal/internal/config"
	"github.com/stemsi/exam-portal/internal/handler"
	"github.com/stemsi/exam-portal/internal/middleware"
	"github.com/stemsi/exam-portal/internal/response"
	"github.com/stemsi/exam-portal/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth       *handler.AuthHandler
	Portal     *handler.PortalHandler
	Admin      *handler.AdminHandler
	Exam       *handler.ExamHandler
	Credential *handler.CredentialHandler
	File       *handler.FileHandler
	Dashboard  *handler.DashboardHandler
	Monitor    *handler.MonitorHandler
}

// Material downloads are already compressed formats.
var brotliSkip = []string{"/api/v1/exam/files/", "/api/v1/admin/files/"}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	apiLimiter *middleware.RateLimiter,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		// Invalid entries fall back to trusting nobody.
		_ = router.SetTrustedProxies(nil)
	}
	router.MaxMultipartMemory = 8 << 20

	// ─── CORS ──────────────────────────────────────────────────────────
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
		corsConfig.AllowCredentials = true
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Retry-After"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.Brotli(brotliSkip...))

	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(apiLimiter.Middleware(), middleware.NoStore())
	{
		auth.POST("/login", handlers.Auth.Login)
		auth.POST("/admin/login", handlers.Auth.AdminLogin)

		examinee := auth.Group("")
		examinee.Use(middleware.RequireExaminee(authService))
		examinee.POST("/logout", handlers.Auth.Logout)
		examinee.GET("/me", handlers.Auth.Me)

		admin := auth.Group("/admin")
		admin.Use(middleware.RequireAdmin(authService))
		admin.POST("/logout", handlers.Auth.Logout)
		admin.GET("/me", handlers.Auth.AdminMe)
	}

	// ─── 2. Examinee Group ─────────────────────────────────────────────
	examAPI := router.Group("/api/v1/exam")
	examAPI.Use(middleware.RequireExaminee(authService))
	{
		examAPI.GET("/data", middleware.NoStore(), handlers.Portal.GetExamData)
		examAPI.GET("/files/:id", middleware.PrivateCache(300), handlers.Portal.GetFile)
	}

	// ─── 3. Admin Group ────────────────────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdmin(authService), middleware.NoStore())
	{
		adminAPI.GET("/dashboard", handlers.Dashboard.GetDashboardData)
		adminAPI.POST("/change-password", handlers.Admin.ChangePassword)

		exams := adminAPI.Group("/exams")
		{
			exams.GET("", handlers.Exam.ListExams)
			exams.POST("", handlers.Exam.CreateExam)
			exams.PUT("/:id", handlers.Exam.UpdateExam)
			exams.DELETE("/:id", handlers.Exam.DeleteExam)
			exams.POST("/:id/activate", handlers.Exam.ActivateExam)
			exams.POST("/:id/deactivate", handlers.Exam.DeactivateExam)
			exams.GET("/:id/credentials", handlers.Credential.ListCredentials)
			exams.DELETE("/:id/credentials", handlers.Credential.DeleteExamCredentials)
			exams.GET("/:id/files", handlers.File.ListFiles)
		}

		creds := adminAPI.Group("/credentials")
		{
			creds.POST("/generate", handlers.Credential.GenerateCredentials)
			creds.POST("", handlers.Credential.CreateCredential)
			creds.PUT("/:id", handlers.Credential.UpdateCredential)
			creds.POST("/:id/reset", handlers.Credential.ResetCredential)
			creds.DELETE("/:id", handlers.Credential.DeleteCredential)
		}

		files := adminAPI.Group("/files")
		{
			files.POST("/upload", handlers.File.UploadFile)
			files.GET("/:id", handlers.File.ServeFile)
			files.PUT("/:id", handlers.File.UpdateFile)
			files.DELETE("/:id", handlers.File.DeleteFile)
		}
	}

	// ─── 4. WebSocket Group ────────────────────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireAdmin(authService))
	{
		ws.GET("/admin/exams/:id/monitor", handlers.Monitor.StreamExam)
	}

	return router
}
