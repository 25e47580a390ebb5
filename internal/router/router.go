package router

import (
	"clinicpos/internal/config"
	"clinicpos/internal/handler"
	"clinicpos/internal/infra"
	"clinicpos/internal/middleware"
	"clinicpos/internal/model"
	"clinicpos/internal/repository"
	"clinicpos/internal/service"
	"clinicpos/internal/worker"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Services groups the business services behind the HTTP surface.
type Services struct {
	CashRegister service.CashRegisterService
	Payments     service.PaymentService
	Refunds      service.RefundService
	Liquidations service.LiquidationService
}

// NewServices wires repositories, the redis lock and the async dispatcher
// into the services.
// Dependency graph: Service ← Repository ← DB/Redis
func NewServices(cfg *config.Config, db *gorm.DB, rdb *redis.Client, dispatcher *worker.Dispatcher) Services {
	deps := service.Deps{
		Tx:            repository.NewTransactor(db),
		Sessions:      repository.NewCashSessionRepository(db),
		Transactions:  repository.NewTransactionRepository(db),
		Requests:      repository.NewServiceRequestRepository(db),
		Professionals: repository.NewProfessionalRepository(db),
		Liquidations:  repository.NewLiquidationRepository(db),
		Idempotency:   repository.NewIdempotencyRepository(db),
		Audit:         dispatcher,
		Locker:        infra.NewRedisLocker(rdb, cfg.LockTTL),
		Clock:         service.SystemClock{},
	}
	return Services{
		CashRegister: service.NewCashRegisterService(deps),
		Payments:     service.NewPaymentService(deps),
		Refunds:      service.NewRefundService(deps),
		Liquidations: service.NewLiquidationService(deps, service.LiquidationOptions{
			RevertReasonMinLength: cfg.RevertReasonMinLength,
			Notifier:              dispatcher,
			Renderer:              infra.NewStatementPDF(cfg.ClinicName, cfg.StatementStoragePath),
			Exporter:              infra.NewReportXLSX(),
		}),
	}
}

// New returns a configured Gin engine serving svc.
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client, auditCB *infra.CircuitBreaker, svc Services) (*gin.Engine, error) {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	rate, err := middleware.NewLimiter(cfg.RateLimit, rdb)
	if err != nil {
		return nil, err
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RateLimit(rate))

	// ── Handlers ─────────────────────────────────────────────────────────────
	cashH := handler.NewCashRegisterHandler(svc.CashRegister)
	payH := handler.NewPaymentsHandler(svc.Payments, svc.Refunds)
	commH := handler.NewCommissionsHandler(svc.Liquidations)

	// ── Routes ───────────────────────────────────────────────────────────────

	// Public
	r.GET("/health", handler.Health(db, rdb, auditCB))

	v1 := r.Group("/v1", middleware.JWTAuth(cfg.JWTSecret, cfg.JWTIssuer))
	Register(v1, cashH, payH, commH)

	jobsH := handler.NewJobsHandler(rdb)
	v1.GET("/jobs/dead-letters", middleware.RequirePermission(model.CapManageCashRegister), jobsH.DeadLetters)

	// Swagger UI outside production
	if !cfg.IsProduction() {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	return r, nil
}

// Register mounts the authenticated API on v1. Permissions are declared per
// group; revert-payment additionally checks cash_register.manage in the
// service so every caller of the transition gets the same guard.
func Register(v1 *gin.RouterGroup, cashH *handler.CashRegisterHandler, payH *handler.PaymentsHandler, commH *handler.CommissionsHandler) {
	operate := middleware.RequirePermission(model.CapOperateCashRegister)
	manage := middleware.RequirePermission(model.CapManageCashRegister)

	cash := v1.Group("/cash-register")
	{
		cash.POST("/open", operate, cashH.Open)
		cash.POST("/close", operate, cashH.Close)
		cash.GET("/active", operate, cashH.GetActive)
		cash.POST("/income", operate, cashH.RegisterIncome)
		cash.POST("/expense", operate, cashH.RegisterExpense)
		cash.GET("/transactions", operate, cashH.ListTransactions)
		cash.POST("/transactions/:id/cancel", manage, cashH.CancelTransaction)
		cash.GET("/history", manage, cashH.History)
		cash.GET("/:id/report", operate, cashH.Report)

		cash.GET("/pending-services", operate, payH.PendingServices)
		cash.POST("/pending-services/pay", operate, payH.Pay)
		cash.POST("/pending-services/refund", operate, payH.Refund)
	}

	comm := v1.Group("/commissions", middleware.RequirePermission(model.CapManageCommissions))
	{
		comm.POST("", commH.Generate)
		comm.GET("", commH.List)
		comm.GET("/preview", commH.Preview)
		comm.GET("/report", commH.Report)
		comm.GET("/report/export", commH.ExportReport)
		comm.GET("/:id", commH.Get)
		comm.GET("/:id/statement", commH.Statement)
		comm.POST("/:id/approve", commH.Approve)
		comm.POST("/:id/pay", commH.Pay)
		comm.POST("/:id/cancel", commH.Cancel)
		comm.POST("/:id/revert-payment", commH.RevertPayment)
	}
}
