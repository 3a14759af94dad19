package main

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/shiftboard-api/internal/handler"
	"github.com/noah-isme/shiftboard-api/internal/middleware"
	"github.com/noah-isme/shiftboard-api/internal/repository"
	"github.com/noah-isme/shiftboard-api/internal/service"
	"github.com/noah-isme/shiftboard-api/pkg/cache"
	"github.com/noah-isme/shiftboard-api/pkg/config"
	"github.com/noah-isme/shiftboard-api/pkg/database"
	"github.com/noah-isme/shiftboard-api/pkg/logger"
	"github.com/noah-isme/shiftboard-api/pkg/mailer"
	corsmiddleware "github.com/noah-isme/shiftboard-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/shiftboard-api/pkg/middleware/requestid"
)

type app struct {
	cfg           *config.Config
	logger        *zap.Logger
	db            *sqlx.DB
	redis         *redis.Client
	router        *gin.Engine
	notifications *service.NotificationService
	sweeper       *service.ShiftSweeper
}

func newApp(ctx context.Context, cfg *config.Config, logr *zap.Logger) (*app, error) {
	db, err := database.New(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	a := &app{cfg: cfg, logger: logr, db: db}

	var redisClient *redis.Client
	if cfg.ProposalCache.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, proposal cache disabled", zap.Error(err))
		}
	}
	a.redis = redisClient

	metrics := service.NewMetricsService()

	tx := repository.NewTxManager(db)
	shiftRepo := repository.NewShiftRepository(db)
	signupRepo := repository.NewSignupRepository(db)
	eventRepo := repository.NewEventRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	var mail mailer.Mailer = mailer.NewLogMailer(logr)
	if cfg.Notifications.SendGridAPIKey != "" {
		mail = mailer.NewSendGridMailer(cfg.Notifications.SendGridAPIKey, cfg.Notifications.FromAddress, cfg.Notifications.FromName)
	}

	authSvc := service.NewAuthService(logr, service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.ProposalCache.TTL, logr, cfg.ProposalCache.Enabled && redisClient != nil)
	a.notifications = service.NewNotificationService(userRepo, mail, metrics, logr, cfg.Notifications)
	auditRecorder := service.NewAuditRecorder(auditRepo, logr)
	admissionSvc := service.NewAdmissionService(tx, shiftRepo, signupRepo, userRepo, auditRecorder, a.notifications, metrics, logr, service.AdmissionConfig{
		StoreTimeout: cfg.Admission.StoreTimeout,
		RetryOnce:    cfg.Admission.RetryOnce,
	})
	proposalSvc := service.NewProposalService(tx, eventRepo, shiftRepo, auditRecorder, a.notifications, cacheSvc, metrics, logr)
	shiftSvc := service.NewShiftService(tx, shiftRepo, signupRepo, eventRepo, auditRecorder, logr)
	userSvc := service.NewUserService(tx, userRepo, signupRepo, auditRecorder, logr)
	a.sweeper = service.NewShiftSweeper(shiftSvc, metrics, logr, cfg.Sweeper)

	checks := map[string]handler.Pinger{"database": db}
	if redisClient != nil {
		checks["cache"] = handler.PingFunc(cacheRepo.Ping)
	}

	a.router = newRouter(cfg, logr, metrics, authSvc, routeHandlers{
		shifts:  handler.NewShiftHandler(shiftSvc, admissionSvc),
		events:  handler.NewEventHandler(proposalSvc),
		users:   handler.NewUserHandler(userSvc),
		audit:   handler.NewAuditHandler(auditRecorder),
		metrics: handler.NewMetricsHandler(metrics, checks),
	})
	return a, nil
}

// start launches background workers.
func (a *app) start(ctx context.Context) error {
	a.notifications.Start(ctx)
	return a.sweeper.Start()
}

// close stops background work and releases connections.
func (a *app) close(ctx context.Context) {
	a.sweeper.Stop(ctx)
	if err := a.notifications.Drain(ctx); err != nil {
		a.logger.Warn("notification queue not drained", zap.Error(err))
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	_ = a.db.Close()
}

type routeHandlers struct {
	shifts  *handler.ShiftHandler
	events  *handler.EventHandler
	users   *handler.UserHandler
	audit   *handler.AuditHandler
	metrics *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, metrics *service.MetricsService, auth middleware.PrincipalResolver, h routeHandlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	requireAuth := middleware.JWT(auth)
	optionalAuth := middleware.OptionalJWT(auth)
	managerOnly := middleware.RequireManager()

	api := r.Group(cfg.APIPrefix)

	shifts := api.Group("/shifts")
	shifts.GET("", optionalAuth, h.shifts.List)
	shifts.GET("/:id", optionalAuth, h.shifts.Get)
	shifts.POST("", requireAuth, managerOnly, h.shifts.Create)
	shifts.PUT("/:id", requireAuth, managerOnly, h.shifts.Update)
	shifts.DELETE("/:id", requireAuth, managerOnly, h.shifts.Delete)
	shifts.POST("/:id/signups", requireAuth, h.shifts.Claim)
	shifts.GET("/:id/participants", requireAuth, managerOnly, h.shifts.Participants)
	shifts.GET("/:id/participants/export", requireAuth, managerOnly, h.shifts.ExportParticipants)
	shifts.DELETE("/:id/participants/:signupId", requireAuth, managerOnly, h.shifts.Revoke)

	events := api.Group("/events")
	events.GET("", optionalAuth, h.events.List)
	events.GET("/:id", optionalAuth, h.events.Get)
	events.GET("/:id/shifts", optionalAuth, h.events.Shifts)
	events.POST("", requireAuth, h.events.Propose)
	events.PUT("/:id", requireAuth, h.events.Update)
	events.DELETE("/:id", requireAuth, h.events.Delete)
	events.PATCH("/:id/status", requireAuth, managerOnly, h.events.Decide)

	users := api.Group("/users", requireAuth, managerOnly)
	users.GET("", h.users.List)
	users.PATCH("/:id/role", h.users.UpdateRole)
	users.DELETE("/:id", h.users.Delete)

	api.GET("/audit-logs", requireAuth, managerOnly, h.audit.List)

	return r
}
