package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/akshitverma317/diagnoai/internal/classifier"
	"github.com/akshitverma317/diagnoai/internal/config"
	"github.com/akshitverma317/diagnoai/internal/middleware"
	"github.com/akshitverma317/diagnoai/internal/models"
	"github.com/akshitverma317/diagnoai/internal/quota"
	"github.com/akshitverma317/diagnoai/internal/repository"
	"github.com/akshitverma317/diagnoai/internal/service"
	"github.com/akshitverma317/diagnoai/internal/storage"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type cacheClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	middleware.Counter
	middleware.NonceStore
}

type accountService interface {
	middleware.IdentityEnsurer
	Status(ctx context.Context, email string) (quota.Status, error)
}

type diagnosisService interface {
	Diagnose(ctx context.Context, input service.DiagnoseInput) (service.DiagnosisResult, error)
}

type subscriptionService interface {
	CheckoutURL(token string) (string, error)
	Confirm(ctx context.Context, email string) (service.Confirmation, error)
}

type studyLister interface {
	GetByID(ctx context.Context, id string) (models.Study, error)
	ListByEmail(ctx context.Context, email string, limit, offset int) ([]models.Study, error)
	CountByEmail(ctx context.Context, email string) (int, error)
}

type HandlerSet struct {
	log           zerolog.Logger
	cfg           *config.AppConfig
	db            pinger
	cache         cacheClient
	accounts      accountService
	diagnoses     diagnosisService
	subscriptions subscriptionService
	studies       studyLister
}

func NewHandlerSet(log zerolog.Logger, db *pgxpool.Pool, cache *redis.Client, store *storage.ObjectStore, cfg *config.AppConfig) (HandlerSet, error) {
	primary, err := classifier.NewRemoteModel(cfg.Models.BaseURL, cfg.Models.Primary, &http.Client{})
	if err != nil {
		return HandlerSet{}, err
	}
	secondary, err := classifier.NewRemoteModel(cfg.Models.BaseURL, cfg.Models.Secondary, &http.Client{})
	if err != nil {
		return HandlerSet{}, err
	}
	pipeline := classifier.NewPipeline(primary, secondary, classifier.NewPool(cfg.Models.Workers, cfg.Models.Timeout))

	accountRepo := repository.NewAccountRepository(db)
	studyRepo := repository.NewStudyRepository(db)

	quotas := quota.NewController(accountRepo, quota.Limits{
		Free:    cfg.Quota.FreeLimit,
		Premium: cfg.Quota.PremiumLimit,
	}, cfg.Quota.Timeout, log.With().Str("component", "quota").Logger())

	var archive service.Archiver
	if store != nil {
		archive = service.NewArchiveService(studyRepo, store, cfg.Security.SignatureSecret, log)
	}

	return HandlerSet{
		log:           log,
		cfg:           cfg,
		db:            db,
		cache:         cache,
		accounts:      quotas,
		diagnoses:     service.NewDiagnosisService(quotas, pipeline, archive, log),
		subscriptions: service.NewSubscriptionService(quotas, cfg.Subscription, log),
		studies:       studyRepo,
	}, nil
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")

	v1.POST("/subscription/confirm",
		middleware.Signature(h.cfg.Security.SignatureSecret, h.cfg.Security.SignatureSkew, h.cache),
		h.ConfirmSubscription,
	)

	authed := v1.Group("")
	authed.Use(middleware.Auth(h.cfg.Security.JWTSecret, h.accounts))
	authed.GET("/me", h.Me)
	authed.GET("/usage", h.Usage)
	authed.GET("/diagnoses", h.ListDiagnoses)
	authed.GET("/diagnoses/:id", h.GetDiagnosis)
	authed.POST("/diagnoses",
		middleware.RateLimit(h.cache, "diagnoses", h.cfg.RateLimit.Requests, h.cfg.RateLimit.Window, h.log),
		h.CreateDiagnosis,
	)
	authed.POST("/subscription/checkout", h.Checkout)
}
