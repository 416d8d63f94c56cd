package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	identitystore "github.com/mindhelpbyus/ataraxia-next-sub003/internal/identity/store"
	invitehandler "github.com/mindhelpbyus/ataraxia-next-sub003/internal/invite/handler"
	inviteservice "github.com/mindhelpbyus/ataraxia-next-sub003/internal/invite/service"
	invitestore "github.com/mindhelpbyus/ataraxia-next-sub003/internal/invite/store"
	jwttoken "github.com/mindhelpbyus/ataraxia-next-sub003/internal/jwt_token"
	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/onboarding/adapters/bgcheck"
	onboardinghandler "github.com/mindhelpbyus/ataraxia-next-sub003/internal/onboarding/handler"
	onboardingservice "github.com/mindhelpbyus/ataraxia-next-sub003/internal/onboarding/service"
	appstore "github.com/mindhelpbyus/ataraxia-next-sub003/internal/onboarding/store/application"
	docstore "github.com/mindhelpbyus/ataraxia-next-sub003/internal/onboarding/store/document"
	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/platform/config"
	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/platform/kafka"
	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/platform/metrics"
	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/platform/postgres"
	platformredis "github.com/mindhelpbyus/ataraxia-next-sub003/internal/platform/redis"
	ratelimitmetrics "github.com/mindhelpbyus/ataraxia-next-sub003/internal/ratelimit/metrics"
	ratelimit "github.com/mindhelpbyus/ataraxia-next-sub003/internal/ratelimit/middleware"
	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/ratelimit/store/bucket"
	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/rbac/cache"
	rbacmodels "github.com/mindhelpbyus/ataraxia-next-sub003/internal/rbac/models"
	rbacservice "github.com/mindhelpbyus/ataraxia-next-sub003/internal/rbac/service"
	rbacstore "github.com/mindhelpbyus/ataraxia-next-sub003/internal/rbac/store"
	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/storage"
	httptransport "github.com/mindhelpbyus/ataraxia-next-sub003/internal/transport/http"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/audit"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/audit/outbox"
	auditmemory "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/audit/store/memory"
	auditpostgres "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/audit/store/postgres"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/audit/trail"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/middleware/auth"
	txcontext "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/tx"
)

// app is the assembled process: the HTTP handler plus background work.
type app struct {
	handler http.Handler
	relay   *outbox.Relay
	sweep   func()
	closers []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

// backend is one consistent set of stores and transaction runners.
type backend struct {
	apps       onboardingservice.ApplicationStore
	docs       onboardingservice.DocumentStore
	identities interface {
		onboardingservice.IdentityStore
		inviteservice.IdentityStore
	}
	invites  inviteservice.Store
	auditLog interface {
		audit.Store
		onboardingservice.AuditReader
	}
	roles    rbacservice.Store
	tx       txcontext.Runner
	inviteTx txcontext.Runner
	outbox   outbox.Source
}

func memoryBackend() backend {
	apps := appstore.NewInMemory()
	docs := docstore.NewInMemory()
	identities := identitystore.NewInMemory()
	invites := invitestore.NewInMemory()
	auditLog := auditmemory.NewInMemoryStore()
	tx := storage.NewInMemoryTxRunner(apps, docs, identities, invites, auditLog)
	return backend{
		apps:       apps,
		docs:       docs,
		identities: identities,
		invites:    invites,
		auditLog:   auditLog,
		roles:      rbacstore.NewInMemory(),
		tx:         tx,
		inviteTx:   tx,
	}
}

func postgresBackend(db *sql.DB, cfg config.DatabaseConfig) backend {
	auditLog := auditpostgres.New(db)
	return backend{
		apps:       appstore.NewPostgres(db),
		docs:       docstore.NewPostgres(db),
		identities: identitystore.NewPostgres(db),
		invites:    invitestore.NewPostgres(db),
		auditLog:   auditLog,
		roles:      rbacstore.NewPostgres(db),
		tx: postgres.NewTxRunner(db,
			postgres.WithTimeout(cfg.TxTimeout),
			postgres.WithMaxRetries(cfg.MaxTxRetries),
		),
		inviteTx: postgres.NewTxRunner(db,
			postgres.WithTimeout(cfg.TxTimeout),
			postgres.WithMaxRetries(cfg.MaxTxRetries),
			postgres.WithIsolation(sql.LevelSerializable),
		),
		outbox: auditLog,
	}
}

// buildApp wires every component from cfg. Without DATABASE_URL all stores live
// in memory and the compliance outbox is not relayed.
func buildApp(ctx context.Context, cfg config.Server, logger *slog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	reg := metrics.NewRegistry()
	checks := map[string]httptransport.HealthCheck{}

	var be backend
	if cfg.InMemory() {
		logger.Warn("DATABASE_URL not set; using in-memory stores")
		be = memoryBackend()
	} else {
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		if err := postgres.Migrate(db, logger); err != nil {
			return nil, err
		}
		be = postgresBackend(db, cfg.Database)
		checks["postgres"] = db.PingContext
	}

	var limiterStore ratelimit.BucketStore
	rc, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		a.closers = append(a.closers, rc.Close)
		checks["redis"] = rc.Health
		be.roles = cache.New(be.roles, rc.Client, cfg.Auth.PermissionCacheTTL, cache.WithLogger(logger))
		limiterStore = bucket.NewRedis(rc.Client, nil)
	} else {
		mem := bucket.NewInMemoryBucketStore()
		limiterStore = mem
		a.sweep = func() { mem.Sweep() }
	}

	authz, err := rbacservice.New(be.roles,
		rbacservice.WithLogger(logger),
		rbacservice.WithMetrics(rbacservice.NewMetrics(reg)),
	)
	if err != nil {
		return nil, err
	}
	if cfg.InMemory() && cfg.Auth.BootstrapAdmin != "" {
		if err := authz.AssignRole(ctx, cfg.Auth.BootstrapAdmin, rbacmodels.RoleSuperAdmin, "bootstrap", nil); err != nil {
			return nil, fmt.Errorf("bootstrap admin: %w", err)
		}
	}

	recorder := trail.New(be.auditLog,
		trail.WithLogger(logger),
		trail.WithMetrics(trail.NewMetrics(reg)),
	)

	inviteSvc, err := inviteservice.New(be.invites, be.identities, be.inviteTx, authz, recorder,
		inviteservice.WithLogger(logger),
		inviteservice.WithMetrics(inviteservice.NewMetrics(reg)),
		inviteservice.WithSubjectType(cfg.Workflow.ExternalSubjectType),
	)
	if err != nil {
		return nil, err
	}

	onboardingOpts := []onboardingservice.Option{
		onboardingservice.WithLogger(logger),
		onboardingservice.WithMetrics(onboardingservice.NewMetrics(reg)),
		onboardingservice.WithWorkflowConfig(cfg.Workflow),
		onboardingservice.WithInviteRedeemer(inviteSvc),
	}

	kc, err := kafka.NewClient(ctx, cfg.Kafka)
	if err != nil {
		return nil, err
	}
	if kc != nil {
		a.closers = append(a.closers, func() error { kc.Close(); return nil })
		if err := kafka.EnsureTopics(ctx, kc, cfg.Kafka); err != nil {
			return nil, err
		}
		onboardingOpts = append(onboardingOpts, onboardingservice.WithBackgroundCheckInitiator(
			bgcheck.NewKafkaInitiator(kc, cfg.Kafka.BackgroundCheckTopic, logger)))
		if be.outbox != nil {
			a.relay = outbox.NewRelay(be.outbox, kafka.NewProducer(kc, cfg.Kafka.AuditTopic),
				outbox.WithInterval(cfg.Kafka.OutboxPollInterval),
				outbox.WithBatchSize(cfg.Kafka.OutboxBatchSize),
				outbox.WithLogger(logger),
				outbox.WithMetrics(outbox.NewMetrics(reg)),
			)
		}
	}

	onboardingSvc, err := onboardingservice.New(onboardingservice.Stores{
		Applications: be.apps,
		Documents:    be.docs,
		Identities:   be.identities,
		AuditLog:     be.auditLog,
	}, be.tx, authz, recorder, onboardingOpts...)
	if err != nil {
		return nil, err
	}

	if cfg.Auth.JWTSigningKey == config.DevSigningKey {
		logger.Warn("JWT_SIGNING_KEY not set; using the development key")
	}
	validator := jwttoken.NewJWTServiceAdapter(
		jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience),
		cfg.Workflow.ExternalSubjectType,
	)
	requireAuth := auth.RequireAuth(validator, logger)
	limiter := ratelimit.New(limiterStore, cfg.RateLimit.IntakeLimit, cfg.RateLimit.IntakeWindow, logger,
		ratelimit.WithDisabled(cfg.RateLimit.Disabled),
		ratelimit.WithMetrics(ratelimitmetrics.New(reg)),
	)

	a.handler = httptransport.NewRouter(httptransport.Config{
		Logger: logger,
		Modules: []httptransport.RouteRegistrar{
			onboardinghandler.New(onboardingSvc, logger, requireAuth,
				onboardinghandler.WithPublicRateLimit(limiter.Intake)),
			invitehandler.New(inviteSvc, logger, requireAuth),
		},
		Registry:     reg,
		HTTPMetrics:  metrics.New(reg),
		MetricsToken: cfg.MetricsToken,
		HealthChecks: checks,
	})
	return a, nil
}

var errNeedsDatabase = errors.New("DATABASE_URL is required for this command")

// openDatabase is shared by the operator commands, which only make sense against postgres.
func openDatabase(ctx context.Context, cfg config.Server) (*sql.DB, error) {
	if cfg.InMemory() {
		return nil, errNeedsDatabase
	}
	return postgres.Open(ctx, cfg.Database)
}
