package httptransport

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	identitystore "github.com/mindhelpbyus/ataraxia-next-sub003/internal/identity/store"
	invitehandler "github.com/mindhelpbyus/ataraxia-next-sub003/internal/invite/handler"
	inviteservice "github.com/mindhelpbyus/ataraxia-next-sub003/internal/invite/service"
	invitestore "github.com/mindhelpbyus/ataraxia-next-sub003/internal/invite/store"
	jwttoken "github.com/mindhelpbyus/ataraxia-next-sub003/internal/jwt_token"
	onboardinghandler "github.com/mindhelpbyus/ataraxia-next-sub003/internal/onboarding/handler"
	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/onboarding/models"
	onboardingservice "github.com/mindhelpbyus/ataraxia-next-sub003/internal/onboarding/service"
	appstore "github.com/mindhelpbyus/ataraxia-next-sub003/internal/onboarding/store/application"
	docstore "github.com/mindhelpbyus/ataraxia-next-sub003/internal/onboarding/store/document"
	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/platform/logger"
	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/platform/metrics"
	ratelimit "github.com/mindhelpbyus/ataraxia-next-sub003/internal/ratelimit/middleware"
	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/ratelimit/store/bucket"
	rbacmodels "github.com/mindhelpbyus/ataraxia-next-sub003/internal/rbac/models"
	rbacservice "github.com/mindhelpbyus/ataraxia-next-sub003/internal/rbac/service"
	rbacstore "github.com/mindhelpbyus/ataraxia-next-sub003/internal/rbac/store"
	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/storage"
	dErrors "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain-errors"
	auditmemory "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/audit/store/memory"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/audit/trail"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/middleware/auth"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/testutil"
)

const (
	signingKey   = "router-test-key"
	metricsToken = "scrape-me"
	intakeLimit  = 5
)

type RouterSuite struct {
	suite.Suite
	jwt     *jwttoken.JWTService
	healthy error
	router  http.Handler
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	ctx := context.Background()
	log := logger.Discard()
	reg := prometheus.NewRegistry()

	apps := appstore.NewInMemory()
	docs := docstore.NewInMemory()
	identities := identitystore.NewInMemory()
	invites := invitestore.NewInMemory()
	auditStore := auditmemory.NewInMemoryStore()
	tx := storage.NewInMemoryTxRunner(apps, docs, identities, invites, auditStore)

	roles := rbacstore.NewInMemory()
	s.Require().NoError(roles.AssignRole(ctx, rbacmodels.Assignment{
		PrincipalID: "reviewer-1", Role: rbacmodels.RoleVerificationReviewer, GrantedBy: "bootstrap", CreatedAt: time.Now(),
	}))
	authz, err := rbacservice.New(roles, rbacservice.WithLogger(log))
	s.Require().NoError(err)
	recorder := trail.New(auditStore)

	inviteSvc, err := inviteservice.New(invites, identities, tx, authz, recorder, inviteservice.WithLogger(log))
	s.Require().NoError(err)
	onboardingSvc, err := onboardingservice.New(onboardingservice.Stores{
		Applications: apps,
		Documents:    docs,
		Identities:   identities,
		AuditLog:     auditStore,
	}, tx, authz, recorder,
		onboardingservice.WithLogger(log),
		onboardingservice.WithInviteRedeemer(inviteSvc),
	)
	s.Require().NoError(err)

	s.jwt = jwttoken.NewJWTService(signingKey, "", "")
	requireAuth := auth.RequireAuth(jwttoken.NewJWTServiceAdapter(s.jwt, "cognito"), log)
	limiter := ratelimit.New(bucket.NewInMemoryBucketStore(), intakeLimit, time.Minute, log)

	s.healthy = nil
	s.router = NewRouter(Config{
		Logger: log,
		Modules: []RouteRegistrar{
			onboardinghandler.New(onboardingSvc, log, requireAuth, onboardinghandler.WithPublicRateLimit(limiter.Intake)),
			invitehandler.New(inviteSvc, log, requireAuth),
		},
		Registry:     reg,
		HTTPMetrics:  metrics.New(reg),
		MetricsToken: metricsToken,
		HealthChecks: map[string]HealthCheck{
			"database": func(context.Context) error { return s.healthy },
		},
	})
}

func (s *RouterSuite) bearer(req *http.Request, subject string) *http.Request {
	token, err := s.jwt.GenerateAccessToken(subject, "cognito", subject+"@example.com", nil, time.Hour)
	s.Require().NoError(err)
	return testutil.WithBearer(req, token)
}

func (s *RouterSuite) registerBody(subject string) map[string]any {
	return map[string]any{
		"external_subject_id": subject,
		"email":               subject + "@example.com",
		"first_name":          "Jane",
		"last_name":           "Doe",
		"license_number":      "PSY-12345",
		"license_state":       "CA",
		"details":             map[string]any{},
	}
}

func (s *RouterSuite) TestRegisterApproveAndStatus() {
	rr := testutil.DoRequest(s.router,
		testutil.NewJSONRequest(s.T(), http.MethodPost, BasePath+"/register", s.registerBody("sub-jane")))
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	s.NotEmpty(rr.Header().Get("X-Request-ID"))
	s.Equal("4", rr.Header().Get("X-RateLimit-Remaining"))
	registered := testutil.UnmarshalData[onboardingservice.RegisterResult](s.T(), rr)
	s.Require().NotNil(registered.Application)
	s.Equal("pending_review", registered.RegistrationStatus)
	appID := registered.Application.ID.String()

	s.Run("approve without a token is unauthorized", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodPost, BasePath+"/"+appID+"/approve"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, string(dErrors.CodeUnauthorized))
	})

	s.Run("approve by an applicant is forbidden", func() {
		req := s.bearer(testutil.NewRequest(s.T(), http.MethodPost, BasePath+"/"+appID+"/approve"), "sub-jane")
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, string(dErrors.CodeForbidden))
	})

	s.Run("reviewer approves", func() {
		req := s.bearer(testutil.NewRequest(s.T(), http.MethodPost, BasePath+"/"+appID+"/approve"), "reviewer-1")
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusOK(s.T(), rr)
		result := testutil.UnmarshalData[onboardingservice.TransitionResult](s.T(), rr)
		s.Equal(models.StateApproved, result.To)
		s.False(result.AlreadyApplied)
	})

	s.Run("status reflects approval", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, BasePath+"/status/sub-jane"))
		testutil.AssertStatusOK(s.T(), rr)
		status := testutil.UnmarshalData[onboardingservice.StatusResult](s.T(), rr)
		s.Equal("approved", status.RegistrationStatus)
		s.NotNil(status.IdentityID)
	})
}

func (s *RouterSuite) TestPublicIntakeIsRateLimitedPerClient() {
	for range intakeLimit {
		req := testutil.NewRequest(s.T(), http.MethodGet, BasePath+"/status/nobody")
		req.Header.Set("X-Forwarded-For", "198.51.100.9")
		testutil.AssertStatus(s.T(), testutil.DoRequest(s.router, req), http.StatusNotFound)
	}

	req := testutil.NewRequest(s.T(), http.MethodGet, BasePath+"/status/nobody")
	req.Header.Set("X-Forwarded-For", "198.51.100.9")
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusTooManyRequests, string(dErrors.CodeRateLimited))
	s.NotEmpty(rr.Header().Get("Retry-After"))

	// Authenticated routes are outside the public limit.
	req = s.bearer(testutil.NewRequest(s.T(), http.MethodGet, BasePath+"/pending"), "reviewer-1")
	req.Header.Set("X-Forwarded-For", "198.51.100.9")
	testutil.AssertStatusOK(s.T(), testutil.DoRequest(s.router, req))
}

func (s *RouterSuite) TestInviteRoutesAreMountedUnderBasePath() {
	req := s.bearer(testutil.NewRequest(s.T(), http.MethodGet, BasePath+"/organization/invites?organization_id=not-a-uuid"), "reviewer-1")
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusForbidden)
}

func (s *RouterSuite) TestHealthz() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/healthz"))
	testutil.AssertStatusOK(s.T(), rr)

	s.healthy = errors.New("connection refused")
	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/healthz"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusServiceUnavailable, string(dErrors.CodeUnavailable))
}

func (s *RouterSuite) TestMetricsRequireToken() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/metrics"))
	testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)

	req := testutil.NewRequest(s.T(), http.MethodGet, "/healthz")
	testutil.DoRequest(s.router, req)

	req = testutil.NewRequest(s.T(), http.MethodGet, "/metrics")
	req.Header.Set("X-Admin-Token", metricsToken)
	rr = testutil.DoRequest(s.router, req)
	testutil.AssertStatusOK(s.T(), rr)
	s.Contains(rr.Body.String(), "onboarding_http_requests_total")
}

func (s *RouterSuite) TestUnknownRoute() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/nope"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, string(dErrors.CodeNotFound))
}
