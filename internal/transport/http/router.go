package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-verify-api/internal/application/apiauth"
	"github.com/go-verify-api/internal/application/directory"
	"github.com/go-verify-api/internal/application/keyrotation"
	"github.com/go-verify-api/internal/application/onboarding"
	"github.com/go-verify-api/internal/application/verification"
	"github.com/go-verify-api/internal/config"
	jwtinfra "github.com/go-verify-api/internal/infrastructure/jwt"
	"github.com/go-verify-api/internal/transport/http/handler"
	appmiddleware "github.com/go-verify-api/internal/transport/http/middleware"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(appmiddleware.SecurityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", appmiddleware.HeaderAuthKey, appmiddleware.HeaderAuthSecret},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dir := directory.NewService(directory.ServiceDeps{
		ApplicationRepo: deps.ApplicationRepo,
		Cipher:          deps.Cipher,
	})
	authSvc := apiauth.NewService(apiauth.ServiceDeps{Directory: dir, Logger: logger})
	onboardSvc := onboarding.NewService(onboarding.ServiceDeps{
		ApplicationRepo:  deps.ApplicationRepo,
		SubscriptionRepo: deps.SubscriptionRepo,
		Cipher:           deps.Cipher,
	})
	rotateSvc := keyrotation.NewService(keyrotation.ServiceDeps{
		ApplicationRepo: deps.ApplicationRepo,
		Cipher:          deps.Cipher,
	})
	lifecycleSvc := verification.NewService(verification.ServiceDeps{
		RequestRepo:      deps.VerificationRepo,
		SubscriptionRepo: deps.SubscriptionRepo,
		Applications:     dir,
		Locks:            deps.IdentityLockRepo,
		Cipher:           deps.Cipher,
	})

	healthH := handler.NewHealthHandler()
	appH := handler.NewApplicationHandler(onboardSvc, rotateSvc)
	serviceH := handler.NewServiceHandler(onboardSvc)
	verifyH := handler.NewVerificationHandler(lifecycleSvc)

	limit := func(next http.Handler) http.Handler { return next }
	if deps.Limiter != nil {
		limit = appmiddleware.RateLimit(deps.Limiter)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health-check/{action}", healthH.Ping)

		// Operator routes
		if deps.JWTProvider != nil {
			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.Auth(deps.JWTProvider))
				r.Use(appmiddleware.RequireRole(jwtinfra.RoleOperator))

				r.Post("/applications", appH.Register)
				r.Delete("/applications/{applicationCode}", appH.Deactivate)
			})
		} else {
			logger.Warn("operator routes disabled: no JWT provider")
		}

		// Application routes, authenticated by API key
		r.Group(func(r chi.Router) {
			r.Use(limit)
			r.Use(appmiddleware.APIKeyAuth(authSvc))

			r.Post("/applications/{applicationCode}/rotate-key", appH.RotateKey)

			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireApplicationScope("applicationCode"))

				r.Post("/applications/{applicationCode}/services", serviceH.Add)
				r.Put("/applications/{applicationCode}/services/{serviceType}", serviceH.Update)
				r.Delete("/applications/{applicationCode}/services/{serviceType}", serviceH.Delete)

				r.Post("/applications/{applicationCode}/generate-verification", verifyH.Generate)
				r.Post("/applications/{applicationCode}/resend-verification", verifyH.Resend)
				r.Post("/applications/{applicationCode}/verify", verifyH.Verify)
			})
		})
	})

	return r
}
