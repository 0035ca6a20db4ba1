package http

import (
	"log/slog"

	"github.com/go-verify-api/internal/infrastructure/cipher"
	"github.com/go-verify-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/go-verify-api/internal/infrastructure/jwt"
	appmiddleware "github.com/go-verify-api/internal/transport/http/middleware"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	ApplicationRepo  *dynamo.ApplicationRepo
	SubscriptionRepo *dynamo.SubscriptionRepo
	VerificationRepo *dynamo.VerificationRepo
	IdentityLockRepo *dynamo.IdentityLockRepo
	Cipher           *cipher.Cipher
	// JWTProvider is optional; without it the operator routes are not mounted.
	JWTProvider *jwtinfra.Provider
	Limiter     appmiddleware.Limiter
	Logger      *slog.Logger
}
