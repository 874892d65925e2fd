package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/labstack/echo/v4"

	utils "github.com/marinlafare/real-chessism/pkg/context"
	"github.com/marinlafare/real-chessism/pkg/tracing"
)

const verifyTimeout = 5 * time.Second

type UserClaims struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
}

// TokenVerifier checks a raw bearer token and returns its claims.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*UserClaims, error)
}

type oidcVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func (v *oidcVerifier) Verify(ctx context.Context, raw string) (*UserClaims, error) {
	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	var claims UserClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("cannot parse claims: %w", err)
	}
	return &claims, nil
}

// NewOIDCVerifier discovers the issuer and returns a verifier for clientID tokens.
func NewOIDCVerifier(ctx context.Context, issuer, clientID string) (TokenVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc provider: %w", err)
	}
	return &oidcVerifier{verifier: provider.Verifier(&oidc.Config{ClientID: clientID})}, nil
}

// Authentication rejects requests without a valid bearer token and stores the
// token subject as the request's user id.
func Authentication(logger ectologger.Logger, verifier TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, span := tracing.StartSpan(c.Request().Context(), "middleware.Authentication")
			defer span.End()

			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, "Bearer ") {
				logger.WithContext(ctx).Warn("request is missing bearer token")
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer")
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			verifyCtx, cancel := context.WithTimeout(ctx, verifyTimeout)
			claims, err := verifier.Verify(verifyCtx, raw)
			cancel()
			if err != nil {
				logger.WithContext(ctx).WithError(err).Warn("token is invalid")
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			ctx = utils.SetUserID(ctx, claims.Sub)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}
