package auth

import (
	"log"
	"net/url"
	"strings"
	"time"

	"gallery/config"

	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
)

const userIDKey = "userID"

var jwtValidator *validator.Validator

// Init sets up JWT validation against the external identity
// provider's JWKS. Sessions, sign-up and token refresh are all the
// provider's problem - we only verify what it issued
func Init() {
	if config.AUTH_ISSUER_URL == "" {
		log.Print("AUTH_ISSUER_URL not set - bearer tokens will be rejected")
		return
	}
	issuerURL, err := url.Parse(config.AUTH_ISSUER_URL)
	if err != nil {
		panic(err)
	}
	provider := jwks.NewCachingProvider(issuerURL, 5*time.Minute)
	jwtValidator, err = validator.New(
		provider.KeyFunc,
		validator.RS256,
		issuerURL.String(),
		[]string{config.AUTH_AUDIENCE},
	)
	if err != nil {
		panic(err)
	}
}

// Middleware validates a bearer token when one is present and stashes
// the subject id on the context. Routes that require identity check
// via CurrentUserID; public routes just proceed without one
func Middleware(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		c.Next()
		return
	}
	if jwtValidator == nil {
		c.Next()
		return
	}
	token := strings.TrimPrefix(header, "Bearer ")
	claims, err := jwtValidator.ValidateToken(c.Request.Context(), token)
	if err != nil {
		// An invalid or expired token is worse than no token: the
		// client must be told to re-authenticate
		c.AbortWithStatusJSON(401, gin.H{"error": "invalid or expired token"})
		return
	}
	validated, ok := claims.(*validator.ValidatedClaims)
	if !ok {
		c.AbortWithStatusJSON(401, gin.H{"error": "invalid token claims"})
		return
	}
	c.Set(userIDKey, validated.RegisteredClaims.Subject)
	c.Next()
}

// CurrentUserID returns the authenticated subject id, or the guest id
// from the cookie session, or ""
func CurrentUserID(c *gin.Context) string {
	if id, ok := c.Get(userIDKey); ok {
		return id.(string)
	}
	return GuestID(c)
}

// AuthenticatedUserID ignores guest sessions - only a verified bearer
// token counts
func AuthenticatedUserID(c *gin.Context) string {
	if id, ok := c.Get(userIDKey); ok {
		return id.(string)
	}
	return ""
}
