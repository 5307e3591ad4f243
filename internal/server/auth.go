package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/loyalty/internal/authorization"
	"github.com/smallbiznis/loyalty/internal/config"
	obscontext "github.com/smallbiznis/loyalty/internal/observability/context"
	"github.com/smallbiznis/loyalty/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	HeaderAPIKey = "X-Api-Key"

	contextActorKey  = "actor"
	contextRoleKey   = "actor_role"
	contextUserIDKey = "user_id"

	tokenLeeway = 30 * time.Second
)

var errTokenNotConfigured = errors.New("jwt secret not configured")

type tokenVerifier struct {
	secret []byte
	parser *jwt.Parser
}

func newTokenVerifier(secret, issuer string) *tokenVerifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(tokenLeeway),
		jwt.WithExpirationRequired(),
	}
	if issuer = strings.TrimSpace(issuer); issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &tokenVerifier{
		secret: []byte(strings.TrimSpace(secret)),
		parser: jwt.NewParser(opts...),
	}
}

// Subject verifies raw and returns its sub claim.
func (v *tokenVerifier) Subject(raw string) (string, error) {
	if v == nil || len(v.secret) == 0 {
		return "", errTokenNotConfigured
	}
	claims := jwt.RegisteredClaims{}
	_, err := v.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return "", err
	}
	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return "", jwt.ErrTokenInvalidSubject
	}
	return sub, nil
}

type apiKeyring []config.APIKey

func newAPIKeyring(keys []config.APIKey) apiKeyring {
	out := make(apiKeyring, 0, len(keys))
	for _, k := range keys {
		if k.Name == "" || k.Role == "" || len(k.Hash) != sha256.Size*2 {
			continue
		}
		out = append(out, k)
	}
	return out
}

func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}

// Lookup compares against every key so timing does not reveal a match position.
func (r apiKeyring) Lookup(raw string) (config.APIKey, bool) {
	hash := []byte(HashAPIKey(raw))
	var (
		found config.APIKey
		ok    bool
	)
	for _, k := range r {
		if subtle.ConstantTimeCompare([]byte(k.Hash), hash) == 1 {
			found, ok = k, true
		}
	}
	return found, ok
}

func bearerToken(c *gin.Context) (string, bool) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// UserAuthRequired authenticates storefront customers by JWT.
func (s *Server) UserAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		userID, err := s.tokens.Subject(raw)
		if err != nil {
			logger.FromContext(c.Request.Context()).Debug("jwt rejected", zap.Error(err))
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextUserIDKey, userID)
		c.Set(contextActorKey, "user:"+userID)
		c.Set(contextRoleKey, authorization.RoleUser)
		c.Request = c.Request.WithContext(obscontext.WithActor(c.Request.Context(), obscontext.ActorTypeUser, userID))
		c.Next()
	}
}

// APIKeyRequired authenticates collaborator services and operators.
func (s *Server) APIKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderAPIKey))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		key, ok := s.keys.Lookup(raw)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextActorKey, "api_key:"+key.Name)
		c.Set(contextRoleKey, key.Role)
		c.Request = c.Request.WithContext(obscontext.WithActor(c.Request.Context(), obscontext.ActorTypeService, key.Name))
		c.Next()
	}
}

func (s *Server) authorize(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := c.GetString(contextActorKey)
		role := c.GetString(contextRoleKey)
		if actor == "" || role == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if s.authzSvc == nil {
			AbortWithError(c, ErrForbidden)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), actor, role, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func currentUserID(c *gin.Context) string {
	return c.GetString(contextUserIDKey)
}
