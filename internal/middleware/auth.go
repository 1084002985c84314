package middleware

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"Poolfund/config"
	appErrors "Poolfund/internal/errors"
	"Poolfund/internal/logger"
	"Poolfund/internal/pkg"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

const userIDKey = "user_id"

var (
	ErrMissingToken = appErrors.NewAuthError("UNAUTHORIZED", "Authorization header with a Bearer token is required")
	ErrInvalidToken = appErrors.NewAuthError("UNAUTHORIZED", "Invalid or expired token")
)

// Claims carries the caller's user id in the standard subject claim.
type Claims struct {
	jwt.RegisteredClaims
}

type JwtService struct {
	secret []byte
	issuer string
	expiry time.Duration
	now    func() time.Time
}

func NewJwtService(cfg config.JWTConfig) (*JwtService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt secret must not be empty")
	}
	expiry := time.Duration(cfg.ExpiryMinutes) * time.Minute
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &JwtService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		expiry: expiry,
		now:    time.Now,
	}, nil
}

// GenerateToken signs an HS256 token for userID. Production tokens come from
// the identity provider; this is used by poolctl and tests.
func (s *JwtService) GenerateToken(userID ulid.ULID) (string, error) {
	now := s.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken checks the signature, expiry and issuer and returns the caller id.
func (s *JwtService) ValidateToken(tokenString string) (ulid.ULID, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return ulid.ULID{}, ErrInvalidToken.WithError(err)
	}

	userID, err := pkg.ParseID(claims.Subject)
	if err != nil {
		return ulid.ULID{}, ErrInvalidToken.WithError(err)
	}
	return userID, nil
}

// AuthMiddleware requires a valid Bearer token and stores the caller id under "user_id".
func AuthMiddleware(jwtService *JwtService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, token, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			abortWithError(c, ErrMissingToken)
			return
		}

		userID, err := jwtService.ValidateToken(strings.TrimSpace(token))
		if err != nil {
			logger.Debug().Err(err).Str("path", c.FullPath()).Msg("token rejected")
			abortWithError(c, ErrInvalidToken)
			return
		}

		c.Set(userIDKey, userID.String())
		c.Next()
	}
}
