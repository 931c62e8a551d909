package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoAuthHeader = errors.New("no authorization header")
	ErrBadToken     = errors.New("invalid token")
)

// Claims - содержимое токена, выданного сервисом авторизации.
// Subject - идентификатор пользователя, он же автор версий.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Verifier проверяет HS256 токены
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewVerifier(conf *Config) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(conf.Leeway),
	}
	if conf.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(conf.Issuer))
	}
	return &Verifier{
		secret: []byte(conf.Secret),
		parser: jwt.NewParser(opts...),
	}
}

// VerifyToken достает токен из заголовка Authorization и возвращает id пользователя
func (v *Verifier) VerifyToken(r *http.Request) (string, error) {
	authToken := r.Header.Get("Authorization")
	if authToken == "" {
		return "", ErrNoAuthHeader
	}
	raw, ok := strings.CutPrefix(authToken, "Bearer ")
	if !ok || raw == "" {
		return "", fmt.Errorf("%w: expected bearer scheme", ErrBadToken)
	}

	var claims Claims
	if _, err := v.parser.ParseWithClaims(raw, &claims, func(_ *jwt.Token) (any, error) {
		return v.secret, nil
	}); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadToken, err)
	}

	if claims.Subject == "" {
		return "", fmt.Errorf("%w: empty subject", ErrBadToken)
	}

	return claims.Subject, nil
}

// IssueToken подписывает токен для пользователя. Используется в тестах и утилитах.
func IssueToken(conf *Config, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    conf.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(conf.Secret))
}
