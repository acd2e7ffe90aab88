package utils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const tokenDataKey = "operator_token"

var ErrMissingToken = errors.New("missing bearer token")

// TokenData is the subset of operator JWT claims the API relies on.
type TokenData struct {
	Sub   string
	Email string
}

// Actor names the operator for audit fields, preferring the email claim.
func (t *TokenData) Actor() string {
	if t.Email != "" {
		return t.Email
	}
	return t.Sub
}

type operatorClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// ParseOperatorToken verifies an HS256 operator token and extracts its claims.
func ParseOperatorToken(raw string, secret []byte) (*TokenData, error) {
	var claims operatorClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("invalid operator token: %w", err)
	}

	if claims.Subject == "" {
		return nil, errors.New("invalid operator token: empty subject")
	}
	return &TokenData{Sub: claims.Subject, Email: claims.Email}, nil
}

// OperatorAuth rejects requests without a valid operator bearer token and
// stores the parsed claims for ParseTokenDataCtx.
func OperatorAuth(secret []byte, onFail func(c echo.Context) error) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				return onFail(c)
			}

			data, err := ParseOperatorToken(raw, secret)
			if err != nil {
				c.Logger().Warnf("rejected operator token: %v", err)
				return onFail(c)
			}

			c.Set(tokenDataKey, data)
			return next(c)
		}
	}
}

func ParseTokenDataCtx(c echo.Context) (*TokenData, error) {
	data, ok := c.Get(tokenDataKey).(*TokenData)
	if !ok || data == nil {
		return nil, ErrMissingToken
	}
	return data, nil
}
