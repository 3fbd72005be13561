package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

var (
	errTokenInvalid = errors.New("token invalid")
	errNoUser       = errors.New("token carries no user")
)

// JWTMiddleware verifies HS256 bearer tokens and stores the caller in
// c.Locals("user_id"). Browsers cannot set headers on a websocket upgrade, so
// the token is also accepted as the access_token query parameter.
func JWTMiddleware(secret string) fiber.Handler {
	key := []byte(secret)
	keyFunc := func(_ *jwt.Token) (interface{}, error) { return key, nil }

	return func(c *fiber.Ctx) error {
		raw := bearerFromHeader(c.Get(fiber.HeaderAuthorization))
		if raw == "" {
			raw = c.Query("access_token")
		}
		if raw == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}

		userID, err := verify(raw, keyFunc)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}
		c.Locals("user_id", userID)
		return c.Next()
	}
}

var parseMiddlewareClaimsFn = jwt.ParseWithClaims

func verify(raw string, keyFunc jwt.Keyfunc) (string, error) {
	parsed, err := parseMiddlewareClaimsFn(raw, &Claims{}, keyFunc, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return "", errTokenInvalid
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return "", errNoUser
	}
	return claims.UserID, nil
}

func bearerFromHeader(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
