package auth

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

func privateApp(secret string) *fiber.App {
	app := fiber.New()
	app.Get("/private", JWTMiddleware(secret), func(c *fiber.Ctx) error {
		uid, _ := c.Locals("user_id").(string)
		return c.SendString(uid)
	})
	return app
}

func getWithToken(t *testing.T, app *fiber.App, header string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	return resp
}

func TestJWTMiddleware(t *testing.T) {
	app := privateApp("secret")

	if resp := getWithToken(t, app, ""); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized without token")
	}
	if resp := getWithToken(t, app, "Basic abc"); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized for non-bearer scheme")
	}

	token, err := IssueToken("secret", "user-1", DefaultTokenTTL)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	resp := getWithToken(t, app, "Bearer "+token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected ok, got %d", resp.StatusCode)
	}
}

func TestJWTMiddlewareRejectsBadTokens(t *testing.T) {
	app := privateApp("secret")

	wrongKey, _ := IssueToken("other-secret", "user-1", DefaultTokenTTL)
	if resp := getWithToken(t, app, "Bearer "+wrongKey); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized for wrong signing key")
	}

	expired, _ := IssueToken("secret", "user-1", -time.Minute)
	if resp := getWithToken(t, app, "Bearer "+expired); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized for expired token")
	}
}

func TestJWTMiddlewareParseError(t *testing.T) {
	orig := parseMiddlewareClaimsFn
	defer func() { parseMiddlewareClaimsFn = orig }()
	parseMiddlewareClaimsFn = func(string, jwt.Claims, jwt.Keyfunc, ...jwt.ParserOption) (*jwt.Token, error) {
		return nil, errors.New("boom")
	}

	if resp := getWithToken(t, privateApp("secret"), "Bearer x"); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized on parse error")
	}
}

func TestIssueTokenRequiresUser(t *testing.T) {
	if _, err := IssueToken("secret", "", time.Minute); err == nil {
		t.Fatalf("expected error for empty user")
	}
}

func TestJWTMiddlewareQueryToken(t *testing.T) {
	app := privateApp("secret")
	token, _ := IssueToken("secret", "user-7", DefaultTokenTTL)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/private?access_token="+token, nil))
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected ok for query token, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "user-7" {
		t.Fatalf("expected user-7 in locals, got %q", body)
	}
}

func TestJWTMiddlewareRejectsForeignAlgorithmAndAnonymous(t *testing.T) {
	app := privateApp("secret")

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{UserID: "user-1"}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if resp := getWithToken(t, app, "Bearer "+hs512); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized for HS512 token")
	}

	anonymous, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if resp := getWithToken(t, app, "Bearer "+anonymous); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized for token without user")
	}

	subjectOnly, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-2"},
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if resp := getWithToken(t, app, "Bearer "+subjectOnly); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected subject claim to identify the user, got %d", resp.StatusCode)
	}
}
