package award

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/pashagolub/pgxmock/v3"
)

func TestTotalHandler(t *testing.T) {
	mock := newMock(t)
	app := fiber.New()
	RegisterRoutes(app.Group("/awards"), NewService(mock), func(c *fiber.Ctx) error {
		c.Locals("user_id", "user-1")
		return c.Next()
	})

	mock.ExpectQuery(`SELECT COALESCE\(SUM\(points\), 0\)::int FROM point_awards`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"total"}).AddRow(85))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/awards/me", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	var body struct {
		Points int `json:"points"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Points != 85 {
		t.Fatalf("expected 85 points, got %d", body.Points)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestTotalHandlerErrors(t *testing.T) {
	mock := newMock(t)
	app := fiber.New()
	RegisterRoutes(app.Group("/awards"), NewService(mock), func(c *fiber.Ctx) error { return c.Next() })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/awards/me", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	app = fiber.New()
	RegisterRoutes(app.Group("/awards"), NewService(mock), func(c *fiber.Ctx) error {
		c.Locals("user_id", "user-1")
		return c.Next()
	})
	mock.ExpectQuery(`SELECT COALESCE`).WithArgs("user-1").WillReturnError(errAward)
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/awards/me", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
}
