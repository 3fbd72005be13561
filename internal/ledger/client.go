package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Client talks to the trace API of a remote server. The user is taken from
// the bearer token, so the userID arguments are ignored.
type Client struct {
	baseURL string
	token   string
	timeout time.Duration
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), token: token, timeout: timeout}
}

func (c *Client) StartRoute(ctx context.Context, req StartRequest) (Route, error) {
	var resp struct {
		RouteID string `json:"routeId"`
		Route   Route  `json:"route"`
	}
	if err := c.do(ctx, fiber.Post(c.baseURL+"/routes/start").JSON(req), &resp); err != nil {
		return Route{}, err
	}
	if resp.Route.ID == "" {
		resp.Route.ID = resp.RouteID
	}
	return resp.Route, nil
}

func (c *Client) AppendTrace(ctx context.Context, _ string, req TraceRequest) (TraceResult, error) {
	var resp TraceResult
	err := c.do(ctx, fiber.Post(c.baseURL+"/routes/trace").JSON(req), &resp)
	return resp, err
}

func (c *Client) RemovePOI(ctx context.Context, _ string, req POIRequest) (RemovalResult, error) {
	var resp RemovalResult
	err := c.do(ctx, fiber.Post(c.baseURL+"/routes/remove-poi").JSON(req), &resp)
	return resp, err
}

func (c *Client) RestorePOI(ctx context.Context, _ string, req POIRequest) (RemovalResult, error) {
	var resp RemovalResult
	err := c.do(ctx, fiber.Post(c.baseURL+"/routes/restore-poi").JSON(req), &resp)
	return resp, err
}

func (c *Client) Route(ctx context.Context, id string) (Route, error) {
	var resp Route
	err := c.do(ctx, fiber.Get(c.baseURL+"/routes/"+id), &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, agent *fiber.Agent, out any) error {
	if err := ctx.Err(); err != nil {
		fiber.ReleaseAgent(agent)
		return err
	}
	if c.token != "" {
		agent.Set(fiber.HeaderAuthorization, "Bearer "+c.token)
	}
	agent.Timeout(c.timeout)

	type result struct {
		code int
		body []byte
		errs []error
	}
	done := make(chan result, 1)
	go func() {
		code, body, errs := agent.Bytes()
		done <- result{code: code, body: body, errs: errs}
	}()

	var res result
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res = <-done:
	}
	if len(res.errs) > 0 {
		return errors.Join(res.errs...)
	}

	switch res.code {
	case http.StatusOK, http.StatusCreated:
	case http.StatusNotFound:
		return ErrRouteNotFound
	case http.StatusConflict:
		return ErrRouteCompleted
	case http.StatusForbidden:
		return ErrForbidden
	default:
		return fmt.Errorf("ledger: status %d: %s", res.code, strings.TrimSpace(string(res.body)))
	}
	if err := json.Unmarshal(res.body, out); err != nil {
		return fmt.Errorf("ledger decode: %w", err)
	}
	return nil
}
