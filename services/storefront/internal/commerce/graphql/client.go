// Package graphql implements commerce.CartAPI against a Storefront GraphQL API.
package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/utafrali/storefront/pkg/httpclient"
	"github.com/utafrali/storefront/services/storefront/internal/commerce"
	"github.com/utafrali/storefront/services/storefront/internal/domain"
)

const (
	serviceName = "storefront-api"
	tokenHeader = "X-Shopify-Storefront-Access-Token"
)

// HTTPDoer is the interface for executing HTTP requests.
// Both httpclient.Client and httpclient.CircuitBreakerClient satisfy this.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Config locates the Storefront API.
type Config struct {
	// BaseURL is the shop origin, e.g. https://shop.example.com.
	BaseURL string
	// Version is the API version, e.g. 2024-10.
	Version string
	// AccessToken is the public Storefront API access token.
	AccessToken string
}

// Endpoint returns the GraphQL endpoint URL.
func (c Config) Endpoint() string {
	return fmt.Sprintf("%s/api/%s/graphql.json", strings.TrimRight(c.BaseURL, "/"), c.Version)
}

// Client talks to the Storefront API. Queries may be retried by the
// transport; a mutation is sent at most once per call.
type Client struct {
	doer     HTTPDoer
	endpoint string
	token    string
	logger   *slog.Logger
}

var _ commerce.CartAPI = (*Client)(nil)

// New creates a Storefront API client.
func New(doer HTTPDoer, cfg Config, logger *slog.Logger) *Client {
	return &Client{
		doer:     doer,
		endpoint: cfg.Endpoint(),
		token:    cfg.AccessToken,
		logger:   logger,
	}
}

// Name returns the adapter name.
func (c *Client) Name() string {
	return "graphql"
}

type request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

type response struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors"`
}

// Error is a request-level GraphQL error, such as a malformed query or a
// throttled request. It is a transport failure as far as the cart is
// concerned.
type Error struct {
	Messages []string
	Codes    []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: graphql error: %s", serviceName, strings.Join(e.Messages, "; "))
}

// do posts one operation and decodes its data into out.
func (c *Client) do(ctx context.Context, operation, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(request{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(tokenHeader, c.token)

	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("call %s %s: %w", serviceName, operation, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return httpclient.ParseResponseError(resp, serviceName)
	}
	defer resp.Body.Close()

	var gqlResp response
	if err := json.NewDecoder(resp.Body).Decode(&gqlResp); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}

	if len(gqlResp.Errors) > 0 {
		gerr := &Error{}
		for _, e := range gqlResp.Errors {
			gerr.Messages = append(gerr.Messages, e.Message)
			gerr.Codes = append(gerr.Codes, e.Extensions.Code)
		}
		c.logger.WarnContext(ctx, "storefront api returned errors",
			slog.String("operation", operation),
			slog.Any("codes", gerr.Codes),
		)
		return gerr
	}

	if err := json.Unmarshal(gqlResp.Data, out); err != nil {
		return fmt.Errorf("decode %s data: %w", operation, err)
	}
	return nil
}

// mutate runs a cart mutation whose payload sits under field in the data.
func (c *Client) mutate(ctx context.Context, field, query string, variables map[string]any) (*domain.MutationResult, error) {
	var data map[string]gqlPayload
	if err := c.do(ctx, field, query, variables, &data); err != nil {
		return nil, err
	}
	payload, ok := data[field]
	if !ok {
		return nil, fmt.Errorf("%s: response has no %s payload", serviceName, field)
	}
	return toResult(payload), nil
}

// Create issues a new, empty cart.
func (c *Client) Create(ctx context.Context) (*domain.MutationResult, error) {
	return c.mutate(ctx, "cartCreate", createCartMutation, nil)
}

// Get reads a cart by ID.
func (c *Client) Get(ctx context.Context, cartID string) (*domain.Cart, error) {
	var data struct {
		Cart *gqlCart `json:"cart"`
	}
	if err := c.do(httpclient.WithRetry(ctx), "cart", getCartQuery, map[string]any{"cartId": cartID}, &data); err != nil {
		return nil, err
	}
	if data.Cart == nil {
		return nil, commerce.ErrCartNotFound
	}
	return toCart(data.Cart), nil
}

// AddLines adds merchandise to the cart.
func (c *Client) AddLines(ctx context.Context, cartID string, lines []domain.LineInput) (*domain.MutationResult, error) {
	type lineInput struct {
		MerchandiseID string `json:"merchandiseId"`
		Quantity      int    `json:"quantity"`
	}
	in := make([]lineInput, 0, len(lines))
	for _, l := range lines {
		in = append(in, lineInput{MerchandiseID: l.MerchandiseID, Quantity: l.Quantity})
	}
	return c.mutate(ctx, "cartLinesAdd", addLinesMutation, map[string]any{"cartId": cartID, "lines": in})
}

// UpdateLines sets line quantities. A quantity of zero removes the line.
func (c *Client) UpdateLines(ctx context.Context, cartID string, lines []domain.LineInput) (*domain.MutationResult, error) {
	type lineUpdateInput struct {
		ID       string `json:"id"`
		Quantity int    `json:"quantity"`
	}
	in := make([]lineUpdateInput, 0, len(lines))
	for _, l := range lines {
		in = append(in, lineUpdateInput{ID: l.ID, Quantity: domain.ClampQuantity(l.Quantity)})
	}
	return c.mutate(ctx, "cartLinesUpdate", updateLinesMutation, map[string]any{"cartId": cartID, "lines": in})
}

// RemoveLines removes lines from the cart.
func (c *Client) RemoveLines(ctx context.Context, cartID string, lineIDs []string) (*domain.MutationResult, error) {
	return c.mutate(ctx, "cartLinesRemove", removeLinesMutation, map[string]any{"cartId": cartID, "lineIds": lineIDs})
}

// UpdateDiscountCodes replaces the discount codes of the cart.
func (c *Client) UpdateDiscountCodes(ctx context.Context, cartID string, codes []string) (*domain.MutationResult, error) {
	return c.mutate(ctx, "cartDiscountCodesUpdate", updateDiscountCodesMutation, map[string]any{"cartId": cartID, "discountCodes": nonNil(codes)})
}

// UpdateGiftCardCodes replaces the gift card codes of the cart.
func (c *Client) UpdateGiftCardCodes(ctx context.Context, cartID string, codes []string) (*domain.MutationResult, error) {
	return c.mutate(ctx, "cartGiftCardCodesUpdate", updateGiftCardCodesMutation, map[string]any{"cartId": cartID, "giftCardCodes": nonNil(codes)})
}

// Ping runs a trivial query.
func (c *Client) Ping(ctx context.Context) error {
	var data json.RawMessage
	return c.do(httpclient.WithRetry(ctx), "shop", shopQuery, nil, &data)
}

// nonNil keeps an empty list from being encoded as null, which the API reads
// as "leave unchanged".
func nonNil(codes []string) []string {
	if codes == nil {
		return []string{}
	}
	return codes
}
