// Package mock is an in-process commerce API. It owns carts, prices them and
// reports field-level errors the way the real API does. It is intended for
// development and testing purposes.
package mock

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/storefront/services/storefront/internal/commerce"
	"github.com/utafrali/storefront/services/storefront/internal/domain"
)

// User error codes reported by the mock.
const (
	CodeInvalid          = "INVALID"
	CodeNotEnoughStock   = "MERCHANDISE_NOT_ENOUGH_STOCK"
	CodeGiftCardNotFound = "GIFT_CARD_NOT_FOUND"
	CodeLineNotFound     = "LINE_NOT_FOUND"
)

// Variant is a purchasable item known to the mock.
type Variant struct {
	ID           string
	Title        string
	ProductTitle string
	Handle       string
	PriceCents   int64
	// Available is the stock level. Nil means unlimited.
	Available *int
}

// Catalog configures what the mock sells.
type Catalog struct {
	Currency string
	Variants []Variant
	// DiscountPercent maps discount codes the mock accepts to a percentage off
	// the subtotal. Other codes are kept on the cart as not applicable.
	DiscountPercent map[string]int64
	// GiftCardBalances maps gift card codes to their balance in cents.
	GiftCardBalances map[string]int64
	// CheckoutBaseURL prefixes checkout URLs. Empty means carts have none.
	CheckoutBaseURL string
}

// DefaultCatalog returns a small catalog used when running the service
// without a real commerce API.
func DefaultCatalog() Catalog {
	three := 3
	return Catalog{
		Currency: "USD",
		Variants: []Variant{
			{ID: "gid://shopify/ProductVariant/1001", Title: "154cm", ProductTitle: "Hydrogen Snowboard", Handle: "hydrogen-snowboard", PriceCents: 60000},
			{ID: "gid://shopify/ProductVariant/1002", Title: "158cm", ProductTitle: "Hydrogen Snowboard", Handle: "hydrogen-snowboard", PriceCents: 62500, Available: &three},
			{ID: "gid://shopify/ProductVariant/2001", Title: "Default Title", ProductTitle: "Board Wax", Handle: "board-wax", PriceCents: 1000},
		},
		DiscountPercent:  map[string]int64{"WELCOME10": 10},
		GiftCardBalances: map[string]int64{"GIFT-CARD-0000-1234": 5000},
		CheckoutBaseURL:  "https://checkout.example.com",
	}
}

type line struct {
	id        string
	variantID string
	quantity  int
}

type cartState struct {
	id            string
	lines         []line
	discountCodes []string
	giftCardCodes []string
}

// API is an in-memory commerce.CartAPI.
type API struct {
	catalog  Catalog
	variants map[string]Variant
	latency  time.Duration

	mu    sync.Mutex
	carts map[string]*cartState
}

var _ commerce.CartAPI = (*API)(nil)

// Option configures the mock.
type Option func(*API)

// WithLatency delays every call, honoring context cancellation.
func WithLatency(d time.Duration) Option {
	return func(a *API) { a.latency = d }
}

// New creates a mock commerce API selling catalog.
func New(catalog Catalog, opts ...Option) *API {
	a := &API{
		catalog:  catalog,
		variants: make(map[string]Variant, len(catalog.Variants)),
		carts:    make(map[string]*cartState),
	}
	for _, v := range catalog.Variants {
		a.variants[v.ID] = v
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns the adapter name.
func (a *API) Name() string {
	return "mock"
}

// Ping always succeeds.
func (a *API) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (a *API) wait(ctx context.Context) error {
	if a.latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(a.latency)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Create issues a new, empty cart.
func (a *API) Create(ctx context.Context) (*domain.MutationResult, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	c := &cartState{id: "gid://shopify/Cart/" + uuid.New().String()}
	a.carts[c.id] = c
	return &domain.MutationResult{Cart: a.render(c)}, nil
}

// Get reads a cart.
func (a *API) Get(ctx context.Context, cartID string) (*domain.Cart, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	c, ok := a.carts[cartID]
	if !ok {
		return nil, commerce.ErrCartNotFound
	}
	return a.render(c), nil
}

// Delete forgets a cart, as the real API does once a cart is checked out.
func (a *API) Delete(cartID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.carts, cartID)
}

// mutate runs fn on the cart under the lock and renders the result.
func (a *API) mutate(ctx context.Context, cartID string, fn func(c *cartState) []domain.UserError) (*domain.MutationResult, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	c, ok := a.carts[cartID]
	if !ok {
		return nil, commerce.ErrCartNotFound
	}
	userErrors := fn(c)
	return &domain.MutationResult{Cart: a.render(c), UserErrors: userErrors}, nil
}

// AddLines adds merchandise, merging with an existing line for the same
// variant. Lines exceeding stock are left unchanged and reported.
func (a *API) AddLines(ctx context.Context, cartID string, lines []domain.LineInput) (*domain.MutationResult, error) {
	return a.mutate(ctx, cartID, func(c *cartState) []domain.UserError {
		var userErrors []domain.UserError
		for i, in := range lines {
			v, ok := a.variants[in.MerchandiseID]
			if !ok {
				userErrors = append(userErrors, lineError(i, "merchandiseId", CodeInvalid, "The merchandise with id "+in.MerchandiseID+" does not exist."))
				continue
			}
			idx := c.findVariant(in.MerchandiseID)
			want := in.Quantity
			if idx >= 0 {
				want += c.lines[idx].quantity
			}
			if ue, ok := stockError(i, v, want); !ok {
				userErrors = append(userErrors, ue)
				continue
			}
			if idx >= 0 {
				c.lines[idx].quantity = want
				continue
			}
			c.lines = append(c.lines, line{id: "gid://shopify/CartLine/" + uuid.New().String(), variantID: v.ID, quantity: want})
		}
		return userErrors
	})
}

// UpdateLines sets line quantities; zero removes the line.
func (a *API) UpdateLines(ctx context.Context, cartID string, lines []domain.LineInput) (*domain.MutationResult, error) {
	return a.mutate(ctx, cartID, func(c *cartState) []domain.UserError {
		var userErrors []domain.UserError
		for i, in := range lines {
			idx := c.findLine(in.ID)
			if idx < 0 {
				userErrors = append(userErrors, lineError(i, "id", CodeLineNotFound, "The line with id "+in.ID+" does not exist."))
				continue
			}
			q := domain.ClampQuantity(in.Quantity)
			if q == 0 {
				c.lines = append(c.lines[:idx], c.lines[idx+1:]...)
				continue
			}
			if ue, ok := stockError(i, a.variants[c.lines[idx].variantID], q); !ok {
				userErrors = append(userErrors, ue)
				continue
			}
			c.lines[idx].quantity = q
		}
		return userErrors
	})
}

// RemoveLines removes lines from the cart.
func (a *API) RemoveLines(ctx context.Context, cartID string, lineIDs []string) (*domain.MutationResult, error) {
	return a.mutate(ctx, cartID, func(c *cartState) []domain.UserError {
		var userErrors []domain.UserError
		for i, id := range lineIDs {
			idx := c.findLine(id)
			if idx < 0 {
				userErrors = append(userErrors, domain.UserError{
					Field:   []string{"lineIds", fmt.Sprint(i)},
					Code:    CodeLineNotFound,
					Message: "The line with id " + id + " does not exist.",
				})
				continue
			}
			c.lines = append(c.lines[:idx], c.lines[idx+1:]...)
		}
		return userErrors
	})
}

// UpdateDiscountCodes replaces the discount codes. Unknown codes are kept on
// the cart and marked not applicable; they do not change the total.
func (a *API) UpdateDiscountCodes(ctx context.Context, cartID string, codes []string) (*domain.MutationResult, error) {
	return a.mutate(ctx, cartID, func(c *cartState) []domain.UserError {
		c.discountCodes = dedupe(codes)
		return nil
	})
}

// UpdateGiftCardCodes replaces the gift card codes. Unknown codes are
// rejected with a user error.
func (a *API) UpdateGiftCardCodes(ctx context.Context, cartID string, codes []string) (*domain.MutationResult, error) {
	return a.mutate(ctx, cartID, func(c *cartState) []domain.UserError {
		var userErrors []domain.UserError
		kept := make([]string, 0, len(codes))
		for i, code := range dedupe(codes) {
			if _, ok := a.giftCardBalance(code); !ok {
				userErrors = append(userErrors, domain.UserError{
					Field:   []string{"giftCardCodes", fmt.Sprint(i)},
					Code:    CodeGiftCardNotFound,
					Message: "Gift card code is invalid.",
				})
				continue
			}
			kept = append(kept, code)
		}
		c.giftCardCodes = kept
		return userErrors
	})
}

func (a *API) giftCardBalance(code string) (int64, bool) {
	for k, v := range a.catalog.GiftCardBalances {
		if strings.EqualFold(k, code) {
			return v, true
		}
	}
	return 0, false
}

func (a *API) discountPercent(code string) (int64, bool) {
	for k, v := range a.catalog.DiscountPercent {
		if strings.EqualFold(k, code) {
			return v, true
		}
	}
	return 0, false
}

// render prices the cart. All arithmetic happens in integer cents.
func (a *API) render(c *cartState) *domain.Cart {
	currency := a.catalog.Currency
	cart := &domain.Cart{
		ID:               c.id,
		Lines:            make([]domain.CartLine, 0, len(c.lines)),
		DiscountCodes:    make([]domain.DiscountCode, 0, len(c.discountCodes)),
		AppliedGiftCards: make([]domain.AppliedGiftCard, 0, len(c.giftCardCodes)),
	}
	if a.catalog.CheckoutBaseURL != "" {
		cart.CheckoutURL = strings.TrimRight(a.catalog.CheckoutBaseURL, "/") + "/cart/c/" + strings.TrimPrefix(c.id, "gid://shopify/Cart/")
	}

	var subtotal int64
	for _, l := range c.lines {
		v := a.variants[l.variantID]
		lineTotal := v.PriceCents * int64(l.quantity)
		subtotal += lineTotal
		cart.TotalQuantity += l.quantity
		cart.Lines = append(cart.Lines, domain.CartLine{
			ID:       l.id,
			Quantity: l.quantity,
			Merchandise: domain.Merchandise{
				ID:                v.ID,
				Title:             v.Title,
				ProductTitle:      v.ProductTitle,
				ProductHandle:     v.Handle,
				QuantityAvailable: v.Available,
			},
			Cost: domain.LineCost{
				AmountPerQuantity: money(v.PriceCents, currency),
				TotalAmount:       money(lineTotal, currency),
			},
		})
	}

	total := subtotal
	for _, code := range c.discountCodes {
		pct, ok := a.discountPercent(code)
		applicable := ok && subtotal > 0
		if applicable {
			total -= subtotal * pct / 100
		}
		cart.DiscountCodes = append(cart.DiscountCodes, domain.DiscountCode{Code: code, Applicable: applicable})
	}

	for _, code := range c.giftCardCodes {
		balance, _ := a.giftCardBalance(code)
		used := min(balance, total)
		total -= used
		cart.AppliedGiftCards = append(cart.AppliedGiftCards, domain.AppliedGiftCard{
			ID:             "gid://shopify/AppliedGiftCard/" + domain.RedactGiftCardCode(code),
			LastCharacters: domain.RedactGiftCardCode(code),
			AmountUsed:     moneyPtr(used, currency),
		})
	}

	if len(c.lines) > 0 {
		cart.Cost.SubtotalAmount = moneyPtr(subtotal, currency)
		cart.Cost.TotalAmount = moneyPtr(total, currency)
	}
	return cart
}

func (c *cartState) findLine(id string) int {
	for i := range c.lines {
		if c.lines[i].id == id {
			return i
		}
	}
	return -1
}

func (c *cartState) findVariant(variantID string) int {
	for i := range c.lines {
		if c.lines[i].variantID == variantID {
			return i
		}
	}
	return -1
}

func stockError(i int, v Variant, want int) (domain.UserError, bool) {
	if v.Available == nil || want <= *v.Available {
		return domain.UserError{}, true
	}
	return lineError(i, "quantity", CodeNotEnoughStock,
		fmt.Sprintf("Only %d items were added to your cart due to availability.", *v.Available)), false
}

func lineError(i int, field, code, message string) domain.UserError {
	return domain.UserError{Field: []string{"lines", fmt.Sprint(i), field}, Code: code, Message: message}
}

func dedupe(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		key := strings.ToUpper(code)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, code)
	}
	return out
}

func money(cents int64, currency string) domain.Money {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return domain.Money{Amount: fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100), CurrencyCode: currency}
}

func moneyPtr(cents int64, currency string) *domain.Money {
	m := money(cents, currency)
	return &m
}

// Carts returns the IDs of all carts the mock holds, sorted.
func (a *API) Carts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]string, 0, len(a.carts))
	for id := range a.carts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
