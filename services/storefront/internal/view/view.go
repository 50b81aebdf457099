// Package view turns a cart into what the storefront displays: line controls
// bound to the mutations they submit, a cost summary and redacted gift cards.
package view

import (
	"strings"

	"github.com/utafrali/storefront/services/storefront/internal/domain"
)

// State tells whether the cart has anything to show.
type State string

const (
	StateEmpty State = "empty"
	StateLines State = "lines"
)

// missingAmount is shown for an amount the commerce API did not report.
const missingAmount = "-"

// giftCardMask prefixes the visible characters of a gift card code.
const giftCardMask = "***"

// Control is a user action bound to the mutation it submits.
type Control struct {
	Key      string          `json:"key"`
	Quantity int             `json:"quantity"`
	Disabled bool            `json:"disabled"`
	Mutation domain.Mutation `json:"-"`
}

// Line is the display form of a cart line.
type Line struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	ProductTitle string   `json:"product_title"`
	Options      []string `json:"options,omitempty"`
	ImageURL     string   `json:"image_url,omitempty"`
	Quantity     int      `json:"quantity"`
	UnitPrice    string   `json:"unit_price"`
	Total        string   `json:"total"`
	CompareAt    string   `json:"compare_at,omitempty"`
	Optimistic   bool     `json:"optimistic"`

	Decrement Control `json:"decrement"`
	Increment Control `json:"increment"`
	Remove    Control `json:"remove"`
}

// Summary holds the cart totals.
type Summary struct {
	Subtotal string `json:"subtotal"`
	Tax      string `json:"tax"`
	Total    string `json:"total"`
}

// Discount is the display form of a discount code.
type Discount struct {
	Code       string `json:"code"`
	Applicable bool   `json:"applicable"`
}

// GiftCard is the display form of an applied gift card.
type GiftCard struct {
	ID         string `json:"id"`
	Code       string `json:"code"`
	AmountUsed string `json:"amount_used"`
}

// Cart is the display form of a cart.
type Cart struct {
	State         State      `json:"state"`
	Lines         []Line     `json:"lines"`
	Summary       Summary    `json:"summary"`
	Discounts     []Discount `json:"discounts"`
	GiftCards     []GiftCard `json:"gift_cards"`
	CheckoutURL   string     `json:"checkout_url,omitempty"`
	TotalQuantity int        `json:"total_quantity"`
	Optimistic    bool       `json:"optimistic"`
}

// Build renders c. A nil cart renders as empty.
func Build(c *domain.Cart) *Cart {
	if c == nil {
		c = domain.NewEmptyCart()
	}

	out := &Cart{
		State:         StateLines,
		Lines:         make([]Line, 0, len(c.Lines)),
		Discounts:     make([]Discount, 0, len(c.DiscountCodes)),
		GiftCards:     make([]GiftCard, 0, len(c.AppliedGiftCards)),
		CheckoutURL:   c.CheckoutURL,
		TotalQuantity: c.TotalQuantity,
		Optimistic:    c.Optimistic,
		Summary: Summary{
			Subtotal: formatMoney(c.Cost.SubtotalAmount),
			Tax:      formatMoney(c.Cost.TotalTaxAmount),
			Total:    formatMoney(c.Cost.TotalAmount),
		},
	}
	if c.IsEmpty() {
		out.State = StateEmpty
	}

	for _, l := range c.Lines {
		out.Lines = append(out.Lines, buildLine(l))
	}
	for _, d := range c.DiscountCodes {
		out.Discounts = append(out.Discounts, Discount{Code: d.Code, Applicable: d.Applicable})
	}
	for _, g := range c.AppliedGiftCards {
		out.GiftCards = append(out.GiftCards, GiftCard{
			ID:         g.ID,
			Code:       MaskGiftCard(g.LastCharacters),
			AmountUsed: formatMoney(g.AmountUsed),
		})
	}
	return out
}

func buildLine(l domain.CartLine) Line {
	line := Line{
		ID:           l.ID,
		Title:        l.Merchandise.Title,
		ProductTitle: l.Merchandise.ProductTitle,
		ImageURL:     l.Merchandise.ImageURL,
		Quantity:     l.Quantity,
		UnitPrice:    formatAmount(l.Cost.AmountPerQuantity),
		Total:        formatAmount(l.Cost.TotalAmount),
		Optimistic:   l.Optimistic,
		Decrement:    Decrement(l),
		Increment:    Increment(l),
		Remove:       Remove(l),
	}
	if l.Cost.CompareAtAmount != nil {
		line.CompareAt = formatAmount(*l.Cost.CompareAtAmount)
	}
	for _, o := range l.Merchandise.SelectedOptions {
		line.Options = append(line.Options, o.Name+": "+o.Value)
	}
	return line
}

// Decrement returns the control lowering the line's quantity by one. It is
// disabled at quantity one; removing a line is the remove control's job.
func Decrement(l domain.CartLine) Control {
	return quantityControl(l, max(0, l.Quantity-1), l.Quantity <= 1 || l.Optimistic)
}

// Increment returns the control raising the line's quantity by one.
func Increment(l domain.CartLine) Control {
	return quantityControl(l, l.Quantity+1, l.Optimistic || l.Quantity >= domain.MaxQuantityPerLine)
}

// Remove returns the control removing the line.
func Remove(l domain.CartLine) Control {
	m := domain.Mutation{Kind: domain.KindRemove, LineIDs: []string{l.ID}}
	return Control{Key: m.Key(), Disabled: l.Optimistic, Mutation: m}
}

func quantityControl(l domain.CartLine, target int, disabled bool) Control {
	m := domain.Mutation{
		Kind:  domain.KindUpdate,
		Lines: []domain.LineInput{{ID: l.ID, Quantity: target}},
	}
	return Control{Key: m.Key(), Quantity: target, Disabled: disabled, Mutation: m}
}

// MaskGiftCard renders the visible characters of a gift card code.
func MaskGiftCard(lastCharacters string) string {
	return giftCardMask + lastCharacters
}

func formatMoney(m *domain.Money) string {
	if m == nil {
		return missingAmount
	}
	return formatAmount(*m)
}

func formatAmount(m domain.Money) string {
	if m.Amount == "" {
		return missingAmount
	}
	return strings.TrimSpace(m.Amount + " " + m.CurrencyCode)
}
