package domain

// Money is a monetary amount exactly as reported by the commerce API. Amount is
// a decimal string; the storefront never does arithmetic on it.
type Money struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currency_code"`
}

// SelectedOption is a single variant option such as Size: M.
type SelectedOption struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Merchandise is the purchasable variant a cart line refers to.
type Merchandise struct {
	ID                string           `json:"id"`
	Title             string           `json:"title"`
	ProductTitle      string           `json:"product_title"`
	ProductHandle     string           `json:"product_handle,omitempty"`
	ImageURL          string           `json:"image_url,omitempty"`
	SelectedOptions   []SelectedOption `json:"selected_options,omitempty"`
	QuantityAvailable *int             `json:"quantity_available,omitempty"`
}

// LineCost is the per-line cost breakdown computed by the commerce API.
type LineCost struct {
	AmountPerQuantity Money  `json:"amount_per_quantity"`
	TotalAmount       Money  `json:"total_amount"`
	CompareAtAmount   *Money `json:"compare_at_amount,omitempty"`
}

// CartLine is one line of a cart.
type CartLine struct {
	ID          string      `json:"id"`
	Merchandise Merchandise `json:"merchandise"`
	Quantity    int         `json:"quantity"`
	Cost        LineCost    `json:"cost"`
	// Optimistic is true while a pending mutation touching this line has not
	// been confirmed by the commerce API.
	Optimistic bool `json:"optimistic"`
}

// CartCost holds the aggregate amounts of a cart. Nil amounts were not
// reported by the commerce API.
type CartCost struct {
	SubtotalAmount *Money `json:"subtotal_amount,omitempty"`
	TotalTaxAmount *Money `json:"total_tax_amount,omitempty"`
	TotalAmount    *Money `json:"total_amount,omitempty"`
}

// DiscountCode is a discount code applied to the cart.
type DiscountCode struct {
	Code       string `json:"code"`
	Applicable bool   `json:"applicable"`
}

// AppliedGiftCard is a gift card applied to the cart. Only the last
// characters of the code are ever held.
type AppliedGiftCard struct {
	ID             string `json:"id"`
	LastCharacters string `json:"last_characters"`
	AmountUsed     *Money `json:"amount_used,omitempty"`
}

// Cart is a shopping cart as returned by the commerce API, or a projection of
// one with pending mutations applied.
type Cart struct {
	ID               string            `json:"id"`
	Lines            []CartLine        `json:"lines"`
	Cost             CartCost          `json:"cost"`
	DiscountCodes    []DiscountCode    `json:"discount_codes"`
	AppliedGiftCards []AppliedGiftCard `json:"applied_gift_cards"`
	CheckoutURL      string            `json:"checkout_url,omitempty"`
	TotalQuantity    int               `json:"total_quantity"`
	Optimistic       bool              `json:"optimistic"`
}

// NewEmptyCart returns a cart with no lines, used before the commerce API has
// issued a cart for the session.
func NewEmptyCart() *Cart {
	return &Cart{
		Lines:            []CartLine{},
		DiscountCodes:    []DiscountCode{},
		AppliedGiftCards: []AppliedGiftCard{},
	}
}

// LineQuantity returns the sum of all line quantities.
func (c *Cart) LineQuantity() int {
	var total int
	for _, line := range c.Lines {
		total += line.Quantity
	}
	return total
}

// Consistent reports whether TotalQuantity agrees with the lines. Optimistic
// carts are exempt.
func (c *Cart) Consistent() bool {
	return c.Optimistic || c.TotalQuantity == c.LineQuantity()
}

// IsEmpty reports whether the cart holds no items.
func (c *Cart) IsEmpty() bool {
	return c == nil || c.TotalQuantity <= 0
}

// FindLineIndex returns the index of the line with the given ID, or -1.
func (c *Cart) FindLineIndex(lineID string) int {
	for i := range c.Lines {
		if c.Lines[i].ID == lineID {
			return i
		}
	}
	return -1
}

// FindMerchandiseIndex returns the index of the line holding the given
// merchandise, or -1.
func (c *Cart) FindMerchandiseIndex(merchandiseID string) int {
	for i := range c.Lines {
		if c.Lines[i].Merchandise.ID == merchandiseID {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of the cart.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	out := *c
	out.Lines = make([]CartLine, len(c.Lines))
	for i, line := range c.Lines {
		line.Merchandise.SelectedOptions = append([]SelectedOption(nil), line.Merchandise.SelectedOptions...)
		out.Lines[i] = line
	}
	out.DiscountCodes = append([]DiscountCode{}, c.DiscountCodes...)
	out.AppliedGiftCards = append([]AppliedGiftCard{}, c.AppliedGiftCards...)
	return &out
}

// UserError is a field-level error reported by the commerce API, such as an
// unknown discount code or insufficient inventory.
type UserError struct {
	Field   []string `json:"field,omitempty"`
	Code    string   `json:"code,omitempty"`
	Message string   `json:"message"`
}

// MutationResult is the authoritative answer to a cart mutation.
type MutationResult struct {
	Cart       *Cart       `json:"cart"`
	UserErrors []UserError `json:"user_errors,omitempty"`
}

// giftCardVisibleChars is how many trailing characters of a gift card code
// may be shown.
const giftCardVisibleChars = 4

// RedactGiftCardCode returns the trailing characters of a gift card code that
// may be displayed. Codes too short to keep anything hidden are fully masked.
func RedactGiftCardCode(code string) string {
	runes := []rune(code)
	if len(runes) <= giftCardVisibleChars {
		return ""
	}
	return string(runes[len(runes)-giftCardVisibleChars:])
}
