package graphql

import (
	"github.com/utafrali/storefront/services/storefront/internal/domain"
)

// Wire types of the Storefront API. Only the fields selected by cartFragment
// are decoded.

type gqlMoney struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

type gqlCartLine struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
	Cost     struct {
		AmountPerQuantity          gqlMoney  `json:"amountPerQuantity"`
		TotalAmount                gqlMoney  `json:"totalAmount"`
		CompareAtAmountPerQuantity *gqlMoney `json:"compareAtAmountPerQuantity"`
	} `json:"cost"`
	Merchandise struct {
		ID                string `json:"id"`
		Title             string `json:"title"`
		QuantityAvailable *int   `json:"quantityAvailable"`
		SelectedOptions   []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"selectedOptions"`
		Image *struct {
			URL string `json:"url"`
		} `json:"image"`
		Product struct {
			Title  string `json:"title"`
			Handle string `json:"handle"`
		} `json:"product"`
	} `json:"merchandise"`
}

type gqlCart struct {
	ID            string `json:"id"`
	CheckoutURL   string `json:"checkoutUrl"`
	TotalQuantity int    `json:"totalQuantity"`
	Cost          struct {
		SubtotalAmount *gqlMoney `json:"subtotalAmount"`
		TotalAmount    *gqlMoney `json:"totalAmount"`
		TotalTaxAmount *gqlMoney `json:"totalTaxAmount"`
	} `json:"cost"`
	DiscountCodes []struct {
		Code       string `json:"code"`
		Applicable bool   `json:"applicable"`
	} `json:"discountCodes"`
	AppliedGiftCards []struct {
		ID             string    `json:"id"`
		LastCharacters string    `json:"lastCharacters"`
		AmountUsed     *gqlMoney `json:"amountUsed"`
	} `json:"appliedGiftCards"`
	Lines struct {
		Edges []struct {
			Node gqlCartLine `json:"node"`
		} `json:"edges"`
	} `json:"lines"`
}

type gqlUserError struct {
	Field   []string `json:"field"`
	Code    string   `json:"code"`
	Message string   `json:"message"`
}

// gqlPayload is the shape shared by every cart mutation payload.
type gqlPayload struct {
	Cart       *gqlCart       `json:"cart"`
	UserErrors []gqlUserError `json:"userErrors"`
}

func toMoney(m *gqlMoney) *domain.Money {
	if m == nil {
		return nil
	}
	return &domain.Money{Amount: m.Amount, CurrencyCode: m.CurrencyCode}
}

func toCart(c *gqlCart) *domain.Cart {
	if c == nil {
		return nil
	}
	cart := &domain.Cart{
		ID:          c.ID,
		CheckoutURL: c.CheckoutURL,
		Cost: domain.CartCost{
			SubtotalAmount: toMoney(c.Cost.SubtotalAmount),
			TotalAmount:    toMoney(c.Cost.TotalAmount),
			TotalTaxAmount: toMoney(c.Cost.TotalTaxAmount),
		},
		TotalQuantity:    c.TotalQuantity,
		Lines:            make([]domain.CartLine, 0, len(c.Lines.Edges)),
		DiscountCodes:    make([]domain.DiscountCode, 0, len(c.DiscountCodes)),
		AppliedGiftCards: make([]domain.AppliedGiftCard, 0, len(c.AppliedGiftCards)),
	}

	for _, e := range c.Lines.Edges {
		cart.Lines = append(cart.Lines, toLine(e.Node))
	}
	for _, dc := range c.DiscountCodes {
		cart.DiscountCodes = append(cart.DiscountCodes, domain.DiscountCode{Code: dc.Code, Applicable: dc.Applicable})
	}
	for _, gc := range c.AppliedGiftCards {
		cart.AppliedGiftCards = append(cart.AppliedGiftCards, domain.AppliedGiftCard{
			ID:             gc.ID,
			LastCharacters: gc.LastCharacters,
			AmountUsed:     toMoney(gc.AmountUsed),
		})
	}
	return cart
}

func toLine(n gqlCartLine) domain.CartLine {
	line := domain.CartLine{
		ID:       n.ID,
		Quantity: n.Quantity,
		Merchandise: domain.Merchandise{
			ID:                n.Merchandise.ID,
			Title:             n.Merchandise.Title,
			ProductTitle:      n.Merchandise.Product.Title,
			ProductHandle:     n.Merchandise.Product.Handle,
			QuantityAvailable: n.Merchandise.QuantityAvailable,
		},
		Cost: domain.LineCost{
			AmountPerQuantity: domain.Money{Amount: n.Cost.AmountPerQuantity.Amount, CurrencyCode: n.Cost.AmountPerQuantity.CurrencyCode},
			TotalAmount:       domain.Money{Amount: n.Cost.TotalAmount.Amount, CurrencyCode: n.Cost.TotalAmount.CurrencyCode},
			CompareAtAmount:   toMoney(n.Cost.CompareAtAmountPerQuantity),
		},
	}
	if n.Merchandise.Image != nil {
		line.Merchandise.ImageURL = n.Merchandise.Image.URL
	}
	for _, o := range n.Merchandise.SelectedOptions {
		line.Merchandise.SelectedOptions = append(line.Merchandise.SelectedOptions, domain.SelectedOption{Name: o.Name, Value: o.Value})
	}
	return line
}

func toResult(p gqlPayload) *domain.MutationResult {
	res := &domain.MutationResult{Cart: toCart(p.Cart)}
	for _, ue := range p.UserErrors {
		res.UserErrors = append(res.UserErrors, domain.UserError{Field: ue.Field, Code: ue.Code, Message: ue.Message})
	}
	return res
}
