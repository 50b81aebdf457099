package view

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/services/storefront/internal/domain"
)

func usd(amount string) *domain.Money {
	return &domain.Money{Amount: amount, CurrencyCode: "USD"}
}

func lineWith(id string, quantity int) domain.CartLine {
	return domain.CartLine{
		ID:       id,
		Quantity: quantity,
		Merchandise: domain.Merchandise{
			ID:              "gid://shopify/ProductVariant/2001",
			Title:           "Default Title",
			ProductTitle:    "Board Wax",
			SelectedOptions: []domain.SelectedOption{{Name: "Scent", Value: "Coconut"}},
		},
		Cost: domain.LineCost{
			AmountPerQuantity: *usd("10.00"),
			TotalAmount:       *usd("20.00"),
		},
	}
}

func TestBuild_EmptyCart(t *testing.T) {
	for name, c := range map[string]*domain.Cart{
		"nil":   nil,
		"empty": domain.NewEmptyCart(),
	} {
		t.Run(name, func(t *testing.T) {
			v := Build(c)
			assert.Equal(t, StateEmpty, v.State)
			assert.Empty(t, v.Lines)
			assert.Equal(t, "-", v.Summary.Total)
			assert.Empty(t, v.CheckoutURL)
		})
	}
}

func TestBuild_Lines(t *testing.T) {
	c := &domain.Cart{
		ID:            "gid://shopify/Cart/1",
		Lines:         []domain.CartLine{lineWith("gid://shopify/CartLine/1", 2)},
		TotalQuantity: 2,
		Cost: domain.CartCost{
			SubtotalAmount: usd("20.00"),
			TotalAmount:    usd("20.00"),
		},
		DiscountCodes: []domain.DiscountCode{{Code: "NOPE", Applicable: false}},
		CheckoutURL:   "https://checkout.example.com/cart/c/1",
	}

	v := Build(c)

	assert.Equal(t, StateLines, v.State)
	assert.Equal(t, Summary{Subtotal: "20.00 USD", Tax: "-", Total: "20.00 USD"}, v.Summary)
	assert.Equal(t, []Discount{{Code: "NOPE", Applicable: false}}, v.Discounts)
	assert.Equal(t, c.CheckoutURL, v.CheckoutURL)

	require.Len(t, v.Lines, 1)
	l := v.Lines[0]
	assert.Equal(t, "10.00 USD", l.UnitPrice)
	assert.Equal(t, "20.00 USD", l.Total)
	assert.Equal(t, []string{"Scent: Coconut"}, l.Options)
}

func TestBuild_LineControls(t *testing.T) {
	l := Build(&domain.Cart{
		Lines:         []domain.CartLine{lineWith("line1", 2)},
		TotalQuantity: 2,
	}).Lines[0]

	want := Line{}
	want.Decrement = Control{
		Key:      "update-line1",
		Quantity: 1,
		Mutation: domain.Mutation{Kind: domain.KindUpdate, Lines: []domain.LineInput{{ID: "line1", Quantity: 1}}},
	}
	want.Increment = Control{
		Key:      "update-line1",
		Quantity: 3,
		Mutation: domain.Mutation{Kind: domain.KindUpdate, Lines: []domain.LineInput{{ID: "line1", Quantity: 3}}},
	}
	want.Remove = Control{
		Key:      "remove-line1",
		Mutation: domain.Mutation{Kind: domain.KindRemove, LineIDs: []string{"line1"}},
	}

	if diff := cmp.Diff(want.Decrement, l.Decrement); diff != "" {
		t.Errorf("decrement mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want.Increment, l.Increment); diff != "" {
		t.Errorf("increment mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want.Remove, l.Remove); diff != "" {
		t.Errorf("remove mismatch (-want +got):\n%s", diff)
	}
}

func TestDecrement_FloorsAtOne(t *testing.T) {
	c := Decrement(lineWith("line1", 1))

	assert.True(t, c.Disabled)
	assert.Equal(t, 0, c.Quantity)
}

func TestControls_DisabledWhileOptimistic(t *testing.T) {
	l := lineWith("line1", 3)
	l.Optimistic = true

	assert.True(t, Decrement(l).Disabled)
	assert.True(t, Increment(l).Disabled)
	assert.True(t, Remove(l).Disabled)
}

func TestIncrement_DisabledAtLimit(t *testing.T) {
	assert.True(t, Increment(lineWith("line1", domain.MaxQuantityPerLine)).Disabled)
	assert.False(t, Increment(lineWith("line1", domain.MaxQuantityPerLine-1)).Disabled)
}

func TestBuild_GiftCardShowsLastCharactersOnly(t *testing.T) {
	code := "ABCD1234"
	c := &domain.Cart{
		Lines:         []domain.CartLine{lineWith("line1", 2)},
		TotalQuantity: 2,
		AppliedGiftCards: []domain.AppliedGiftCard{{
			ID:             "gid://shopify/AppliedGiftCard/1",
			LastCharacters: domain.RedactGiftCardCode(code),
			AmountUsed:     usd("5.00"),
		}},
	}

	v := Build(c)

	require.Len(t, v.GiftCards, 1)
	assert.Equal(t, "***1234", v.GiftCards[0].Code)
	assert.Equal(t, "5.00 USD", v.GiftCards[0].AmountUsed)
	assert.NotContains(t, v.GiftCards[0].Code, "ABCD")
}

func TestBuild_OptimisticCartKeepsRemoteTotals(t *testing.T) {
	c := &domain.Cart{
		Lines:         []domain.CartLine{lineWith("line1", 4)},
		TotalQuantity: 4,
		Optimistic:    true,
		Cost:          domain.CartCost{TotalAmount: usd("20.00")},
	}

	v := Build(c)

	assert.True(t, v.Optimistic)
	assert.Equal(t, 4, v.TotalQuantity)
	assert.Equal(t, "20.00 USD", v.Summary.Total)
}
