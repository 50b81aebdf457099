package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCart() *Cart {
	return &Cart{
		ID: "cart-1",
		Lines: []CartLine{
			{
				ID:          "line-1",
				Merchandise: Merchandise{ID: "variant-1", ProductTitle: "Snowboard", SelectedOptions: []SelectedOption{{Name: "Size", Value: "154"}}},
				Quantity:    2,
				Cost:        LineCost{TotalAmount: Money{Amount: "20.0", CurrencyCode: "USD"}},
			},
			{
				ID:          "line-2",
				Merchandise: Merchandise{ID: "variant-2", ProductTitle: "Wax"},
				Quantity:    3,
			},
		},
		DiscountCodes:    []DiscountCode{{Code: "SAVE10", Applicable: true}},
		AppliedGiftCards: []AppliedGiftCard{{ID: "gc-1", LastCharacters: "1234"}},
		TotalQuantity:    5,
	}
}

func TestCart_LineQuantity(t *testing.T) {
	assert.Equal(t, 5, sampleCart().LineQuantity())
	assert.Equal(t, 0, NewEmptyCart().LineQuantity())
}

func TestCart_Consistent(t *testing.T) {
	cart := sampleCart()
	assert.True(t, cart.Consistent())

	cart.TotalQuantity = 7
	assert.False(t, cart.Consistent())

	// Optimistic carts are allowed to disagree while a mutation is pending.
	cart.Optimistic = true
	assert.True(t, cart.Consistent())
}

func TestCart_IsEmpty(t *testing.T) {
	var nilCart *Cart
	assert.True(t, nilCart.IsEmpty())
	assert.True(t, NewEmptyCart().IsEmpty())
	assert.False(t, sampleCart().IsEmpty())
}

func TestCart_FindLineIndex(t *testing.T) {
	cart := sampleCart()
	assert.Equal(t, 1, cart.FindLineIndex("line-2"))
	assert.Equal(t, -1, cart.FindLineIndex("missing"))
	assert.Equal(t, 0, cart.FindMerchandiseIndex("variant-1"))
	assert.Equal(t, -1, cart.FindMerchandiseIndex("variant-9"))
}

func TestCart_CloneIsDeep(t *testing.T) {
	original := sampleCart()
	clone := original.Clone()
	require.NotNil(t, clone)

	clone.Lines[0].Quantity = 99
	clone.Lines[0].Merchandise.SelectedOptions[0].Value = "158"
	clone.DiscountCodes[0].Applicable = false
	clone.AppliedGiftCards = append(clone.AppliedGiftCards, AppliedGiftCard{ID: "gc-2"})

	assert.Equal(t, 2, original.Lines[0].Quantity)
	assert.Equal(t, "154", original.Lines[0].Merchandise.SelectedOptions[0].Value)
	assert.True(t, original.DiscountCodes[0].Applicable)
	assert.Len(t, original.AppliedGiftCards, 1)

	var nilCart *Cart
	assert.Nil(t, nilCart.Clone())
}

func TestRedactGiftCardCode(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"ABCD1234", "1234"},
		{"abcd-efgh-ijkl-mnop", "mnop"},
		{"ABCD", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got := RedactGiftCardCode(tt.code)
			assert.Equal(t, tt.want, got)
			if tt.code != "" {
				assert.NotEqual(t, tt.code, got)
			}
		})
	}
}
