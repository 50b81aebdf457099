package coalescer

import (
	"sort"
	"strings"

	"github.com/utafrali/storefront/services/storefront/internal/domain"
)

// optimisticLinePrefix marks lines that exist only in a projection.
const optimisticLinePrefix = "optimistic:"

// OptimisticLineID is the placeholder line ID used for merchandise added by a
// pending mutation before the commerce API has assigned a real one.
func OptimisticLineID(merchandiseID string) string {
	return optimisticLinePrefix + merchandiseID
}

// IsOptimisticLineID reports whether id is a placeholder from OptimisticLineID.
func IsOptimisticLineID(id string) bool {
	return strings.HasPrefix(id, optimisticLinePrefix)
}

// Project overlays pending mutations on the last authoritative cart. Pending
// mutations are applied in submission order. Neither argument is modified.
//
// Costs, discount applicability and gift card amounts are copied from the
// snapshot as is; only the commerce API computes them.
func Project(snapshot *domain.Cart, pending []domain.PendingMutation) *domain.Cart {
	var cart *domain.Cart
	if snapshot == nil {
		cart = domain.NewEmptyCart()
	} else {
		cart = snapshot.Clone()
	}
	if len(pending) == 0 {
		return cart
	}

	ordered := make([]domain.PendingMutation, len(pending))
	copy(ordered, pending)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })

	for _, p := range ordered {
		apply(cart, p.Mutation)
	}

	cart.Optimistic = true
	cart.TotalQuantity = cart.LineQuantity()
	return cart
}

func apply(cart *domain.Cart, m domain.Mutation) {
	switch m.Kind {
	case domain.KindAdd:
		for _, in := range m.Lines {
			if idx := cart.FindMerchandiseIndex(in.MerchandiseID); idx >= 0 {
				cart.Lines[idx].Quantity += in.Quantity
				cart.Lines[idx].Optimistic = true
				continue
			}
			cart.Lines = append(cart.Lines, domain.CartLine{
				ID:          OptimisticLineID(in.MerchandiseID),
				Merchandise: domain.Merchandise{ID: in.MerchandiseID},
				Quantity:    in.Quantity,
				Optimistic:  true,
			})
		}
	case domain.KindUpdate:
		for _, in := range m.Lines {
			idx := cart.FindLineIndex(in.ID)
			if idx < 0 {
				continue
			}
			q := domain.ClampQuantity(in.Quantity)
			if q == 0 {
				removeLine(cart, idx)
				continue
			}
			cart.Lines[idx].Quantity = q
			cart.Lines[idx].Optimistic = true
		}
	case domain.KindRemove:
		for _, id := range m.LineIDs {
			if idx := cart.FindLineIndex(id); idx >= 0 {
				removeLine(cart, idx)
			}
		}
	case domain.KindDiscountUpdate:
		codes := make([]domain.DiscountCode, 0, len(m.DiscountCodes))
		for _, code := range m.DiscountCodes {
			codes = append(codes, domain.DiscountCode{
				Code:       code,
				Applicable: knownApplicable(cart.DiscountCodes, code),
			})
		}
		cart.DiscountCodes = codes
	case domain.KindGiftCardUpdate:
		cards := make([]domain.AppliedGiftCard, 0, len(m.GiftCardCodes))
		for _, code := range m.GiftCardCodes {
			last := domain.RedactGiftCardCode(code)
			if existing, ok := findGiftCard(cart.AppliedGiftCards, last); ok {
				cards = append(cards, existing)
				continue
			}
			cards = append(cards, domain.AppliedGiftCard{LastCharacters: last})
		}
		cart.AppliedGiftCards = cards
	}
}

func removeLine(cart *domain.Cart, idx int) {
	cart.Lines = append(cart.Lines[:idx], cart.Lines[idx+1:]...)
}

// knownApplicable keeps the applicability the commerce API last reported for
// a code. Codes it has not seen yet are shown as not applicable.
func knownApplicable(current []domain.DiscountCode, code string) bool {
	for _, dc := range current {
		if strings.EqualFold(dc.Code, code) {
			return dc.Applicable
		}
	}
	return false
}

func findGiftCard(cards []domain.AppliedGiftCard, last string) (domain.AppliedGiftCard, bool) {
	if last == "" {
		return domain.AppliedGiftCard{}, false
	}
	for _, c := range cards {
		if strings.EqualFold(c.LastCharacters, last) {
			return c, true
		}
	}
	return domain.AppliedGiftCard{}, false
}
