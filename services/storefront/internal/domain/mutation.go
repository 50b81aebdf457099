package domain

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// MutationKind identifies what a cart mutation does.
type MutationKind string

const (
	KindAdd            MutationKind = "add"
	KindUpdate         MutationKind = "update"
	KindRemove         MutationKind = "remove"
	KindDiscountUpdate MutationKind = "discount-update"
	KindGiftCardUpdate MutationKind = "gift-card-update"
)

// Cart limits enforced before a mutation leaves the storefront.
const (
	// MaxQuantityPerLine is the largest quantity a single line may request.
	MaxQuantityPerLine = 100
	// MaxLinesPerMutation bounds how many lines one mutation may touch.
	MaxLinesPerMutation = 50
	// MaxCodesPerMutation bounds discount and gift card code lists.
	MaxCodesPerMutation = 10
)

// keySeparator joins the parts of a mutation key.
const keySeparator = "-"

var (
	// ErrUnsupportedMutation is returned for a mutation kind the storefront does
	// not know. It signals a programming error in the caller.
	ErrUnsupportedMutation = fmt.Errorf("unsupported mutation kind: %w", apperrors.ErrInvalidInput)

	// ErrMutationPending is returned when a remove is submitted for a line that
	// already has a remove in flight.
	ErrMutationPending = fmt.Errorf("mutation already pending: %w", apperrors.ErrConflict)
)

// Valid reports whether k is a known mutation kind.
func (k MutationKind) Valid() bool {
	switch k {
	case KindAdd, KindUpdate, KindRemove, KindDiscountUpdate, KindGiftCardUpdate:
		return true
	default:
		return false
	}
}

// LineInput describes one line of an add or update mutation. Add uses
// MerchandiseID; update uses ID.
type LineInput struct {
	ID            string `json:"id,omitempty"`
	MerchandiseID string `json:"merchandise_id,omitempty"`
	Quantity      int    `json:"quantity"`
}

// Mutation is a user-initiated cart edit.
type Mutation struct {
	Kind          MutationKind `json:"kind"`
	Lines         []LineInput  `json:"lines,omitempty"`
	LineIDs       []string     `json:"line_ids,omitempty"`
	DiscountCodes []string     `json:"discount_codes,omitempty"`
	GiftCardCodes []string     `json:"gift_card_codes,omitempty"`
}

// TargetIDs returns the identifiers the mutation affects, in submission order.
// Add targets merchandise, update and remove target lines, and code updates
// target the cart as a whole.
func (m Mutation) TargetIDs() []string {
	switch m.Kind {
	case KindAdd:
		ids := make([]string, 0, len(m.Lines))
		for _, l := range m.Lines {
			ids = append(ids, l.MerchandiseID)
		}
		return ids
	case KindUpdate:
		ids := make([]string, 0, len(m.Lines))
		for _, l := range m.Lines {
			ids = append(ids, l.ID)
		}
		return ids
	case KindRemove:
		return append([]string(nil), m.LineIDs...)
	default:
		return nil
	}
}

// Key returns the coalescing key of the mutation.
func (m Mutation) Key() string {
	return MutationKey(m.Kind, m.TargetIDs())
}

// AffectsLine reports whether the mutation targets the given line ID.
func (m Mutation) AffectsLine(lineID string) bool {
	if m.Kind != KindUpdate && m.Kind != KindRemove {
		return false
	}
	for _, id := range m.TargetIDs() {
		if id == lineID {
			return true
		}
	}
	return false
}

var keyEscaper = strings.NewReplacer("%", "%25", keySeparator, "%2D")

// MutationKey derives the coalescing key for a mutation kind and the
// identifiers it affects. Identifiers keep their given order. Separators inside
// identifiers are escaped so different identifier lists never share a key.
func MutationKey(kind MutationKind, ids []string) string {
	parts := make([]string, 0, len(ids)+1)
	parts = append(parts, string(kind))
	for _, id := range ids {
		parts = append(parts, keyEscaper.Replace(id))
	}
	return strings.Join(parts, keySeparator)
}

// Validate checks the mutation before it is submitted. An unknown kind
// yields ErrUnsupportedMutation; malformed payloads yield an invalid input
// error.
func (m Mutation) Validate() error {
	if !m.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedMutation, m.Kind)
	}

	switch m.Kind {
	case KindAdd:
		if len(m.Lines) == 0 {
			return apperrors.InvalidInput("add requires at least one line")
		}
		for _, l := range m.Lines {
			if l.MerchandiseID == "" {
				return apperrors.InvalidInput("merchandise id is required")
			}
			if l.Quantity < 1 {
				return apperrors.InvalidInput("quantity must be greater than 0")
			}
			if l.Quantity > MaxQuantityPerLine {
				return apperrors.InvalidInput(fmt.Sprintf("quantity must not exceed %d", MaxQuantityPerLine))
			}
		}
	case KindUpdate:
		if len(m.Lines) == 0 {
			return apperrors.InvalidInput("update requires at least one line")
		}
		for _, l := range m.Lines {
			if l.ID == "" {
				return apperrors.InvalidInput("line id is required")
			}
			if l.Quantity > MaxQuantityPerLine {
				return apperrors.InvalidInput(fmt.Sprintf("quantity must not exceed %d", MaxQuantityPerLine))
			}
		}
	case KindRemove:
		if len(m.LineIDs) == 0 {
			return apperrors.InvalidInput("remove requires at least one line id")
		}
		for _, id := range m.LineIDs {
			if id == "" {
				return apperrors.InvalidInput("line id is required")
			}
		}
	case KindDiscountUpdate:
		if len(m.DiscountCodes) > MaxCodesPerMutation {
			return apperrors.InvalidInput(fmt.Sprintf("at most %d discount codes may be applied", MaxCodesPerMutation))
		}
	case KindGiftCardUpdate:
		if len(m.GiftCardCodes) > MaxCodesPerMutation {
			return apperrors.InvalidInput(fmt.Sprintf("at most %d gift card codes may be applied", MaxCodesPerMutation))
		}
	}

	if len(m.Lines) > MaxLinesPerMutation || len(m.LineIDs) > MaxLinesPerMutation {
		return apperrors.InvalidInput(fmt.Sprintf("a mutation must not touch more than %d lines", MaxLinesPerMutation))
	}
	return nil
}

// Normalized returns a copy of the mutation with quantities clamped at zero
// and blank codes dropped.
func (m Mutation) Normalized() Mutation {
	out := m
	if m.Lines != nil {
		out.Lines = make([]LineInput, len(m.Lines))
		for i, l := range m.Lines {
			l.Quantity = ClampQuantity(l.Quantity)
			out.Lines[i] = l
		}
	}
	out.LineIDs = append([]string(nil), m.LineIDs...)
	out.DiscountCodes = compactCodes(m.DiscountCodes)
	out.GiftCardCodes = compactCodes(m.GiftCardCodes)
	return out
}

func compactCodes(codes []string) []string {
	if codes == nil {
		return nil
	}
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// ClampQuantity floors a requested quantity at zero.
func ClampQuantity(q int) int {
	if q < 0 {
		return 0
	}
	return q
}

// PendingMutation is a submitted mutation whose authoritative response has
// not been applied yet.
type PendingMutation struct {
	Key         string       `json:"key"`
	Kind        MutationKind `json:"kind"`
	Generation  uint64       `json:"generation"`
	Seq         uint64       `json:"-"`
	Mutation    Mutation     `json:"mutation"`
	SubmittedAt time.Time    `json:"submitted_at"`
}
