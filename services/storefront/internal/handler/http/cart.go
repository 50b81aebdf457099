package http

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/pkg/middleware"
	"github.com/utafrali/storefront/pkg/validator"
	"github.com/utafrali/storefront/services/storefront/internal/coalescer"
	"github.com/utafrali/storefront/services/storefront/internal/domain"
	"github.com/utafrali/storefront/services/storefront/internal/service"
	"github.com/utafrali/storefront/services/storefront/internal/view"
)

// CartHandler handles HTTP requests for cart endpoints.
type CartHandler struct {
	service *service.CartService
	logger  *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(svc *service.CartService, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// LineInputRequest is one line of an add or update mutation.
type LineInputRequest struct {
	ID            string `json:"id" validate:"max=512"`
	MerchandiseID string `json:"merchandise_id" validate:"omitempty,gid,max=512"`
	Quantity      int    `json:"quantity" validate:"gte=0,lte=100"`
}

// MutationRequest is the JSON request body for submitting a cart mutation.
type MutationRequest struct {
	Kind          string             `json:"kind" validate:"required"`
	Lines         []LineInputRequest `json:"lines" validate:"max=50,dive"`
	LineIDs       []string           `json:"line_ids" validate:"max=50,dive,required"`
	DiscountCode  string             `json:"discount_code" validate:"max=255"`
	DiscountCodes []string           `json:"discount_codes" validate:"max=10,dive,max=255"`
	GiftCardCodes []string           `json:"gift_card_codes" validate:"max=10,dive,max=255"`
	Async         bool               `json:"async"`
}

// CodesRequest is the JSON request body for replacing discount or gift card
// codes.
type CodesRequest struct {
	Codes []string `json:"codes" validate:"max=10,dive,max=255"`
}

func (req MutationRequest) toMutation() domain.Mutation {
	m := domain.Mutation{
		Kind:          domain.MutationKind(req.Kind),
		LineIDs:       req.LineIDs,
		DiscountCodes: req.DiscountCodes,
		GiftCardCodes: req.GiftCardCodes,
	}
	if req.DiscountCode != "" {
		m.DiscountCodes = append([]string{req.DiscountCode}, m.DiscountCodes...)
	}
	for _, l := range req.Lines {
		m.Lines = append(m.Lines, domain.LineInput{ID: l.ID, MerchandiseID: l.MerchandiseID, Quantity: l.Quantity})
	}
	return m
}

// --- Response DTOs ---

const statusPending = "pending"

// MutationResponse reports the fate of a submitted mutation.
type MutationResponse struct {
	Status     string             `json:"status"`
	Key        string             `json:"key"`
	Generation uint64             `json:"generation"`
	Cart       *view.Cart         `json:"cart"`
	Errors     []domain.UserError `json:"errors,omitempty"`
}

// --- Handlers ---

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionIDFromContext(r.Context())

	cart, err := h.service.GetCart(r.Context(), sessionID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: view.Build(cart)})
}

// SubmitMutation handles POST /api/v1/cart/mutations
func (h *CartHandler) SubmitMutation(w http.ResponseWriter, r *http.Request) {
	var req MutationRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	h.submit(w, r, req.toMutation(), req.Async)
}

// IncrementLine handles POST /api/v1/cart/lines/{lineId}/increment
func (h *CartHandler) IncrementLine(w http.ResponseWriter, r *http.Request) {
	h.activate(w, r, view.Increment, "quantity is already at the maximum")
}

// DecrementLine handles POST /api/v1/cart/lines/{lineId}/decrement
func (h *CartHandler) DecrementLine(w http.ResponseWriter, r *http.Request) {
	h.activate(w, r, view.Decrement, "quantity cannot go below 1, remove the line instead")
}

// RemoveLine handles DELETE /api/v1/cart/lines/{lineId}
func (h *CartHandler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	h.activate(w, r, view.Remove, "")
}

// UpdateDiscountCodes handles PUT /api/v1/cart/discount-codes
func (h *CartHandler) UpdateDiscountCodes(w http.ResponseWriter, r *http.Request) {
	h.replaceCodes(w, r, domain.KindDiscountUpdate)
}

// UpdateGiftCardCodes handles PUT /api/v1/cart/gift-card-codes
func (h *CartHandler) UpdateGiftCardCodes(w http.ResponseWriter, r *http.Request) {
	h.replaceCodes(w, r, domain.KindGiftCardUpdate)
}

func (h *CartHandler) replaceCodes(w http.ResponseWriter, r *http.Request, kind domain.MutationKind) {
	var req CodesRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	m := domain.Mutation{Kind: kind}
	if kind == domain.KindDiscountUpdate {
		m.DiscountCodes = req.Codes
	} else {
		m.GiftCardCodes = req.Codes
	}
	h.submit(w, r, m, asyncRequested(r))
}

// activate submits the mutation bound to one of a line's controls. A disabled
// control is refused: 409 while the line has an unconfirmed mutation, 400
// when the control is at its limit.
func (h *CartHandler) activate(w http.ResponseWriter, r *http.Request, control func(domain.CartLine) view.Control, limitMessage string) {
	lineID, err := url.PathUnescape(chi.URLParam(r, "lineId"))
	if err != nil || lineID == "" {
		httputil.WriteErrorCode(w, r, http.StatusBadRequest, "INVALID_INPUT", "lineId is required")
		return
	}

	line, ok, err := h.findLine(r, lineID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if !ok {
		httputil.WriteErrorCode(w, r, http.StatusNotFound, "NOT_FOUND", "line not found")
		return
	}

	c := control(line)
	if c.Disabled {
		if line.Optimistic {
			writeMutationPending(w, r)
			return
		}
		httputil.WriteErrorCode(w, r, http.StatusBadRequest, "INVALID_INPUT", limitMessage)
		return
	}

	h.submit(w, r, c.Mutation, asyncRequested(r))
}

// findLine looks the line up in the session's current view, fetching the cart
// when the session has not seen it yet.
func (h *CartHandler) findLine(r *http.Request, lineID string) (domain.CartLine, bool, error) {
	sessionID := middleware.SessionIDFromContext(r.Context())

	cart := h.service.View(sessionID)
	if idx := cart.FindLineIndex(lineID); idx >= 0 {
		return cart.Lines[idx], true, nil
	}

	cart, err := h.service.GetCart(r.Context(), sessionID)
	if err != nil {
		return domain.CartLine{}, false, err
	}
	if idx := cart.FindLineIndex(lineID); idx >= 0 {
		return cart.Lines[idx], true, nil
	}
	return domain.CartLine{}, false, nil
}

// submit hands m to the coalescer. Unless async, it waits for the mutation
// to settle; a request that gives up waiting gets the pending answer.
func (h *CartHandler) submit(w http.ResponseWriter, r *http.Request, m domain.Mutation, async bool) {
	ctx := r.Context()
	sessionID := middleware.SessionIDFromContext(ctx)

	ticket, err := h.service.Submit(ctx, sessionID, m)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnsupportedMutation):
			httputil.WriteErrorCode(w, r, http.StatusBadRequest, "UNSUPPORTED_MUTATION", err.Error())
		case errors.Is(err, domain.ErrMutationPending):
			writeMutationPending(w, r)
		default:
			httputil.WriteError(w, r, err, h.logger)
		}
		return
	}

	if async {
		httputil.WriteJSON(w, http.StatusAccepted, httputil.Response{Data: h.pending(sessionID, ticket)})
		return
	}

	out, err := ticket.Wait(ctx)
	if err != nil {
		httputil.WriteJSON(w, http.StatusAccepted, httputil.Response{Data: h.pending(sessionID, ticket)})
		return
	}

	resp := MutationResponse{
		Status:     string(out.Status),
		Key:        out.Key,
		Generation: out.Generation,
		Cart:       view.Build(out.Cart),
		Errors:     out.UserErrors,
	}
	if out.Status == coalescer.StatusFailed {
		logger.FromContext(ctx).WarnContext(ctx, "cart mutation failed",
			slog.String("key", out.Key),
			slog.String("error", out.Err.Error()),
		)
		httputil.WriteJSON(w, http.StatusServiceUnavailable, httputil.Response{
			Data: resp,
			Error: &httputil.ErrorResponse{
				Code:      "SERVICE_UNAVAILABLE",
				Message:   "the cart could not be updated, please try again",
				RequestID: logger.CorrelationIDFromContext(ctx),
			},
		})
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: resp})
}

func (h *CartHandler) pending(sessionID string, ticket *coalescer.Ticket) MutationResponse {
	return MutationResponse{
		Status:     statusPending,
		Key:        ticket.Key,
		Generation: ticket.Generation,
		Cart:       view.Build(h.service.View(sessionID)),
	}
}

// --- Helpers ---

func asyncRequested(r *http.Request) bool {
	async, _ := strconv.ParseBool(r.URL.Query().Get("async"))
	return async
}

func writeMutationPending(w http.ResponseWriter, r *http.Request) {
	httputil.WriteErrorCode(w, r, http.StatusConflict, "MUTATION_PENDING", "the line has a change in progress")
}
