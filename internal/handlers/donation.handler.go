package handlers

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/fasthttp/router"
	"github.com/champfund/donation-gateway/internal/model"
	xhttp "github.com/champfund/donation-gateway/pkg/http"
)

type DonationService interface {
	Initiate(ctx context.Context, p model.DonationCreateRequest) (*model.DonationResult, error)
	List(ctx context.Context, f model.DonationFilter) ([]*model.Donation, int64, error)
	GetDonationsWithPayments(ctx context.Context, f model.DonationFilter) ([]*model.DonationWithPayments, int64, error)
}
type DonationHandler struct {
	svc DonationService
}

func RegisterDonationRoutes(e *router.Group, h *DonationHandler) {
	e.POST("/donations", h.CreateDonation)
	e.GET("/donations", h.ListDonations)
	e.GET("/donations/payment-logs", h.ListDonationsWithPayments)
}

func NewDonationHandler(donationService DonationService) *DonationHandler {
	return &DonationHandler{
		svc: donationService,
	}
}

type createDonationResponse struct {
	Message         string          `json:"message"`
	DonationID      int64           `json:"donation_id"`
	STKPushResponse json.RawMessage `json:"stk_push_response,omitempty"`
}

type listResponse struct {
	Items []*model.Donation `json:"items"`
	Total int64             `json:"total"`
}

type listWithPaymentsResponse struct {
	Items []*model.DonationWithPayments `json:"items"`
	Total int64                         `json:"total"`
}

/* --------------------------------- Routes ----------------------------------- */

func (h *DonationHandler) CreateDonation(ctx *xhttp.RequestCtx) {
	p := model.DonationCreateRequest{
		DonorName:          formValue(ctx, "donor_name"),
		PhoneNumber:        formValue(ctx, "phone_number"),
		Email:              formValue(ctx, "email"),
		Amount:             formValue(ctx, "donation_amount"),
		MpesaTransactionID: formValue(ctx, "mpesa_transaction_id"),
		Reference:          formValue(ctx, "reference"),
	}

	result, err := h.svc.Initiate(ctx, p)
	if err != nil {
		if model.IsValidationError(err) {
			writeError(ctx, 400, err.Error())
			return
		}
		writeError(ctx, 500, err.Error())
		return
	}

	// The donation row stands even when the push fails; the push outcome is
	// reported inside the response so the donor knows to retry the prompt,
	// not the form.
	push := result.Push
	if result.PushErr != nil {
		b, _ := json.Marshal(map[string]string{"error": result.PushErr.Error()})
		push = b
	}

	writeJSON(ctx, 201, createDonationResponse{
		Message:         result.Message,
		DonationID:      result.Donation.ID,
		STKPushResponse: push,
	})
}

func (h *DonationHandler) ListDonations(ctx *xhttp.RequestCtx) {
	f := donationFilter(ctx)

	items, total, err := h.svc.List(ctx, f)
	if err != nil {
		writeError(ctx, 400, err.Error())
		return
	}
	writeJSON(ctx, 200, listResponse{Items: items, Total: total})
}

func (h *DonationHandler) ListDonationsWithPayments(ctx *xhttp.RequestCtx) {
	f := donationFilter(ctx)

	items, total, err := h.svc.GetDonationsWithPayments(ctx, f)
	if err != nil {
		writeError(ctx, 400, err.Error())
		return
	}
	writeJSON(ctx, 200, listWithPaymentsResponse{Items: items, Total: total})
}

func donationFilter(ctx *xhttp.RequestCtx) model.DonationFilter {
	var f model.DonationFilter

	if v := query(ctx, "phone_number"); v != "" {
		f.PhoneNumber = &v
	}
	if v := query(ctx, "reference"); v != "" {
		f.Reference = &v
	}
	if v := query(ctx, "from"); v != "" {
		if t, e := parseTime(v); e == nil {
			f.From = &t
		}
	}
	if v := query(ctx, "to"); v != "" {
		if t, e := parseTime(v); e == nil {
			f.To = &t
		}
	}
	if v := query(ctx, "limit"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			f.Limit = n
		}
	}
	if v := query(ctx, "offset"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			f.Offset = n
		}
	}
	if strings.EqualFold(query(ctx, "order"), "desc") {
		f.Desc = true
	}

	return f
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, _ := json.Marshal(v)
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, map[string]string{"error": msg})
}

// formValue reads a form-encoded field, falling back to the query string so
// simple curl invocations work either way.
func formValue(ctx *xhttp.RequestCtx, key string) string {
	if v := ctx.PostArgs().Peek(key); len(v) > 0 {
		return string(v)
	}
	return string(ctx.QueryArgs().Peek(key))
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

func parseTime(s string) (time.Time, error) {
	// Accept RFC3339 or YYYY-MM-DD
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
