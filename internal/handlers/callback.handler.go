package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/champfund/donation-gateway/internal/model"
	xhttp "github.com/champfund/donation-gateway/pkg/http"
)

type CallbackService interface {
	Process(ctx context.Context, raw []byte) *model.CallbackAck
}
type CallbackHandler struct {
	svc CallbackService
}

func RegisterCallbackRoutes(e *router.Group, h *CallbackHandler) {
	e.POST("/payments/mpesa/callback", h.ReceiveCallback)
}

func NewCallbackHandler(callbackService CallbackService) *CallbackHandler {
	return &CallbackHandler{
		svc: callbackService,
	}
}

// ReceiveCallback always responds 200 with the gateway ack envelope; the
// ResultCode inside the body is what drives redelivery, not the HTTP status.
func (h *CallbackHandler) ReceiveCallback(ctx *xhttp.RequestCtx) {
	ack := h.svc.Process(ctx, ctx.PostBody())
	writeJSON(ctx, 200, ack)
}
