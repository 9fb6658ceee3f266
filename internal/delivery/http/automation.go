package http

import (
	"strconv"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/dapen17/vps1/internal/domain/automation/entities"
	pkgerrors "github.com/dapen17/vps1/pkg/errors"
	"github.com/dapen17/vps1/pkg/httputil"
)

// AutomationReader exposes read-only automation state
type AutomationReader interface {
	Snapshot() entities.State
	Status(accountID int64) entities.Status
}

// AutomationHandler serves the automation state
type AutomationHandler struct {
	automation AutomationReader
	mapper     *pkgerrors.Mapper
	logger     zerolog.Logger
}

// NewAutomationHandler creates a new automation state handler
func NewAutomationHandler(automation AutomationReader, logger zerolog.Logger) *AutomationHandler {
	return &AutomationHandler{
		automation: automation,
		mapper:     pkgerrors.NewMapper(logger),
		logger:     logger,
	}
}

// State returns the whole automation state
func (h *AutomationHandler) State(ctx *fasthttp.RequestCtx) {
	httputil.WriteResponse(ctx, h.automation.Snapshot())
}

// AccountStatus returns the automations of one account
func (h *AutomationHandler) AccountStatus(ctx *fasthttp.RequestCtx) {
	raw, _ := ctx.UserValue("account_id").(string)
	accountID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || accountID <= 0 {
		h.writeError(ctx, pkgerrors.NewValidationErrorf("invalid account id %q", raw))
		return
	}

	httputil.WriteResponse(ctx, h.automation.Status(accountID))
}

func (h *AutomationHandler) writeError(ctx *fasthttp.RequestCtx, err error) {
	code, msg := h.mapper.MapErrorToHTTP(err)
	httputil.WriteErrorResponse(ctx, msg, code)
}
