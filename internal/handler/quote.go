// Package handler defines the HTTP quote endpoints.
package handler

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	"ammlab/internal/amm"
	"ammlab/internal/fixedpoint"
	"ammlab/internal/observability"
	"ammlab/internal/service"
)

type QuoteHandler struct {
	logger  *zap.Logger
	metrics *observability.Metrics
	service *service.QuoteService
}

func NewQuoteHandler(logger *zap.Logger, metrics *observability.Metrics, svc *service.QuoteService) *QuoteHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuoteHandler{logger: logger, metrics: metrics, service: svc}
}

// Register mounts the quote routes on app.
func (h *QuoteHandler) Register(app *fiber.App) {
	app.Get("/quote", h.observe("quote", h.Quote()))
	app.Get("/quote/pair", h.observe("quote_pair", h.QuotePair()))
}

type QuoteRequest struct {
	ReserveIn  string `query:"reserve_in"`
	ReserveOut string `query:"reserve_out"`
	AmountIn   string `query:"amount_in"`
	FeeNum     int64  `query:"fee_num"`
	FeeDen     int64  `query:"fee_den"`
}

// Quote prices a swap against reserves given in the query. The fee defaults
// to 997/1000.
func (h *QuoteHandler) Quote() fiber.Handler {
	return func(c fiber.Ctx) error {
		var req QuoteRequest
		if err := c.Bind().Query(&req); err != nil {
			h.logger.Debug("failed to bind query parameters", zap.Error(err))
			return ErrInvalidQueryParameters
		}

		reserveIn, err := parseAmount("reserve_in", req.ReserveIn)
		if err != nil {
			return err
		}
		reserveOut, err := parseAmount("reserve_out", req.ReserveOut)
		if err != nil {
			return err
		}
		amountIn, err := parseAmount("amount_in", req.AmountIn)
		if err != nil {
			return err
		}
		fee := amm.DefaultFee
		if req.FeeNum != 0 || req.FeeDen != 0 {
			fee = amm.Fee{Num: req.FeeNum, Den: req.FeeDen}
		}
		if fee.Validate() != nil {
			return ErrInvalidFee
		}

		res, err := h.service.Quote(reserveIn, reserveOut, amountIn, fee)
		if err != nil {
			return h.handleServiceError(err)
		}
		return c.JSON(res)
	}
}

type PairQuoteRequest struct {
	Pair     string `query:"pair"`
	Src      string `query:"src"`
	AmountIn string `query:"amount_in"`
}

// QuotePair prices a swap against a Uniswap v2 pair's current reserves.
func (h *QuoteHandler) QuotePair() fiber.Handler {
	return func(c fiber.Ctx) error {
		var req PairQuoteRequest
		if err := c.Bind().Query(&req); err != nil {
			h.logger.Debug("failed to bind query parameters", zap.Error(err))
			return ErrInvalidQueryParameters
		}
		for field, addr := range map[string]string{"pair": req.Pair, "src": req.Src} {
			if addr == "" {
				return NewAddressRequired(field)
			}
			if !common.IsHexAddress(addr) {
				return NewInvalidAddress(field)
			}
		}
		amountIn, err := parseAmount("amount_in", req.AmountIn)
		if err != nil {
			return err
		}

		res, err := h.service.QuotePair(c.Context(), common.HexToAddress(req.Pair), common.HexToAddress(req.Src), amountIn)
		if err != nil {
			return h.handleServiceError(err)
		}
		return c.JSON(res)
	}
}

func (h *QuoteHandler) observe(endpoint string, next fiber.Handler) fiber.Handler {
	return func(c fiber.Ctx) error {
		err := next(c)
		status := c.Response().StatusCode()
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		} else if err != nil {
			status = fiber.StatusInternalServerError
		}
		h.metrics.ObserveQuoteRequest(endpoint, status)
		return err
	}
}

func parseAmount(field, raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok || v.Sign() <= 0 {
		return nil, NewInvalidAmount(field)
	}
	return v, nil
}

func (h *QuoteHandler) handleServiceError(err error) error {
	switch {
	case errors.Is(err, service.ErrSameToken):
		return ErrSameTokenBadRequest
	case errors.Is(err, service.ErrPairMismatch):
		return ErrPairMismatchBadRequest
	case errors.Is(err, amm.ErrEmptyPool):
		return ErrEmptyReservesBadRequest
	case errors.Is(err, amm.ErrInvalidAmount), errors.Is(err, fixedpoint.ErrOverflow):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, amm.ErrInvalidFee):
		return ErrInvalidFee
	case errors.Is(err, service.ErrFetchPair):
		h.logger.Warn("pair fetch failed", zap.Error(err))
		return ErrUpstreamUnavailable
	default:
		h.logger.Error("quote failed", zap.Error(err))
		return ErrQuoteFailedInternal
	}
}
