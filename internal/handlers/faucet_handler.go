package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/filecoin-faucet/internal/dispatch"
	"github.com/imrishuroy/filecoin-faucet/internal/faucet"
	"github.com/imrishuroy/filecoin-faucet/internal/ledger"
	"github.com/imrishuroy/filecoin-faucet/internal/network"
	"github.com/imrishuroy/filecoin-faucet/internal/validation"
)

// FaucetService is what the routes need from the faucet.
type FaucetService interface {
	Drip(ctx context.Context, networkID, address string) (faucet.Outcome, error)
	History(ctx context.Context, networkID, address string, limit int) ([]faucet.HistoryEntry, error)
	Info(ctx context.Context, networkID, address string) (faucet.Info, error)
}

// RegisterFaucetRoutes registers the faucet API under /faucet/:network.
func RegisterFaucetRoutes(r *gin.Engine, svc FaucetService, logger *slog.Logger) {
	v := validation.New()
	if logger == nil {
		logger = slog.Default()
	}

	r.GET("/faucet/:network", func(c *gin.Context) {
		var q validation.InfoQuery
		if err := validation.BindQueryAndValidate(c, &q, v); err != nil {
			return
		}

		info, err := svc.Info(c.Request.Context(), c.Param("network"), q.Address)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, info)
	})

	r.POST("/faucet/:network/drip", func(c *gin.Context) {
		var req validation.DripRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			// BindAndValidate already wrote a 400
			return
		}

		out, err := svc.Drip(c.Request.Context(), c.Param("network"), req.Address)
		if err != nil {
			writeError(c, logger, err)
			return
		}

		if out.Status == faucet.StatusRateLimited {
			retry := out.RetryAfterSeconds()
			c.Header("Retry-After", strconv.FormatInt(retry, 10))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limited",
				"reason":      out.Reason,
				"retry_after": retry,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"network":      out.NetworkID,
			"recipient":    out.Recipient,
			"tx_cid":       out.Tx.TxCID,
			"amount":       out.Tx.Amount,
			"status":       out.Status,
			"explorer_url": out.ExplorerURL,
		})
	})

	r.GET("/faucet/:network/history", func(c *gin.Context) {
		var q validation.HistoryQuery
		if err := validation.BindQueryAndValidate(c, &q, v); err != nil {
			return
		}

		entries, err := svc.History(c.Request.Context(), c.Param("network"), q.Address, q.Limit)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"transactions": entries})
	})
}

func writeError(c *gin.Context, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, network.ErrInvalidAddress):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_address", "detail": err.Error()})
	case errors.Is(err, network.ErrUnknownNetwork):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown_network"})
	case errors.Is(err, ledger.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ledger_unavailable"})
	case dispatch.IsTransient(err):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "dispatch_failed", "retryable": true})
	case dispatch.IsFatal(err):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "dispatch_failed", "retryable": false})
	default:
		logger.ErrorContext(c.Request.Context(), "unhandled request error", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}
