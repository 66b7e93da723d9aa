package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/drawdownguard/collar-engine/pkg/errs"
)

// errStatus maps an errs.Kind to the HTTP status the control plane responds
// with. Everything else maps to a banner built from status+reason on the
// client side (spec section 7), so the body shape stays constant across
// kinds — only the status code varies.
func errStatus(kind errs.Kind) int {
	switch kind {
	case errs.InvalidPayload, errs.InvalidLeverage, errs.UnsupportedAsset, errs.MissingDrawdownInputs:
		return http.StatusBadRequest
	case errs.MissingExecutor:
		return http.StatusNotFound
	case errs.DrawdownBufferPositive:
		return http.StatusConflict
	case errs.Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusUnprocessableEntity
	}
}

// respondErr renders a boundary error as {status, reason} per spec section
// 7. Non-boundary errors are reported as request_failed rather than leaking
// internals onto the wire.
func respondErr(c *gin.Context, err error) {
	if be, ok := err.(*errs.Error); ok {
		c.JSON(errStatus(be.Kind), gin.H{"status": string(be.Kind), "reason": be.Reason})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"status": string(errs.RequestFailed), "reason": err.Error()})
}

func badRequest(c *gin.Context, reason string) {
	c.JSON(http.StatusBadRequest, gin.H{"status": string(errs.InvalidPayload), "reason": reason})
}
