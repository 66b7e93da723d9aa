// Package httpapi exposes the control plane's HTTP surface (spec section
// 6.2) as a set of gin handlers wired to one *engine.Engine. Every USDC
// field on the wire is a 2dp string, via money.Value's MarshalJSON; sizes
// render with SizeString's 6dp form.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/drawdownguard/collar-engine/pkg/engine"
)

var log = logrus.WithField("component", "httpapi")

// NewRouter builds the gin engine for the control plane, CORS-enabled the
// way bbgo's own REST server opens its dashboard API to any origin.
func NewRouter(e *engine.Engine) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:          12 * time.Hour,
	}))

	h := &handlers{engine: e}

	r.GET("/health", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/risk/summary", h.riskSummary)
	r.POST("/portfolio/ingest", h.portfolioIngest)

	r.GET("/coverage/report", h.coverageReport)
	r.GET("/coverage/active", h.coverageActive)

	r.POST("/put/preview", h.putPreview)
	r.POST("/put/quote", h.putQuote)
	r.POST("/put/auto-renew", h.putAutoRenew)
	r.POST("/put/auto-renew/schedule", h.putAutoRenewSchedule)

	r.POST("/loop/tick", h.loopTick)

	r.POST("/deribit/order", h.deribitOrder)

	r.POST("/audit/export", h.auditExport)
	r.POST("/admin/reset", h.adminReset)
	r.GET("/audit/summary", h.auditSummary)
	r.GET("/audit/logs", h.auditLogs)
	// Legacy alias: same raw array as /audit/logs, kept for dashboards that
	// have not migrated off the old route name (spec section 9 open
	// question (a): /audit/logs is canonical).
	r.GET("/audit/entries", h.auditLogs)

	return r
}

type handlers struct {
	engine *engine.Engine
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
			"took":   time.Since(start),
		}).Debug("request")
	}
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
