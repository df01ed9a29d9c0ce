package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pricepulse/pricepulse/internal/domain"
	"github.com/pricepulse/pricepulse/internal/service"
)

// PriceHandler serves the price read endpoints.
type PriceHandler struct {
	marketService *service.MarketService
}

func NewPriceHandler(marketService *service.MarketService) *PriceHandler {
	return &PriceHandler{
		marketService: marketService,
	}
}

// GetLatest handles GET /prices/latest?symbol=&provider=&use_cache=.
func (h *PriceHandler) GetLatest(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol query parameter is required"})
		return
	}

	useCache := c.DefaultQuery("use_cache", "true") != "false"

	point, err := h.marketService.LatestPrice(c.Request.Context(), symbol, c.Query("provider"), useCache)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol":    point.Symbol,
		"price":     point.Price,
		"timestamp": point.Timestamp,
		"provider":  point.Provider,
	})
}

// GetHistory handles GET /prices/history/:symbol?hours=&limit=. A
// limit selects the newest N points regardless of age; otherwise the
// window is time-based.
func (h *PriceHandler) GetHistory(c *gin.Context) {
	symbol := c.Param("symbol")

	var points []domain.PricePoint
	var err error
	if raw := c.Query("limit"); raw != "" {
		limit, _ := strconv.Atoi(raw)
		points, err = h.marketService.RecentPrices(c.Request.Context(), symbol, limit)
	} else {
		hours, _ := strconv.Atoi(c.DefaultQuery("hours", "24"))
		points, err = h.marketService.PriceHistory(c.Request.Context(), symbol, hours)
	}
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, points)
}

// GetMovingAverage handles GET /prices/moving-average/:symbol?period=.
func (h *PriceHandler) GetMovingAverage(c *gin.Context) {
	period, _ := strconv.Atoi(c.DefaultQuery("period", "5"))

	avg, err := h.marketService.LatestAverage(c.Request.Context(), c.Param("symbol"), period)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol":         avg.Symbol,
		"moving_average": avg.Value,
		"period":         avg.Period,
		"timestamp":      avg.Timestamp,
	})
}

// abortWithError maps the domain error taxonomy onto HTTP statuses.
func abortWithError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidSymbol):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrJobNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrRateLimitExceeded):
		status = http.StatusTooManyRequests
	case errors.Is(err, domain.ErrProviderRateLimited), errors.Is(err, domain.ErrProviderUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrParse):
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
