package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"tradedesk/internal/errors"
	"tradedesk/internal/models"
	"tradedesk/internal/resilience"
	"tradedesk/internal/security"
	"tradedesk/internal/store"
)

const defaultJournalLimit = 100

var errServiceDisabled = errors.New("service disabled")

func respondError(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errors.ErrSymbolNotFound), errors.Is(err, errors.ErrDataNotFound),
		errors.Is(err, errors.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrAlreadyWatched):
		return http.StatusConflict
	case errors.Is(err, errServiceDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Trading
// ---------------------------------------------------------------------------

func (s *Server) placeOrder(c *gin.Context) {
	var req models.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, errors.Wrap(err, "invalid order payload"))
		return
	}
	if strings.TrimSpace(req.Symbol) != "" {
		symbol, err := security.NormalizeSymbol(req.Symbol)
		if err != nil {
			respondError(c, http.StatusBadRequest, err)
			return
		}
		req.Symbol = symbol
	}
	req.Name = security.SanitizeText(req.Name)

	res := s.deps.Broker.PlaceOrder(c.Request.Context(), req)
	if !res.Success {
		c.JSON(http.StatusUnprocessableEntity, res)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (s *Server) cancelOrder(c *gin.Context) {
	res := s.deps.Broker.CancelOrder(c.Request.Context(), c.Param("id"))
	if !res.Success {
		status := http.StatusUnprocessableEntity
		if res.Error == errors.ErrOrderNotFound.Error() {
			status = http.StatusNotFound
		}
		c.JSON(status, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) getOrder(c *gin.Context) {
	order, ok := s.deps.Broker.GetOrder(c.Param("id"))
	if !ok {
		respondError(c, http.StatusNotFound, errors.ErrOrderNotFound)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *Server) listOrders(c *gin.Context) {
	if status := c.Query("status"); status != "" {
		c.JSON(http.StatusOK, s.deps.Broker.GetOrdersByStatus(models.OrderStatus(status)))
		return
	}
	c.JSON(http.StatusOK, s.deps.Broker.GetOrders())
}

func (s *Server) listTrades(c *gin.Context) {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	var trades []models.Trade
	if symbol := c.Query("symbol"); symbol != "" {
		trades = s.deps.Broker.GetTradesBySymbol(strings.ToUpper(symbol))
	} else {
		trades = s.deps.Broker.GetTrades()
	}
	if limit > 0 && len(trades) > limit {
		trades = trades[:limit]
	}
	c.JSON(http.StatusOK, trades)
}

func (s *Server) listPositions(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Broker.GetPositions())
}

func (s *Server) updatePrices(c *gin.Context) {
	var prices map[string]float64
	if err := c.ShouldBindJSON(&prices); err != nil {
		respondError(c, http.StatusBadRequest, errors.Wrap(err, "invalid price map"))
		return
	}
	s.deps.Broker.UpdatePositionPrices(prices)
	c.JSON(http.StatusOK, s.deps.Broker.GetPositions())
}

func (s *Server) account(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Broker.GetAccount())
}

func (s *Server) stats(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Broker.GetTradingStats())
}

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

func (s *Server) marketData(c *gin.Context) {
	ctx := c.Request.Context()
	if raw := c.Query("symbols"); raw != "" {
		symbols := strings.Split(strings.ToUpper(raw), ",")
		c.JSON(http.StatusOK, s.deps.Market.GetLiveCryptoData(ctx, symbols))
		return
	}
	c.JSON(http.StatusOK, s.deps.Market.GetAllMarketData(ctx))
}

func (s *Server) marketHealth(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Market.CheckAPIHealth(c.Request.Context()))
}

func (s *Server) cacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Market.GetCacheStats())
}

func (s *Server) clearCache(c *gin.Context) {
	s.deps.Market.ClearCache()
	c.Status(http.StatusNoContent)
}

func (s *Server) instruments(c *gin.Context) {
	if s.deps.Poller == nil {
		respondError(c, http.StatusServiceUnavailable, errors.Wrap(errServiceDisabled, "market poller"))
		return
	}
	c.JSON(http.StatusOK, s.deps.Poller.Snapshot())
}

func (s *Server) priceHistory(c *gin.Context) {
	if s.deps.Poller == nil {
		respondError(c, http.StatusServiceUnavailable, errors.Wrap(errServiceDisabled, "market poller"))
		return
	}
	days, err := queryInt(c, "days", 0)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	symbol, err := security.NormalizeSymbol(c.Param("symbol"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	history := s.deps.Poller.PriceHistory(symbol, days)
	if len(history) == 0 {
		respondError(c, http.StatusNotFound, errors.Wrapf(errors.ErrSymbolNotFound, "%s", symbol))
		return
	}
	c.JSON(http.StatusOK, history)
}

func (s *Server) movers(c *gin.Context) {
	if s.deps.Poller == nil {
		respondError(c, http.StatusServiceUnavailable, errors.Wrap(errServiceDisabled, "market poller"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"gainers": s.deps.Poller.TopGainers(),
		"losers":  s.deps.Poller.TopLosers(),
	})
}

// ---------------------------------------------------------------------------
// Watchlist
// ---------------------------------------------------------------------------

type watchRequest struct {
	Symbol string `json:"symbol" binding:"required"`
}

func (s *Server) watchlist(c *gin.Context) {
	if s.deps.Poller == nil {
		respondError(c, http.StatusServiceUnavailable, errors.Wrap(errServiceDisabled, "market poller"))
		return
	}
	c.JSON(http.StatusOK, s.deps.Poller.Watchlist())
}

func (s *Server) addToWatchlist(c *gin.Context) {
	if s.deps.Poller == nil {
		respondError(c, http.StatusServiceUnavailable, errors.Wrap(errServiceDisabled, "market poller"))
		return
	}
	var req watchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, errors.Wrap(err, "invalid watchlist payload"))
		return
	}
	symbol, err := security.NormalizeSymbol(req.Symbol)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	if err := s.deps.Poller.AddToWatchlist(symbol); err != nil {
		respondError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusCreated, s.deps.Poller.Watchlist())
}

func (s *Server) removeFromWatchlist(c *gin.Context) {
	if s.deps.Poller == nil {
		respondError(c, http.StatusServiceUnavailable, errors.Wrap(errServiceDisabled, "market poller"))
		return
	}
	if err := s.deps.Poller.RemoveFromWatchlist(strings.ToUpper(c.Param("symbol"))); err != nil {
		respondError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, s.deps.Poller.Watchlist())
}

// ---------------------------------------------------------------------------
// Analytics, journal, health
// ---------------------------------------------------------------------------

func (s *Server) analytics(c *gin.Context) {
	if s.deps.Analytics == nil {
		respondError(c, http.StatusServiceUnavailable, errors.Wrap(errServiceDisabled, "analytics"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"metrics": s.deps.Analytics.Metrics(),
		"funnel":  s.deps.Analytics.ConversionFunnel(),
	})
}

func (s *Server) journalEvents(c *gin.Context) {
	if s.deps.Journal == nil {
		respondError(c, http.StatusServiceUnavailable, errors.Wrap(errServiceDisabled, "journal"))
		return
	}

	limit, err := queryInt(c, "limit", defaultJournalLimit)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	filter := store.EventFilter{
		Service: c.Query("service"),
		Type:    c.Query("type"),
		Limit:   limit,
	}
	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, fmt.Errorf("invalid since: %q", raw))
			return
		}
		filter.Since = since
	}

	events, err := s.deps.Journal.ListEvents(c.Request.Context(), filter)
	if err != nil {
		s.logger.Error().Err(err).Msg("Journal query failed")
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

func (s *Server) journalTrades(c *gin.Context) {
	if s.deps.Journal == nil {
		respondError(c, http.StatusServiceUnavailable, errors.Wrap(errServiceDisabled, "journal"))
		return
	}
	limit, err := queryInt(c, "limit", defaultJournalLimit)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	trades, err := s.deps.Journal.ListTrades(c.Request.Context(), strings.ToUpper(c.Query("symbol")), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("Journal query failed")
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, trades)
}

func (s *Server) health(c *gin.Context) {
	if s.deps.Health == nil {
		c.JSON(http.StatusOK, gin.H{"status": resilience.HealthStatusHealthy})
		return
	}
	report := s.deps.Health.Check(c.Request.Context())
	status := http.StatusOK
	if report.Status == resilience.HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}
