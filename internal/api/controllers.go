package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"tradebot/internal/engine"
	"tradebot/internal/gateway"
	"tradebot/internal/session"
	"tradebot/internal/state"
	exchange "tradebot/pkg/exchanges/common"

	"github.com/gin-gonic/gin"
)

type historyQuery struct {
	Limit int `form:"limit"`
}

func (q *historyQuery) normalize() {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	if q.Limit > 1000 {
		q.Limit = 1000
	}
}

type scheduleRequest struct {
	Schedule string `json:"schedule" binding:"required"`
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

// respondEngineError maps engine, session and connector errors to responses.
func respondEngineError(c *gin.Context, err error) {
	var (
		cfgErr      *exchange.ConfigurationError
		unsupported *exchange.UnsupportedExchangeError
		reqErr      *exchange.RequestError
	)
	switch {
	case errors.As(err, &unsupported):
		respondError(c, http.StatusBadRequest, "UNSUPPORTED_EXCHANGE", err.Error())
	case errors.As(err, &cfgErr):
		respondError(c, http.StatusBadRequest, "CONFIGURATION_ERROR", err.Error())
	case errors.Is(err, session.ErrAlreadyRunning):
		respondError(c, http.StatusConflict, "ALREADY_RUNNING", err.Error())
	case errors.Is(err, engine.ErrExchangeNotConnected):
		respondError(c, http.StatusNotFound, "EXCHANGE_NOT_CONNECTED", err.Error())
	case errors.Is(err, engine.ErrConnectionTest):
		respondError(c, http.StatusBadRequest, "CONNECTION_TEST_FAILED", err.Error())
	case errors.Is(err, gateway.ErrConnectorUnhealthy), errors.Is(err, gateway.ErrPoolFull):
		respondError(c, http.StatusServiceUnavailable, "EXCHANGE_UNAVAILABLE", err.Error())
	case errors.As(err, &reqErr):
		respondError(c, http.StatusBadGateway, "EXCHANGE_ERROR", err.Error())
	default:
		respondError(c, http.StatusInternalServerError, "ENGINE_ERROR", err.Error())
	}
}

// --- Exchange connections ---

func (s *Server) getSupportedExchanges(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"exchanges": s.Engine.SupportedExchanges()})
}

func (s *Server) listExchanges(c *gin.Context) {
	list, err := s.Engine.Exchanges(c.Request.Context(), CurrentUser(c))
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// connectExchange tests the credentials and stores the connection.
func (s *Server) connectExchange(c *gin.Context) {
	var req engine.ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
		return
	}
	user := CurrentUser(c)
	info, err := s.Engine.ConnectExchange(c.Request.Context(), user, req)
	if err != nil {
		log.Printf("connectExchange: user=%s exch=%s: %v", user, req.Exchange, err)
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusCreated, info)
}

func (s *Server) testExchange(c *gin.Context) {
	ok, msg, err := s.Engine.TestExchange(c.Request.Context(), CurrentUser(c), c.Param("name"))
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": ok, "message": msg})
}

func (s *Server) disconnectExchange(c *gin.Context) {
	if err := s.Engine.DisconnectExchange(c.Request.Context(), CurrentUser(c), c.Param("name")); err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "disconnected"})
}

func (s *Server) getBalances(c *gin.Context) {
	balances, err := s.Engine.Balances(c.Request.Context(), CurrentUser(c), c.Param("name"))
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, balances)
}

// getTickers accepts ?symbols=BTCUSDT,ETHUSDT; no symbols returns every ticker.
func (s *Server) getTickers(c *gin.Context) {
	var symbols []string
	for _, sym := range strings.Split(c.Query("symbols"), ",") {
		if sym = strings.TrimSpace(sym); sym != "" {
			symbols = append(symbols, sym)
		}
	}
	tickers, err := s.Engine.Tickers(c.Request.Context(), CurrentUser(c), c.Param("name"), symbols)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, tickers)
}

// --- Trading sessions ---

func (s *Server) startTrading(c *gin.Context) {
	ok, err := s.Engine.StartTrading(c.Request.Context(), CurrentUser(c))
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": ok, "status": "started"})
}

func (s *Server) stopTrading(c *gin.Context) {
	err := s.Engine.StopTrading(c.Request.Context(), CurrentUser(c))
	if errors.Is(err, session.ErrStopTimeout) {
		c.JSON(http.StatusAccepted, gin.H{"success": true, "status": "stopping", "message": err.Error()})
		return
	}
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "status": "stopped"})
}

func (s *Server) getTradingStatus(c *gin.Context) {
	st, err := s.Engine.Status(c.Request.Context(), CurrentUser(c))
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) getTradeHistory(c *gin.Context) {
	var q historyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid query parameters")
		return
	}
	q.normalize()
	entries, err := s.Engine.TradeHistory(c.Request.Context(), CurrentUser(c), q.Limit)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	if entries == nil {
		entries = []session.TradeHistoryEntry{}
	}
	c.JSON(http.StatusOK, entries)
}

// --- Configuration ---

func (s *Server) getStrategyConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.StrategyConfig())
}

func (s *Server) updateStrategyConfig(c *gin.Context) {
	var patch map[string]any
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
		return
	}
	cfg, err := s.Engine.UpdateStrategyConfig(patch)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_PARAMETERS", err.Error())
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) getRiskConfig(c *gin.Context) {
	limits, err := s.Engine.RiskLimits(c.Request.Context(), CurrentUser(c))
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, limits)
}

func (s *Server) updateRiskConfig(c *gin.Context) {
	var patch map[string]any
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
		return
	}
	limits, err := s.Engine.UpdateRiskLimits(c.Request.Context(), CurrentUser(c), patch)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_PARAMETERS", err.Error())
		return
	}
	c.JSON(http.StatusOK, limits)
}

// --- Mock mode ---

func (s *Server) mockTrade(c *gin.Context) {
	var req state.TradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
		return
	}
	res, err := s.State.ExecuteMockTrade(c.Request.Context(), req)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_TRADE", err.Error())
		return
	}
	if s.Metrics != nil {
		s.Metrics.IncrementMockTrades()
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) startMock(c *gin.Context) {
	s.State.SetRunning(true)
	c.JSON(http.StatusOK, gin.H{"running": true, "schedule": s.State.Schedule()})
}

func (s *Server) stopMock(c *gin.Context) {
	s.State.SetRunning(false)
	c.JSON(http.StatusOK, gin.H{"running": false})
}

func (s *Server) setMockSchedule(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
		return
	}
	if err := s.State.SetSchedule(req.Schedule); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_SCHEDULE", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedule": s.State.Schedule()})
}

func (s *Server) getPositions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"positions": s.State.Positions(),
		"cash":      s.State.Cash(),
	})
}

func (s *Server) getPerformance(c *gin.Context) {
	c.JSON(http.StatusOK, s.State.Performance())
}

// --- System ---

func (s *Server) getSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"meta":            s.Meta,
		"active_sessions": s.Engine.ActiveSessions(),
		"mock_running":    s.State.Running(),
		"mock_schedule":   s.State.Schedule(),
	})
}

// getMetrics returns system performance metrics.
func (s *Server) getMetrics(c *gin.Context) {
	if s.Metrics == nil {
		respondError(c, http.StatusServiceUnavailable, "METRICS_UNAVAILABLE", "metrics not available")
		return
	}
	c.JSON(http.StatusOK, s.Metrics.Snapshot())
}

// getPrices returns cached quotes, optionally filtered by ?symbol=.
func (s *Server) getPrices(c *gin.Context) {
	if sym := c.Query("symbol"); sym != "" {
		q, ok := s.Quotes.Latest(sym)
		if !ok {
			respondError(c, http.StatusNotFound, "PRICE_NOT_FOUND", "no price for "+strconv.Quote(sym))
			return
		}
		c.JSON(http.StatusOK, q)
		return
	}
	c.JSON(http.StatusOK, s.Quotes.Snapshot())
}
