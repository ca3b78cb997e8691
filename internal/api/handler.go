package api

import (
	"net/http"
	"time"

	"tradebot/internal/engine"
	"tradebot/internal/events"
	"tradebot/internal/monitor"
	"tradebot/internal/state"
	"tradebot/pkg/cache"
	"tradebot/pkg/db"

	"github.com/gin-gonic/gin"
)

// Server wires HTTP endpoints around the engine service.
type Server struct {
	Router    *gin.Engine
	Engine    engine.Service
	DB        *db.Database
	State     *state.Manager
	Quotes    *cache.QuoteCache
	Bus       *events.Bus
	Metrics   *monitor.SystemMetrics
	JWTSecret string
	Meta      SystemMeta
}

// SystemMeta describes runtime settings exposed to the UI.
type SystemMeta struct {
	Version         string   `json:"version"`
	Symbols         []string `json:"symbols"`
	IndicatorMode   string   `json:"indicator_mode"`
	MockTradingPair string   `json:"mock_trading_pair"`
}

// Options are the collaborators of a Server. Engine, DB and State are required.
type Options struct {
	Engine    engine.Service
	DB        *db.Database
	State     *state.Manager
	Quotes    *cache.QuoteCache
	Bus       *events.Bus
	Metrics   *monitor.SystemMetrics
	JWTSecret string
	Meta      SystemMeta
}

func NewServer(opts Options) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())                      // Panic recovery (first)
	r.Use(RequestIDMiddleware())               // Request ID tracking
	r.Use(RequestLogger(opts.Metrics))         // Request logging (after ID is set)
	r.Use(RateLimitMiddleware())               // Rate limiting
	r.Use(TimeoutMiddleware(30 * time.Second)) // Request timeout (30s)
	r.Use(CORSMiddleware())                    // CORS (last before routes)

	if opts.Quotes == nil {
		opts.Quotes = cache.NewQuoteCache()
	}
	s := &Server{
		Router:    r,
		Engine:    opts.Engine,
		DB:        opts.DB,
		State:     opts.State,
		Quotes:    opts.Quotes,
		Bus:       opts.Bus,
		Metrics:   opts.Metrics,
		JWTSecret: opts.JWTSecret,
		Meta:      opts.Meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/system/status", s.getSystemStatus)
		api.GET("/metrics", s.getMetrics)
		api.GET("/prices", s.getPrices)

		// Auth endpoints (no auth required)
		auth := api.Group("/auth")
		{
			auth.POST("/register", s.registerUser)
			auth.POST("/login", s.loginUser)
		}

		// Protected API
		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			// Exchange connections
			protected.GET("/exchanges/supported", s.getSupportedExchanges)
			protected.GET("/exchanges", s.listExchanges)
			protected.POST("/exchanges", s.connectExchange)
			protected.POST("/exchanges/:name/test", s.testExchange)
			protected.DELETE("/exchanges/:name", s.disconnectExchange)
			protected.GET("/exchanges/:name/balances", s.getBalances)
			protected.GET("/exchanges/:name/tickers", s.getTickers)

			// Trading sessions
			protected.POST("/trading/start", s.startTrading)
			protected.POST("/trading/stop", s.stopTrading)
			protected.GET("/trading/status", s.getTradingStatus)
			protected.GET("/trading/history", s.getTradeHistory)

			// Configuration
			protected.GET("/strategy-config", s.getStrategyConfig)
			protected.POST("/strategy-config", s.updateStrategyConfig)
			protected.GET("/risk-config", s.getRiskConfig)
			protected.POST("/risk-config", s.updateRiskConfig)

			// Mock mode
			protected.POST("/mock/trade", s.mockTrade)
			protected.POST("/mock/start", s.startMock)
			protected.POST("/mock/stop", s.stopMock)
			protected.POST("/mock/schedule", s.setMockSchedule)
			protected.GET("/positions", s.getPositions)
			protected.GET("/performance", s.getPerformance)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HTTPServer wraps the router in an *http.Server so the caller can shut it
// down gracefully.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
