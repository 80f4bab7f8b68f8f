package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/portfolio-tracker/internal/adapter"
	"github.com/portfolio-tracker/internal/service"
	"github.com/portfolio-tracker/internal/types"
)

// BotServiceName identifies the portfolio bot in health payloads
const BotServiceName = "portfolio-bot"

// TotalQuerier answers the total-value query
type TotalQuerier interface {
	TotalList(ctx context.Context) (*types.TotalList, error)
	QueryStats() service.QueryStats
}

// ExchangeHealthReporter reports the health of the exchange connection
type ExchangeHealthReporter interface {
	Health() adapter.SourceHealth
}

// BotHealth is the payload of the bot health endpoint
type BotHealth struct {
	Status     string                `json:"status"`
	Service    string                `json:"service"`
	Timestamp  time.Time             `json:"timestamp"`
	Exchange   *adapter.SourceHealth `json:"exchange,omitempty"`
	TotalQuery service.QueryStats    `json:"total_query"`
}

// BotHandlers serves the portfolio bot's HTTP surface
type BotHandlers struct {
	portfolio TotalQuerier
	exchange  ExchangeHealthReporter
	now       func() time.Time
}

// NewBotHandlers creates the bot handlers. exchange may be nil.
func NewBotHandlers(portfolio TotalQuerier, exchange ExchangeHealthReporter) *BotHandlers {
	return &BotHandlers{
		portfolio: portfolio,
		exchange:  exchange,
		now:       time.Now,
	}
}

// RegisterRoutes mounts the bot routes
func (h *BotHandlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/portfolio/total", h.handleTotal).Methods(http.MethodGet)
	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
}

// handleTotal returns the per-asset breakdown whose sum is the portfolio value
func (h *BotHandlers) handleTotal(w http.ResponseWriter, r *http.Request) {
	list, err := h.portfolio.TotalList(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if list.Items == nil {
		list.Items = []types.TotalItem{}
	}
	respondJSON(w, http.StatusOK, list)
}

func (h *BotHandlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := BotHealth{
		Status:     "healthy",
		Service:    BotServiceName,
		Timestamp:  h.now().UTC(),
		TotalQuery: h.portfolio.QueryStats(),
	}
	if h.exchange != nil {
		exchange := h.exchange.Health()
		health.Exchange = &exchange
		if !exchange.IsHealthy {
			health.Status = "degraded"
		}
	}
	respondJSON(w, http.StatusOK, health)
}
