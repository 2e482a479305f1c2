package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"signalHub/internal/domain"
	"signalHub/internal/performance"
	"signalHub/internal/ports"
	"signalHub/internal/scheduler"
)

// SchedulerControl is the start/stop surface of the scan loop.
type SchedulerControl interface {
	Start(ctx context.Context)
	Stop()
	Status() scheduler.Status
}

// StatusUpdater applies signal lifecycle transitions.
type StatusUpdater interface {
	UpdateSignalStatus(ctx context.Context, id int64, to domain.SignalStatus, exitPrice *float64) (*domain.Signal, error)
}

// EventCalendar lists scheduled economic releases.
type EventCalendar interface {
	Upcoming(from time.Time, days int) []domain.EconomicEvent
}

// Pinger reports store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HandlerConfig wires the handler's collaborators.
type HandlerConfig struct {
	BaseContext context.Context // Lifetime of a scheduler started over HTTP
	Scheduler   SchedulerControl
	Signals     ports.SignalRepository
	Updater     StatusUpdater
	Calendar    EventCalendar
	Health      Pinger // Optional
	Logger      ports.Logger
	Now         func() time.Time
}

// Handler serves the control surface.
type Handler struct {
	cfg HandlerConfig
}

// NewHandler validates cfg and creates a Handler.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Scheduler == nil || cfg.Signals == nil || cfg.Updater == nil || cfg.Calendar == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("%w: scheduler, signals, updater, calendar and logger are required", ports.ErrConfigurationError)
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Handler{cfg: cfg}, nil
}

// RegisterRoutes mounts every route on e.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Healthz)

	g := e.Group("/api")
	g.POST("/scheduler/start", h.StartScheduler)
	g.POST("/scheduler/stop", h.StopScheduler)
	g.GET("/scheduler/status", h.SchedulerStatus)

	g.GET("/signals", h.ListSignals)
	g.GET("/signals/stats", h.SignalStats)
	g.POST("/signals/:id/status", h.UpdateSignalStatus)

	g.GET("/calendar", h.Calendar)
}

// Healthz reports whether the store answers.
func (h *Handler) Healthz(c echo.Context) error {
	if h.cfg.Health != nil {
		if err := h.cfg.Health.Ping(c.Request().Context()); err != nil {
			h.cfg.Logger.Warn(c.Request().Context(), "Health check failed", map[string]interface{}{"error": err.Error()})
			return DataResponse(c, http.StatusServiceUnavailable, "store unavailable")
		}
	}
	return SuccessResponse(c, map[string]string{"status": "ok"})
}

// StartScheduler starts the scan loop. Starting a running scheduler is a no-op.
func (h *Handler) StartScheduler(c echo.Context) error {
	h.cfg.Scheduler.Start(h.cfg.BaseContext)
	return SuccessResponse(c, h.cfg.Scheduler.Status())
}

// StopScheduler stops the scan loop. Queued deliveries are unaffected.
func (h *Handler) StopScheduler(c echo.Context) error {
	h.cfg.Scheduler.Stop()
	return SuccessResponse(c, h.cfg.Scheduler.Status())
}

// SchedulerStatus returns the current scheduler snapshot.
func (h *Handler) SchedulerStatus(c echo.Context) error {
	return SuccessResponse(c, h.cfg.Scheduler.Status())
}

type listSignalsRequest struct {
	Symbol string `query:"symbol"`
	Status string `query:"status" validate:"omitempty,oneof=active tp1_hit tp2_hit tp3_hit sl_hit closed"`
	State  string `query:"state" validate:"omitempty,oneof=open closed"`
	Limit  int    `query:"limit" default:"50" validate:"gte=1,lte=500"`
}

// ListSignals returns signals newest first.
func (h *Handler) ListSignals(c echo.Context) error {
	req := &listSignalsRequest{}
	if verr := ReadAndValidateRequest(c, req); verr != nil {
		return BadRequestResponse(c, verr)
	}

	filter := ports.SignalFilter{Symbol: req.Symbol, Status: domain.SignalStatus(req.Status), Limit: req.Limit}
	if req.State != "" {
		terminal := req.State == "closed"
		filter.Terminal = &terminal
	}

	signals, err := h.cfg.Signals.ListSignals(c.Request().Context(), filter)
	if err != nil {
		h.cfg.Logger.Error(c.Request().Context(), err, "List signals failed")
		return ErrorResponse(c, err)
	}
	views := make([]signalView, 0, len(signals))
	for _, sig := range signals {
		views = append(views, toSignalView(sig))
	}
	return ListResponse(c, views, int64(len(views)))
}

// SignalStats returns performance statistics over every stored signal.
func (h *Handler) SignalStats(c echo.Context) error {
	signals, err := h.cfg.Signals.ListSignals(c.Request().Context(), ports.SignalFilter{})
	if err != nil {
		h.cfg.Logger.Error(c.Request().Context(), err, "Load signals for stats failed")
		return ErrorResponse(c, err)
	}
	return SuccessResponse(c, performance.Analyze(signals))
}

type updateStatusRequest struct {
	ID        int64    `param:"id" json:"-" validate:"gt=0"`
	Status    string   `json:"status" validate:"required,oneof=tp1_hit tp2_hit tp3_hit sl_hit closed"`
	ExitPrice *float64 `json:"exit_price" validate:"omitempty,gt=0"`
}

// UpdateSignalStatus applies a lifecycle transition and notifies receipt holders.
func (h *Handler) UpdateSignalStatus(c echo.Context) error {
	req := &updateStatusRequest{}
	if verr := ReadAndValidateRequest(c, req); verr != nil {
		return BadRequestResponse(c, verr)
	}

	sig, err := h.cfg.Updater.UpdateSignalStatus(c.Request().Context(), req.ID, domain.SignalStatus(req.Status), req.ExitPrice)
	if err != nil {
		h.cfg.Logger.Warn(c.Request().Context(), "Signal status update rejected", map[string]interface{}{
			"signal_id": req.ID,
			"status":    req.Status,
			"error":     err.Error(),
		})
		return ErrorResponse(c, err)
	}
	return SuccessResponse(c, toSignalView(sig))
}

type calendarRequest struct {
	Days int `query:"days" default:"7" validate:"gte=1,lte=31"`
}

// Calendar lists the economic events of the coming days.
func (h *Handler) Calendar(c echo.Context) error {
	req := &calendarRequest{}
	if verr := ReadAndValidateRequest(c, req); verr != nil {
		return BadRequestResponse(c, verr)
	}

	events := h.cfg.Calendar.Upcoming(h.cfg.Now(), req.Days)
	views := make([]eventView, 0, len(events))
	for _, ev := range events {
		views = append(views, eventView{
			ScheduledAt:  ev.ScheduledAt,
			Currency:     ev.Currency,
			Name:         ev.Name,
			Impact:       string(ev.Impact),
			ExpectedPips: ev.ExpectedPips,
		})
	}
	return ListResponse(c, views, int64(len(views)))
}

type signalView struct {
	ID          int64      `json:"id"`
	Ref         string     `json:"ref"`
	Symbol      string     `json:"symbol"`
	Direction   string     `json:"direction"`
	Entry       float64    `json:"entry"`
	StopLoss    float64    `json:"stop_loss"`
	TakeProfits []float64  `json:"take_profits"`
	Confidence  int        `json:"confidence"`
	Timeframe   string     `json:"timeframe"`
	Priority    string     `json:"priority"`
	MinTier     string     `json:"min_tier"`
	Source      string     `json:"source"`
	Status      string     `json:"status"`
	ResultPips  *float64   `json:"result_pips,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
}

func toSignalView(sig *domain.Signal) signalView {
	return signalView{
		ID:          sig.ID,
		Ref:         sig.Ref,
		Symbol:      sig.Symbol,
		Direction:   string(sig.Direction),
		Entry:       sig.Entry,
		StopLoss:    sig.StopLoss,
		TakeProfits: sig.TakeProfits,
		Confidence:  sig.Confidence,
		Timeframe:   sig.Timeframe,
		Priority:    string(sig.Priority),
		MinTier:     sig.MinTier,
		Source:      string(sig.Source),
		Status:      string(sig.Status),
		ResultPips:  sig.ResultPips,
		CreatedAt:   sig.CreatedAt,
		ClosedAt:    sig.ClosedAt,
	}
}

type eventView struct {
	ScheduledAt  time.Time `json:"scheduled_at"`
	Currency     string    `json:"currency"`
	Name         string    `json:"name"`
	Impact       string    `json:"impact"`
	ExpectedPips float64   `json:"expected_pips"`
}
