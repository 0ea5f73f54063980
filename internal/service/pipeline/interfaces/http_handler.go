// internal/service/pipeline/interfaces/http_handler.go
package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"dealflow/internal/pkg/logger"
	"dealflow/internal/pkg/metrics"
	"dealflow/internal/service/pipeline/application"
	"dealflow/internal/service/pipeline/domain"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// PipelineHandler 封装了 pipeline 服务的 HTTP 处理器
type PipelineHandler struct {
	service *application.PipelineService
	hub     *BoardHub
}

// NewPipelineHandler hub 为 nil 时不注册 /ws/board
func NewPipelineHandler(service *application.PipelineService, hub *BoardHub) *PipelineHandler {
	return &PipelineHandler{service: service, hub: hub}
}

type handlerFunc func(ctx context.Context, w http.ResponseWriter, r *http.Request)

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *PipelineHandler) RegisterRoutes(mux *http.ServeMux) {
	h.handle(mux, "POST /api/contacts", h.handleSubmitContact)

	h.handle(mux, "GET /api/deals", h.handleListDeals)
	h.handle(mux, "POST /api/deals", h.handleCreateDeal)
	h.handle(mux, "GET /api/deals/attention", h.handleAttention)
	h.handle(mux, "GET /api/deals/{id}", h.handleGetDeal)
	h.handle(mux, "PUT /api/deals/{id}", h.handleUpdateDeal)
	h.handle(mux, "DELETE /api/deals/{id}", h.handleDeleteDeal)

	h.handle(mux, "GET /api/action-logs", h.handleListActionLogs)
	h.handle(mux, "POST /api/action-logs", h.handleCreateActionLog)
	h.handle(mux, "GET /api/action-logs/{id}", h.handleGetActionLog)
	h.handle(mux, "PUT /api/action-logs/{id}", h.handleUpdateActionLog)
	h.handle(mux, "DELETE /api/action-logs/{id}", h.handleDeleteActionLog)

	h.handle(mux, "GET /api/introducers", h.handleListIntroducers)
	h.handle(mux, "POST /api/introducers", h.handleCreateIntroducer)
	h.handle(mux, "GET /api/introducers/{id}", h.handleGetIntroducer)

	h.handle(mux, "GET /api/kanban", h.handleKanban)
	h.handle(mux, "POST /api/kanban/move", h.handleMoveCard)
	h.handle(mux, "GET /api/stats", h.handleStats)

	if h.hub != nil {
		// 升级需要 http.Hijacker，不经过指标中间件
		mux.HandleFunc("GET /ws/board", h.hub.ServeWS)
	}
}

// handle 统一做链路上下文提取和耗时统计
func (h *PipelineHandler) handle(mux *http.ServeMux, pattern string, fn handlerFunc) {
	route := pattern[strings.Index(pattern, " ")+1:]
	mux.Handle(pattern, metrics.InstrumentHandler(route, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		propagator := otel.GetTextMapPropagator()
		ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx = logger.WithContext(ctx, map[string]string{"method": r.Method, "route": route})
		fn(ctx, w, r)
	})))
}

func (h *PipelineHandler) handleSubmitContact(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var req submitContactRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	result, err := h.service.SubmitContact(ctx, req.command())
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *PipelineHandler) handleListDeals(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	deals, err := h.service.ListDeals(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(deals))
}

func (h *PipelineHandler) handleCreateDeal(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var req createDealRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	deal, err := h.service.CreateDeal(ctx, req.command())
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, deal)
}

// handleAttention 以业务时区的今天为基准
func (h *PipelineHandler) handleAttention(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	deals, err := h.service.DealsRequiringAttention(ctx, h.service.Today())
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(deals))
}

func (h *PipelineHandler) handleGetDeal(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	detail, err := h.service.DealWithRelations(ctx, id)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *PipelineHandler) handleUpdateDeal(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	var req updateDealRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	deal, err := h.service.UpdateDeal(ctx, id, req.patch())
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, deal)
}

func (h *PipelineHandler) handleDeleteDeal(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if err := h.service.DeleteDeal(ctx, id); err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"id": id})
}

func (h *PipelineHandler) handleListActionLogs(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var dealID int64
	if raw := r.URL.Query().Get("dealId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeError(ctx, w, errors.Wrapf(domain.ErrValidation, "invalid dealId %q", raw))
			return
		}
		dealID = id
	}
	logs, err := h.service.ListActionLogs(ctx, dealID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(logs))
}

func (h *PipelineHandler) handleCreateActionLog(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var req createActionLogRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	log, err := h.service.CreateActionLog(ctx, req.command())
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, log)
}

func (h *PipelineHandler) handleGetActionLog(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	log, err := h.service.GetActionLog(ctx, id)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, log)
}

func (h *PipelineHandler) handleUpdateActionLog(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	var req updateActionLogRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	log, err := h.service.UpdateActionLog(ctx, id, req.patch())
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, log)
}

func (h *PipelineHandler) handleDeleteActionLog(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if err := h.service.DeleteActionLog(ctx, id); err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"id": id})
}

func (h *PipelineHandler) handleListIntroducers(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	introducers, err := h.service.ListIntroducers(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(introducers))
}

func (h *PipelineHandler) handleCreateIntroducer(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var req createIntroducerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	introducer, err := h.service.CreateIntroducer(ctx, req.command())
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, introducer)
}

func (h *PipelineHandler) handleGetIntroducer(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	introducer, err := h.service.GetIntroducer(ctx, id)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, introducer)
}

func (h *PipelineHandler) handleKanban(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	board, err := h.service.KanbanBoard(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (h *PipelineHandler) handleMoveCard(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var req moveCardRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	result, err := h.service.MoveCard(ctx, req.command())
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *PipelineHandler) handleStats(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError 根据错误类型返回不同的 HTTP 状态码，未知错误不向客户端暴露细节
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	var statusCode int
	switch {
	case errors.Is(err, domain.ErrValidation):
		statusCode = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		statusCode = http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		statusCode = http.StatusConflict
	default:
		logger.Ctx(ctx).Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}
	logger.Ctx(ctx).Debug().Err(err).Int("status", statusCode).Msg("request rejected")
	writeJSON(w, statusCode, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// nonNil 让空列表编码为 [] 而不是 null
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
