package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/DiegoBol25/Smart-Coffe-AI/internal/models"
	"github.com/DiegoBol25/Smart-Coffe-AI/internal/scheduler"
	"github.com/DiegoBol25/Smart-Coffe-AI/internal/state"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Controller 看板交互（调度器实现）
type Controller interface {
	Refresh(ctx context.Context) error
	SelectSensor(ctx context.Context, id string) error
	ClearSelection(ctx context.Context) error
	Status() scheduler.Status
}

// StateReader 看板状态只读视图（state.PresentationState 实现）
type StateReader interface {
	Snapshot() models.DashboardSnapshot
	SelectedDetail() (*state.Detail, error)
	Comparison(id string) (models.Comparison, error)
}

// DashboardHandler 看板视图 API
type DashboardHandler struct {
	ctrl   Controller
	state  StateReader
	logger *zap.Logger
}

func NewDashboardHandler(ctrl Controller, st StateReader, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{ctrl: ctrl, state: st, logger: logger}
}

// SelectionRequest POST /selection 请求体
type SelectionRequest struct {
	SensorID string `json:"sensor_id"`
}

// GET /api/v1/dashboard
func (h *DashboardHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.state.Snapshot()))
}

// POST /api/v1/dashboard/refresh
// 阻塞到本轮刷新结束，返回刷新后的快照
func (h *DashboardHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Refresh(r.Context()); err != nil {
		h.writeControlError(w, "refresh", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(h.state.Snapshot()))
}

// POST /api/v1/dashboard/selection
func (h *DashboardHandler) SelectSensor(w http.ResponseWriter, r *http.Request) {
	var req SelectionRequest
	if err := readBodyJSON(r, 1<<16, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	req.SensorID = strings.TrimSpace(req.SensorID)
	if req.SensorID == "" {
		writeError(w, http.StatusBadRequest, "sensor_id is required")
		return
	}

	if err := h.ctrl.SelectSensor(r.Context(), req.SensorID); err != nil {
		h.writeControlError(w, "select sensor", err)
		return
	}
	h.GetSelection(w, r)
}

// DELETE /api/v1/dashboard/selection
func (h *DashboardHandler) ClearSelection(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.ClearSelection(r.Context()); err != nil {
		h.writeControlError(w, "clear selection", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(h.state.Snapshot()))
}

// GET /api/v1/dashboard/selection
// 详情：读数、stale 标记、有天气时附带对比
func (h *DashboardHandler) GetSelection(w http.ResponseWriter, r *http.Request) {
	d, err := h.state.SelectedDetail()
	if err != nil {
		if errors.Is(err, state.ErrNoSelection) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to read selection")
		return
	}
	writeJSON(w, http.StatusOK, Ok(d))
}

// GET /api/v1/dashboard/sensors/{id}/comparison
func (h *DashboardHandler) GetComparison(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := h.state.Comparison(id)
	if err != nil {
		switch {
		case errors.Is(err, state.ErrSensorNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, state.ErrWeatherUnavailable):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to compare")
		}
		return
	}
	writeJSON(w, http.StatusOK, Ok(c))
}

// GET /api/v1/dashboard/status
func (h *DashboardHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.ctrl.Status()))
}

// GET /api/v1/dashboard/export.xlsx
func (h *DashboardHandler) Export(w http.ResponseWriter, r *http.Request) {
	snap := h.state.Snapshot()
	data, err := GenerateDashboardExport(snap)
	if err != nil {
		h.logger.Error("Failed to generate dashboard export", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to generate export")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="dashboard.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *DashboardHandler) writeControlError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, state.ErrSensorNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, scheduler.ErrStopped), errors.Is(err, scheduler.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	default:
		h.logger.Error("Dashboard command failed", zap.String("op", op), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
