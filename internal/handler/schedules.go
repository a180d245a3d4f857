package handler

import (
	"net/http"

	"github.com/sysu-ecnc-dev/report-engine/backend/internal/domain"
	"github.com/sysu-ecnc-dev/report-engine/backend/internal/engine"
	"github.com/sysu-ecnc-dev/report-engine/backend/internal/utils"
)

type scheduleRequest struct {
	Name       string   `json:"name" validate:"required"`
	ReportID   int64    `json:"reportID" validate:"required"`
	Frequency  string   `json:"frequency" validate:"required,oneof=daily weekly monthly quarterly semi_annual annual"`
	TimeOfDay  string   `json:"timeOfDay" validate:"required"`
	DayOfWeek  *int     `json:"dayOfWeek"`
	DayOfMonth *int     `json:"dayOfMonth"`
	Enabled    bool     `json:"enabled"`
	Recipients []string `json:"recipients" validate:"required,min=1,dive,required"`
}

func (h *Handler) scheduleInput(w http.ResponseWriter, r *http.Request) (*engine.ScheduleInput, bool) {
	var req scheduleRequest

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return nil, false
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return nil, false
	}

	frequency := domain.Frequency(req.Frequency)
	if err := utils.ValidateScheduleFields(frequency, req.TimeOfDay, req.DayOfWeek, req.DayOfMonth); err != nil {
		h.badRequest(w, r, err)
		return nil, false
	}

	return &engine.ScheduleInput{
		Name:       req.Name,
		ReportID:   req.ReportID,
		Frequency:  frequency,
		TimeOfDay:  req.TimeOfDay,
		DayOfWeek:  req.DayOfWeek,
		DayOfMonth: req.DayOfMonth,
		Enabled:    req.Enabled,
		Recipients: req.Recipients,
	}, true
}

func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	input, ok := h.scheduleInput(w, r)
	if !ok {
		return
	}

	actorID, err := h.actorID(r)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	sched, err := h.service.CreateSchedule(r.Context(), actorID, h.tenantID(r), input)
	if err != nil {
		h.domainError(w, r, err)
		return
	}

	h.successResponse(w, r, "创建计划成功", sched)
}

func (h *Handler) GetAllSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.repository.GetSchedulesByTenant(r.Context(), h.tenantID(r))
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取计划列表成功", schedules)
}

func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	sched := r.Context().Value(ScheduleCtx).(*domain.Schedule)
	h.successResponse(w, r, "获取计划成功", sched)
}

func (h *Handler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	sched := r.Context().Value(ScheduleCtx).(*domain.Schedule)

	input, ok := h.scheduleInput(w, r)
	if !ok {
		return
	}

	actorID, err := h.actorID(r)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	updated, err := h.service.UpdateSchedule(r.Context(), actorID, h.tenantID(r), sched.ID, input)
	if err != nil {
		h.domainError(w, r, err)
		return
	}

	h.successResponse(w, r, "更新计划成功", updated)
}

func (h *Handler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	sched := r.Context().Value(ScheduleCtx).(*domain.Schedule)

	actorID, err := h.actorID(r)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	if err := h.service.DeleteSchedule(r.Context(), actorID, h.tenantID(r), sched.ID); err != nil {
		h.domainError(w, r, err)
		return
	}

	h.successResponse(w, r, "删除计划成功", nil)
}

func (h *Handler) RunSchedule(w http.ResponseWriter, r *http.Request) {
	sched := r.Context().Value(ScheduleCtx).(*domain.Schedule)

	actorID, err := h.actorID(r)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	accepted, err := h.service.RunNow(r.Context(), actorID, h.tenantID(r), sched.ID)
	if err != nil {
		h.domainError(w, r, err)
		return
	}

	// 槽位已被占用不算失败，告知客户端任务早已在队列里
	if !accepted {
		h.successResponse(w, r, "该计划的本次发送已在队列中", map[string]any{"accepted": false})
		return
	}

	h.successResponse(w, r, "已触发发送", map[string]any{"accepted": true})
}

func (h *Handler) GetScheduleExecutions(w http.ResponseWriter, r *http.Request) {
	sched := r.Context().Value(ScheduleCtx).(*domain.Schedule)

	executions, err := h.repository.GetExecutionsByScheduleID(r.Context(), sched.ID, 50)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取执行记录成功", executions)
}
