package handler

import (
	"log/slog"
	"net/http"

	"github.com/sysu-ecnc-dev/report-engine/backend/internal/domain"
)

func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	report := r.Context().Value(ReportCtx).(*domain.Report)
	h.successResponse(w, r, "获取报表成功", report)
}

// RefreshReport 立即重新执行报表查询并回写缓存，不等下一次定时发送
func (h *Handler) RefreshReport(w http.ResponseWriter, r *http.Request) {
	report := r.Context().Value(ReportCtx).(*domain.Report)

	if report.Query == nil {
		h.errorResponse(w, r, "该报表没有实时查询，无法刷新")
		return
	}

	data, err := h.repository.ExecuteReportQuery(r.Context(), *report.Query)
	if err != nil {
		slog.Warn("手动刷新报表数据失败", "reportID", report.ID, "error", err)
		h.errorResponse(w, r, "刷新报表数据失败")
		return
	}

	if err := h.repository.UpdateReportCache(r.Context(), report.ID, data); err != nil {
		h.internalServerError(w, r, err)
		return
	}

	report.CachedData = data
	h.successResponse(w, r, "刷新报表数据成功", report)
}
