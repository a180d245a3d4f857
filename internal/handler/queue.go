package handler

import (
	"net/http"
)

// GetQueueHistory 返回最近的任务处理结果，新的在前。
// 结果由 worker 进程落库，这里只负责查询
func (h *Handler) GetQueueHistory(w http.ResponseWriter, r *http.Request) {
	outcomes, err := h.repository.GetRecentQueueOutcomes(r.Context(), 100)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取队列处理历史成功", outcomes)
}
