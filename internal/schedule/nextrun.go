package schedule

import (
	"time"

	"github.com/sysu-ecnc-dev/report-engine/backend/internal/domain"
)

// NextRun 根据频率和发送时刻计算下一次运行时间。
// 所有运算都在 UTC 下进行，timeOfDay 是调用方已换算成 UTC 的 HH:MM，
// 引擎本身不做任何本地时区偏移。
// 计算结果保证严格晚于 from：如果当前槽位不晚于 from，则恰好前进一个周期。
func NextRun(freq domain.Frequency, timeOfDay string, dayOfWeek int, dayOfMonth int, from time.Time) (time.Time, error) {
	tod, err := time.Parse("15:04", timeOfDay)
	if err != nil {
		return time.Time{}, domain.NewValidationError("发送时刻 %q 格式错误", timeOfDay)
	}
	hour, minute := tod.Hour(), tod.Minute()
	from = from.UTC()

	switch freq {
	case domain.FrequencyDaily:
		candidate := time.Date(from.Year(), from.Month(), from.Day(), hour, minute, 0, 0, time.UTC)
		if !candidate.After(from) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		return candidate, nil

	case domain.FrequencyWeekly:
		if dayOfWeek < 0 || dayOfWeek > 6 {
			return time.Time{}, domain.NewValidationError("每周频率的星期几 %d 不合法", dayOfWeek)
		}
		delta := (dayOfWeek - int(from.Weekday()) + 7) % 7
		candidate := time.Date(from.Year(), from.Month(), from.Day()+delta, hour, minute, 0, 0, time.UTC)
		if !candidate.After(from) {
			candidate = candidate.AddDate(0, 0, 7)
		}
		return candidate, nil

	case domain.FrequencyMonthly, domain.FrequencyQuarterly, domain.FrequencySemiAnnual:
		if dayOfMonth < 1 || dayOfMonth > 31 {
			return time.Time{}, domain.NewValidationError("每月频率的日期 %d 不合法", dayOfMonth)
		}
		months := 1
		switch freq {
		case domain.FrequencyQuarterly:
			months = 3
		case domain.FrequencySemiAnnual:
			months = 6
		}
		candidate := time.Date(from.Year(), from.Month(), clampDay(from.Year(), from.Month(), dayOfMonth), hour, minute, 0, 0, time.UTC)
		if !candidate.After(from) {
			// 先退回到 1 号再加月份，避免 3 月 31 日加一个月溢出到 5 月，
			// 然后在目标月份里重新钳制日期
			base := time.Date(from.Year(), from.Month(), 1, hour, minute, 0, 0, time.UTC).AddDate(0, months, 0)
			candidate = time.Date(base.Year(), base.Month(), clampDay(base.Year(), base.Month(), dayOfMonth), hour, minute, 0, 0, time.UTC)
		}
		return candidate, nil

	case domain.FrequencyAnnual:
		if dayOfMonth < 1 || dayOfMonth > 31 {
			return time.Time{}, domain.NewValidationError("每年频率的日期 %d 不合法", dayOfMonth)
		}
		// 每年固定在一月发送
		candidate := time.Date(from.Year(), time.January, clampDay(from.Year(), time.January, dayOfMonth), hour, minute, 0, 0, time.UTC)
		if !candidate.After(from) {
			candidate = time.Date(from.Year()+1, time.January, clampDay(from.Year()+1, time.January, dayOfMonth), hour, minute, 0, 0, time.UTC)
		}
		return candidate, nil

	default:
		return time.Time{}, domain.NewValidationError("不支持的频率 %q", freq)
	}
}

// clampDay 把目标日期钳制到该月的最后一天以内
func clampDay(year int, month time.Month, day int) int {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		return last
	}
	return day
}
