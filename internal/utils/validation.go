package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/sysu-ecnc-dev/report-engine/backend/internal/domain"
)

// ValidateScheduleFields 检查频率和时间字段的组合是否自洽：
// 周频必须带星期几，月频及以上必须带几号，每天则两者都不允许出现
func ValidateScheduleFields(frequency domain.Frequency, timeOfDay string, dayOfWeek *int, dayOfMonth *int) error {
	if _, err := time.Parse("15:04", timeOfDay); err != nil {
		return fmt.Errorf("发送时间格式错误，应为 HH:MM: %s", timeOfDay)
	}

	switch frequency {
	case domain.FrequencyDaily:
		if dayOfWeek != nil || dayOfMonth != nil {
			return errors.New("每天发送的计划不需要指定星期几或几号")
		}
	case domain.FrequencyWeekly:
		if dayOfWeek == nil {
			return errors.New("每周发送的计划必须指定星期几")
		}
		if *dayOfWeek < 0 || *dayOfWeek > 6 {
			return fmt.Errorf("星期几超出范围: %d", *dayOfWeek)
		}
		if dayOfMonth != nil {
			return errors.New("每周发送的计划不需要指定几号")
		}
	case domain.FrequencyMonthly, domain.FrequencyQuarterly, domain.FrequencySemiAnnual, domain.FrequencyAnnual:
		if dayOfMonth == nil {
			return errors.New("按月及以上频率的计划必须指定几号")
		}
		if *dayOfMonth < 1 || *dayOfMonth > 31 {
			return fmt.Errorf("几号超出范围: %d", *dayOfMonth)
		}
		if dayOfWeek != nil {
			return errors.New("按月及以上频率的计划不需要指定星期几")
		}
	default:
		return fmt.Errorf("未知的发送频率: %s", frequency)
	}

	return nil
}
