package vitals

import (
	"fmt"
	"time"

	"hms-vitals/internal/models"
)

// 测量间隔规则
const (
	MinIntervalMinutes     = 15
	MaxIntervalMinutes     = 1440
	DefaultIntervalMinutes = 240
)

// IntervalPreset 常用间隔
type IntervalPreset struct {
	Minutes int    `json:"minutes"`
	Label   string `json:"label"`
}

// IntervalPresets 常用间隔列表
var IntervalPresets = []IntervalPreset{
	{Minutes: 60, Label: "Every 1 hour"},
	{Minutes: 120, Label: "Every 2 hours"},
	{Minutes: 240, Label: "Every 4 hours"},
	{Minutes: 360, Label: "Every 6 hours"},
	{Minutes: 480, Label: "Every 8 hours"},
	{Minutes: 720, Label: "Every 12 hours"},
}

// ValidateInterval 校验测量间隔
func ValidateInterval(minutes int) error {
	if minutes < MinIntervalMinutes || minutes > MaxIntervalMinutes {
		return models.NewValidationError("interval_minutes",
			fmt.Sprintf("interval must be between %d and %d minutes", MinIntervalMinutes, MaxIntervalMinutes))
	}
	return nil
}

// PreviewDueTimes 从 from 起按间隔推算后续 count 个到期时间
func PreviewDueTimes(from time.Time, intervalMinutes, count int) ([]time.Time, error) {
	if err := ValidateInterval(intervalMinutes); err != nil {
		return nil, err
	}
	step := time.Duration(intervalMinutes) * time.Minute
	out := make([]time.Time, 0, count)
	for i := 1; i <= count; i++ {
		out = append(out, from.Add(time.Duration(i)*step))
	}
	return out, nil
}
