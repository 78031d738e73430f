package vitals

import (
	"fmt"

	"hms-vitals/internal/models"
)

// FormatShort 短格式: 45m / 2h / 2h 5m
func FormatShort(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	h, m := minutes/60, minutes%60
	if m == 0 {
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}

// FormatLong 长格式: 1 minute / 2 hours 5 minutes
func FormatLong(minutes int) string {
	if minutes < 60 {
		return plural(minutes, "minute")
	}
	h, m := minutes/60, minutes%60
	if m == 0 {
		return plural(h, "hour")
	}
	return plural(h, "hour") + " " + plural(m, "minute")
}

// FormatInterval 间隔: 30 min / 4h / 4h 5m
func FormatInterval(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%d min", minutes)
	}
	return FormatShort(minutes)
}

// BadgeText 徽章文案，如 "Due (+5m)"
func BadgeText(s models.VitalsScheduleStatus) string {
	switch s.Status {
	case models.StatusUpcoming:
		if s.TimeUntilDueMinutes != nil && *s.TimeUntilDueMinutes > 0 {
			return "Upcoming (" + FormatShort(*s.TimeUntilDueMinutes) + ")"
		}
		return "Upcoming"
	case models.StatusDue:
		if s.TimeUntilDueMinutes != nil {
			return "Due (" + FormatShort(*s.TimeUntilDueMinutes) + ")"
		}
		if s.TimeOverdueMinutes != nil {
			return "Due (+" + FormatShort(*s.TimeOverdueMinutes) + ")"
		}
		return "Due"
	case models.StatusOverdue:
		if s.TimeOverdueMinutes != nil && *s.TimeOverdueMinutes > 0 {
			return "Overdue (+" + FormatShort(*s.TimeOverdueMinutes) + ")"
		}
		return "Overdue"
	}
	return string(s.Status)
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
