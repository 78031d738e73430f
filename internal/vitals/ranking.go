package vitals

import (
	"cmp"
	"slices"

	"hms-vitals/internal/models"
)

// UrgencyScore 数值紧急度，越小越紧急
// overdue: -overdue；due: 500 - |diff|；upcoming: 1000 + until
func UrgencyScore(e Evaluation) int {
	switch e.Status {
	case models.StatusOverdue:
		return e.DiffMinutes
	case models.StatusDue:
		return 500 - abs(e.DiffMinutes)
	default:
		return 1000 + e.DiffMinutes
	}
}

func band(s models.VitalsStatus) int {
	switch s {
	case models.StatusOverdue:
		return 0
	case models.StatusDue:
		return 1
	default:
		return 2
	}
}

// Compare 按 (状态档位, 幅度) 比较紧急度，a 更紧急时返回负数
// overdue 内越逾期越靠前；due 内 |diff| 越大越靠前；upcoming 内越早到期越靠前
func Compare(a, b Evaluation) int {
	if c := cmp.Compare(band(a.Status), band(b.Status)); c != 0 {
		return c
	}
	if a.Status == models.StatusDue {
		return cmp.Compare(abs(b.DiffMinutes), abs(a.DiffMinutes))
	}
	return cmp.Compare(a.DiffMinutes, b.DiffMinutes)
}

// SortStable 按紧急度稳定排序，相同紧急度保持输入顺序
func SortStable[T any](items []T, eval func(T) Evaluation) {
	slices.SortStableFunc(items, func(a, b T) int {
		return Compare(eval(a), eval(b))
	})
}

// Rank 看板行排序
func Rank(rows []models.DashboardRow) {
	SortStable(rows, func(r models.DashboardRow) Evaluation {
		return FromStatus(r.Status, r.TimeUntilDueMinutes, r.TimeOverdueMinutes)
	})
}

// RankAlerts 告警排序
func RankAlerts(alerts []models.VitalsAlert) {
	SortStable(alerts, func(a models.VitalsAlert) Evaluation {
		return FromStatus(a.Status, a.TimeUntilDueMinutes, a.TimeOverdueMinutes)
	})
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
