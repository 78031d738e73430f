package vitals

import "hms-vitals/internal/models"

// Presentation 告警展示参数
type Presentation struct {
	Severity       models.Severity
	Urgent         bool
	SoundType      string
	DisplaySeconds int
}

// PresentationFor overdue 为紧急提示，其余为普通提示
func PresentationFor(status models.VitalsStatus) Presentation {
	if status == models.StatusOverdue {
		return Presentation{
			Severity:       models.SeverityUrgent,
			Urgent:         true,
			SoundType:      models.SoundUrgent,
			DisplaySeconds: 15,
		}
	}
	return Presentation{
		Severity:       models.SeverityGentle,
		SoundType:      models.SoundGentle,
		DisplaySeconds: 6,
	}
}
