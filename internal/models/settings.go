package models

// 提示音类型
const (
	SoundGentle = "gentle"
	SoundUrgent = "urgent"
)

// AlertSettings 用户告警提示音设置
type AlertSettings struct {
	Enabled   bool    `json:"enabled"`
	Volume    float64 `json:"volume"` // 0..1
	SoundType string  `json:"sound_type"`
}

// DefaultAlertSettings 默认设置
func DefaultAlertSettings() AlertSettings {
	return AlertSettings{Enabled: true, Volume: 0.7, SoundType: SoundGentle}
}

// Validate 校验设置
func (s AlertSettings) Validate() error {
	ve := &ValidationError{Fields: map[string][]string{}}
	if s.Volume < 0 || s.Volume > 1 {
		ve.Fields["volume"] = append(ve.Fields["volume"], "volume must be between 0 and 1")
	}
	if s.SoundType != SoundGentle && s.SoundType != SoundUrgent {
		ve.Fields["sound_type"] = append(ve.Fields["sound_type"], "sound_type must be gentle or urgent")
	}
	if len(ve.Fields) > 0 {
		return ve
	}
	return nil
}
