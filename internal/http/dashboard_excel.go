package httpapi

import (
	"bytes"
	"fmt"

	"hms-vitals/internal/models"
	"hms-vitals/internal/vitals"

	"github.com/xuri/excelize/v2"
)

// DashboardExportHeader 看板导出表头
var DashboardExportHeader = []string{
	"Bed",
	"Patient",
	"Ward",
	"Status",
	"Badge",
	"Next Due At",
	"Interval",
	"Until Due (min)",
	"Overdue (min)",
	"Urgency Score",
}

var dashboardColumnWidths = []float64{10, 24, 18, 12, 20, 20, 12, 16, 16, 14}

const (
	dashboardSheet = "Vitals Dashboard"
	invalidSheet   = "Invalid Schedules"
)

// GenerateDashboardExport 生成看板 Excel（按紧急度排序，与页面一致）
func GenerateDashboardExport(d *models.Dashboard) ([]byte, error) {
	f := excelize.NewFile()
	// WriteTo 之前不能 Close

	index, err := f.NewSheet(dashboardSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}
	overdueStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "#C00000"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create status style: %w", err)
	}

	if err := writeHeader(f, dashboardSheet, DashboardExportHeader, headerStyle); err != nil {
		f.Close()
		return nil, err
	}
	for i, width := range dashboardColumnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(dashboardSheet, col, col, width); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i, row := range d.Rows {
		r := i + 2
		st := models.VitalsScheduleStatus{
			Status:              row.Status,
			TimeUntilDueMinutes: row.TimeUntilDueMinutes,
			TimeOverdueMinutes:  row.TimeOverdueMinutes,
			NextDueAt:           row.DueAt,
			IntervalMinutes:     row.IntervalMinutes,
		}
		values := []any{
			row.BedNumber,
			row.PatientName,
			row.WardName,
			string(row.Status),
			vitals.BadgeText(st),
			row.DueAt.Format("2006-01-02 15:04"),
			vitals.FormatInterval(row.IntervalMinutes),
			intOrEmpty(row.TimeUntilDueMinutes),
			intOrEmpty(row.TimeOverdueMinutes),
			row.UrgencyScore,
		}
		for c, v := range values {
			if v == "" {
				continue
			}
			if err := setCellValue(f, dashboardSheet, c+1, r, v); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell value at row %d, col %d: %w", r, c+1, err)
			}
		}
		if row.Status == models.StatusOverdue {
			cell, _ := excelize.CoordinatesToCellName(4, r)
			if err := f.SetCellStyle(dashboardSheet, cell, cell, overdueStyle); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set status style: %w", err)
			}
		}
	}

	// 冻结表头
	if err := f.SetPanes(dashboardSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	if len(d.Invalid) > 0 {
		if _, err := f.NewSheet(invalidSheet); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create sheet: %w", err)
		}
		if err := writeHeader(f, invalidSheet, []string{"ID", "Reason"}, headerStyle); err != nil {
			f.Close()
			return nil, err
		}
		for i, inv := range d.Invalid {
			if err := setCellValue(f, invalidSheet, 1, i+2, inv.ID); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell value: %w", err)
			}
			if err := setCellValue(f, invalidSheet, 2, i+2, inv.Reason); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell value: %w", err)
			}
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return buf.Bytes(), nil
}

func writeHeader(f *excelize.File, sheet string, headers []string, style int) error {
	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
	}
	return nil
}

// setCellValue 设置单元格值
func setCellValue(f *excelize.File, sheet string, col, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(sheet, cell, value)
}

func intOrEmpty(v *int) any {
	if v == nil {
		return ""
	}
	return *v
}
