package httpapi

import (
	"bytes"
	"fmt"

	"github.com/DiegoBol25/Smart-Coffe-AI/internal/models"

	"github.com/xuri/excelize/v2"
)

// 导出工作表名称
const (
	SheetSensors     = "Sensores"
	SheetWeather     = "Clima"
	SheetComparisons = "Comparación"
)

// SensorExportHeader 传感器表头
var SensorExportHeader = []string{"ID", "Temperatura (°C)", "Humedad (%)", "Latitud", "Longitud", "Fecha"}

// WeatherExportHeader 天气表头
var WeatherExportHeader = []string{"Ubicación", "País", "Temperatura (°C)", "Humedad (%)", "Presión (hPa)", "Viento (m/s)", "Condición"}

// ComparisonExportHeader 对比表头
var ComparisonExportHeader = []string{"ID", "Δ Temperatura (°C)", "Δ Humedad (%)"}

// GenerateDashboardExport 生成看板 Excel：传感器、天气、对比三张表
// 没有天气时天气表和对比表只有表头
func GenerateDashboardExport(snap models.DashboardSnapshot) ([]byte, error) {
	f := excelize.NewFile()
	// WriteTo 需要文件保持打开，不能 defer Close

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E8F5E9"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	m := snap.Model

	sensorRows := make([][]any, 0, len(m.Sensors))
	for _, s := range m.Sensors {
		sensorRows = append(sensorRows, []any{
			s.ID, s.Temperature, s.Humidity,
			s.Location.Latitude, s.Location.Longitude,
			s.Timestamp.Format("2006-01-02 15:04:05"),
		})
	}

	var weatherRows, comparisonRows [][]any
	if m.Weather != nil {
		w := m.Weather
		weatherRows = append(weatherRows, []any{
			w.LocationName, w.Country, w.Temperature, w.Humidity, w.Pressure, w.WindSpeed, w.Condition,
		})
		for _, s := range m.Sensors {
			c := models.Compare(s, *w)
			comparisonRows = append(comparisonRows, []any{c.SensorID, c.TemperatureDifference, c.HumidityDifference})
		}
	}

	sheets := []struct {
		name   string
		header []string
		rows   [][]any
	}{
		{SheetSensors, SensorExportHeader, sensorRows},
		{SheetWeather, WeatherExportHeader, weatherRows},
		{SheetComparisons, ComparisonExportHeader, comparisonRows},
	}

	for i, sh := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sh.name); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sh.name); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create sheet %s: %w", sh.name, err)
		}
		if err := writeSheet(f, sh.name, sh.header, sh.rows, headerStyle); err != nil {
			f.Close()
			return nil, err
		}
	}
	f.SetActiveSheet(0)

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

func writeSheet(f *excelize.File, sheet string, header []string, rows [][]any, headerStyle int) error {
	for col, h := range header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
		colName, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(sheet, colName, colName, 18); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for r, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d of %s: %w", r+2, sheet, err)
		}
	}

	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}
