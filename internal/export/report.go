package export

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"outreach-platform/internal/calls"
)

// ErrNoRows means there is nothing visible to export. Callers surface this
// as a warning, not a failure; no file is produced.
var ErrNoRows = errors.New("export: no visible rows to export")

// Column headers of the call report, localized for the dashboard's audience.
var headers = []string{
	"Nombre",
	"Número de Teléfono",
	"Estado de Llamada",
	"Duración de la Llamada",
	"Resumen",
	"Fecha y Hora",
}

const sheetName = "Reporte"

// statusLabels maps call statuses to their localized display labels.
var statusLabels = map[calls.Status]string{
	calls.StatusPending:    "Pendiente",
	calls.StatusInitiated:  "Iniciada",
	calls.StatusInProgress: "En Progreso",
	calls.StatusCompleted:  "Completada",
	calls.StatusFailed:     "Fallida",
	calls.StatusBusy:       "Ocupado",
	calls.StatusNoAnswer:   "Sin Respuesta",
}

// StatusLabel returns the localized label for a status, falling back to the
// raw value for anything unknown.
func StatusLabel(s calls.Status) string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// FormatDuration renders seconds as MM:SS, or N/A when unknown.
func FormatDuration(seconds int) string {
	if seconds <= 0 {
		return "N/A"
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// Filename builds the report file name:
// reporte_llamadas_monitor[_<filter>]_<timestamp>.xlsx with colon-free
// timestamps so the name is filesystem-safe everywhere.
func Filename(filter string, now time.Time) string {
	stamp := strings.ReplaceAll(now.UTC().Format("2006-01-02T15:04:05"), ":", "-")
	if filter != "" && filter != "all" {
		return fmt.Sprintf("reporte_llamadas_monitor_%s_%s.xlsx", filter, stamp)
	}
	return fmt.Sprintf("reporte_llamadas_monitor_%s.xlsx", stamp)
}

// WriteReport renders one row per record into an xlsx workbook and returns
// its bytes plus the generated file name.
func WriteReport(records []calls.StatusRecord, filter string, now time.Time) ([]byte, string, error) {
	if len(records) == 0 {
		return nil, "", ErrNoRows
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	idx, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, "", fmt.Errorf("export: create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, "", fmt.Errorf("export: drop default sheet: %w", err)
	}

	for col, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return nil, "", fmt.Errorf("export: write header: %w", err)
		}
	}

	for i, rec := range records {
		row := []any{
			rec.Name,
			rec.Phone,
			StatusLabel(rec.Status),
			FormatDuration(rec.DurationSeconds),
			rec.Summary,
			formatTimestamp(rec.UpdatedAt),
		}
		for col, v := range row {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return nil, "", fmt.Errorf("export: write row %d: %w", i+1, err)
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, "", fmt.Errorf("export: serialize workbook: %w", err)
	}
	return buf.Bytes(), Filename(filter, now), nil
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}
