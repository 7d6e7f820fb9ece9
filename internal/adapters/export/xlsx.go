package export

import (
	"fmt"
	"io"
	"math"

	"nearest-store-service/internal/domain"

	"github.com/xuri/excelize/v2"
)

const SheetName = "Tiendas"

var headers = []any{
	"Rank", "ID", "Tienda", "Dirección", "Lat", "Lon",
	"Distancia (km)", "Tiempo estimado (min)", "Teléfono", "Horario",
}

// WriteRankedStores writes the ranked list as an xlsx workbook to w.
func WriteRankedStores(w io.Writer, stores []domain.RankedStore) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		return fmt.Errorf("export stores: new sheet: %w", err)
	}

	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return fmt.Errorf("export stores: stream writer: %w", err)
	}

	if err := sw.SetRow("A1", headers); err != nil {
		return fmt.Errorf("export stores: header: %w", err)
	}

	for i, s := range stores {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("export stores: cell name: %w", err)
		}
		row := []any{
			i + 1, s.ExternalID, s.Name, s.Address, s.Position.Lat, s.Position.Lon,
			math.Round(s.DistanceKm*100) / 100, s.ETAMinutes, s.Phone(), s.Hours(),
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("export stores: row %d: %w", i+1, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("export stores: flush: %w", err)
	}

	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("export stores: delete default sheet: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("export stores: write: %w", err)
	}
	return nil
}
