package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xuri/excelize/v2"
)

// Exporter builds the admin Excel report of closed requests.
type Exporter struct{ pool *pgxpool.Pool }

func NewExporter(pool *pgxpool.Pool) *Exporter { return &Exporter{pool: pool} }

type closedRow struct {
	RequestID   int64
	Requester   string
	Transporter string
	Zone        string
	VehicleType string
	CargoType   string
	Budget      string
	ClosedAt    time.Time
}

// ClosedRequestsXLSX renders the confirmed-request history as an .xlsx
// document, newest first.
func (e *Exporter) ClosedRequestsXLSX(ctx context.Context) ([]byte, error) {
	rows, err := e.pool.Query(ctx, `
		SELECT c.request_id,
		       COALESCE(rq.full_name, ''),
		       COALESCE(tr.full_name, ''),
		       COALESCE(z.name, ''),
		       r.vehicle_type, r.cargo_type, r.budget,
		       c.closed_at
		FROM closed_requests c
		JOIN requests r ON r.id = c.request_id
		JOIN users rq ON rq.id = r.requester_id
		LEFT JOIN users tr ON tr.id = c.transporter_id
		LEFT JOIN geo_nodes z ON z.id = r.zone_id
		ORDER BY c.closed_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []closedRow
	for rows.Next() {
		var it closedRow
		if err := rows.Scan(&it.RequestID, &it.Requester, &it.Transporter, &it.Zone,
			&it.VehicleType, &it.CargoType, &it.Budget, &it.ClosedAt); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	const sheet = "Solicitudes cerradas"
	idx, err := f.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(idx)
	_ = f.DeleteSheet("Sheet1")

	headers := []string{"ID", "Solicitante", "Transportista", "Zona", "Vehículo", "Carga", "Presupuesto", "Cerrada"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for rowIdx, it := range items {
		values := []any{
			it.RequestID, it.Requester, it.Transporter, it.Zone,
			it.VehicleType, it.CargoType, it.Budget,
			it.ClosedAt.Format("2006-01-02 15:04"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, rowIdx+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}
