package reports

import (
	"context"
	"errors"
	"fmt"

	"bitbucket.org/mmdatafocus/stocktake_backend/config"
	"bitbucket.org/mmdatafocus/stocktake_backend/models"
	"bitbucket.org/mmdatafocus/stocktake_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

type VarianceReportRow struct {
	MaterialId    int              `json:"material_id"`
	MaterialName  string           `json:"material_name"`
	Sku           string           `json:"sku"`
	UnitOfMeasure string           `json:"unit_of_measure"`
	ExpectedQty   decimal.Decimal  `json:"expected_qty"`
	ActualQty     *decimal.Decimal `json:"actual_qty"`
	VarianceQty   *decimal.Decimal `json:"variance_qty"`
	ThresholdPct  decimal.Decimal  `json:"threshold_pct"`
	IsAnomaly     bool             `json:"is_anomaly"`
	Severity      string           `json:"severity"`
	Resolution    *string          `json:"resolution"`
}

func GetVarianceReport(ctx context.Context, unitId int) (*models.ReconciliationUnit, []*VarianceReportRow, error) {

	sql := `
SELECT
    cl.material_id,
    materials.name AS material_name,
    materials.sku,
    cl.unit_of_measure,
    cl.expected_qty,
    cl.actual_qty,
    cl.actual_qty - cl.expected_qty AS variance_qty,
    cl.threshold_pct,
    cl.is_anomaly,
    cl.severity,
    cl.resolution
FROM
    count_lines AS cl
        LEFT JOIN
    materials ON materials.id = cl.material_id
WHERE
    cl.business_id = @businessId AND cl.unit_id = @unitId
ORDER BY cl.id;
`

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, nil, errors.New("business id is required")
	}

	unit, err := models.GetReconciliationUnit(ctx, unitId)
	if err != nil {
		return nil, nil, err
	}

	var rows []*VarianceReportRow
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql,
		map[string]interface{}{"businessId": businessId, "unitId": unitId}).
		Scan(&rows).Error; err != nil {
		return nil, nil, err
	}

	return unit, rows, nil
}

func WriteVarianceReportExcel(unit *models.ReconciliationUnit, rows []*VarianceReportRow) (*excelize.File, error) {

	f := excelize.NewFile()
	sheet := "Sheet1"

	f.SetCellValue(sheet, "A1", "UnitNumber")
	f.SetCellValue(sheet, "B1", unit.UnitNumber)
	f.SetCellValue(sheet, "C1", "Status")
	f.SetCellValue(sheet, "D1", unit.Status.DisplayFor(unit.Kind, unit.ReviewerId != nil))

	headers := []string{"Material", "SKU", "UOM", "Expected", "Actual", "Variance", "Threshold%", "Anomaly", "Severity", "Resolution"}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 3)
		if err != nil {
			return nil, err
		}
		f.SetCellValue(sheet, cell, h)
	}

	for i, row := range rows {
		rowNo := fmt.Sprint(i + 4)
		f.SetCellValue(sheet, "A"+rowNo, row.MaterialName)
		f.SetCellValue(sheet, "B"+rowNo, row.Sku)
		f.SetCellValue(sheet, "C"+rowNo, row.UnitOfMeasure)
		f.SetCellValue(sheet, "D"+rowNo, row.ExpectedQty.String())
		if row.ActualQty != nil {
			f.SetCellValue(sheet, "E"+rowNo, row.ActualQty.String())
		}
		if row.VarianceQty != nil {
			f.SetCellValue(sheet, "F"+rowNo, row.VarianceQty.String())
		}
		f.SetCellValue(sheet, "G"+rowNo, row.ThresholdPct.String())
		f.SetCellValue(sheet, "H"+rowNo, row.IsAnomaly)
		f.SetCellValue(sheet, "I"+rowNo, row.Severity)
		f.SetCellValue(sheet, "J"+rowNo, utils.DereferencePtr(row.Resolution, ""))
	}

	return f, nil
}
