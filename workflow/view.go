package workflow

import (
	"time"

	"bitbucket.org/mmdatafocus/stocktake_backend/models"
	"github.com/shopspring/decimal"
)

// LineView is a count line with its derived variance figures filled in.
// Expected and variance are nil while a blind unit is still being counted.
type LineView struct {
	LineId          int                    `json:"line_id"`
	MaterialId      int                    `json:"material_id"`
	MaterialName    string                 `json:"material_name"`
	UnitOfMeasure   string                 `json:"unit_of_measure"`
	ExpectedQty     *decimal.Decimal       `json:"expected_qty"`
	ActualQty       *decimal.Decimal       `json:"actual_qty"`
	VarianceQty     *decimal.Decimal       `json:"variance_qty"`
	VariancePct     *decimal.Decimal       `json:"variance_pct"`
	ThresholdPct    decimal.Decimal        `json:"threshold_pct"`
	Tier            models.ThresholdTier   `json:"tier"`
	IsAnomaly       bool                   `json:"is_anomaly"`
	Severity        models.Severity        `json:"severity"`
	Resolution      *models.LineResolution `json:"resolution"`
	ResolutionNotes string                 `json:"resolution_notes"`
}

type UnitView struct {
	Id            int             `json:"id"`
	UnitNumber    string          `json:"unit_number"`
	Kind          models.UnitKind `json:"kind"`
	Status        string          `json:"status"`
	ContractorId  int             `json:"contractor_id"`
	Contractor    string          `json:"contractor"`
	Blind         bool            `json:"blind"`
	CountDate     time.Time       `json:"count_date"`
	Notes         string          `json:"notes"`
	OpenedBy      int             `json:"opened_by"`
	CounterId     *int            `json:"counter_id"`
	SubmittedAt   *time.Time      `json:"submitted_at"`
	ReviewerId    *int            `json:"reviewer_id"`
	ResolvedBy    *int            `json:"resolved_by"`
	ResolvedAt    *time.Time      `json:"resolved_at"`
	CancelReason  string          `json:"cancel_reason,omitempty"`
	Lines         []LineView      `json:"lines,omitempty"`
	AnomalyCount  int             `json:"anomaly_count"`
	CountedLines  int             `json:"counted_lines"`
	TotalLines    int             `json:"total_lines"`
}

// blindRedacted reports whether expected quantities must be hidden: blind
// units show them only from Review on.
func blindRedacted(unit *models.ReconciliationUnit) bool {
	return unit.Blind &&
		(unit.Status == models.UnitStatusDraft || unit.Status == models.UnitStatusCounting)
}

func BuildLineView(unit *models.ReconciliationUnit, line *models.CountLine) LineView {
	view := LineView{
		LineId:          line.ID,
		MaterialId:      line.MaterialId,
		UnitOfMeasure:   line.UnitOfMeasure,
		ActualQty:       line.ActualQty,
		ThresholdPct:    line.ThresholdPct,
		Tier:            line.Tier,
		IsAnomaly:       line.IsAnomaly,
		Severity:        line.Severity,
		Resolution:      line.Resolution,
		ResolutionNotes: line.ResolutionNotes,
	}
	if line.Material != nil {
		view.MaterialName = line.Material.Name
	}

	if blindRedacted(unit) {
		return view
	}

	expected := line.ExpectedQty
	view.ExpectedQty = &expected
	if line.ActualQty != nil {
		v := ComputeVariance(line.ExpectedQty, *line.ActualQty)
		view.VarianceQty = &v.Variance
		view.VariancePct = &v.Percent
	}
	return view
}

// BuildUnitView assembles the presentation of a unit: kind-specific status
// label, derived variance per line and blind redaction.
func BuildUnitView(unit *models.ReconciliationUnit) *UnitView {
	view := UnitView{
		Id:           unit.ID,
		UnitNumber:   unit.UnitNumber,
		Kind:         unit.Kind,
		Status:       unit.Status.DisplayFor(unit.Kind, unit.ReviewerId != nil),
		ContractorId: unit.ContractorId,
		Blind:        unit.Blind,
		CountDate:    unit.CountDate,
		Notes:        unit.Notes,
		OpenedBy:     unit.OpenedBy,
		CounterId:    unit.CounterId,
		SubmittedAt:  unit.SubmittedAt,
		ReviewerId:   unit.ReviewerId,
		ResolvedBy:   unit.ResolvedBy,
		ResolvedAt:   unit.ResolvedAt,
		CancelReason: unit.CancelReason,
		TotalLines:   len(unit.Lines),
	}
	if unit.Contractor != nil {
		view.Contractor = unit.Contractor.Name
	}

	for i := range unit.Lines {
		line := &unit.Lines[i]
		view.Lines = append(view.Lines, BuildLineView(unit, line))
		if line.ActualQty != nil {
			view.CountedLines++
		}
		if line.IsAnomaly {
			view.AnomalyCount++
		}
	}
	return &view
}
