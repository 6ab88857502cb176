package models

import "errors"

// UnitKind distinguishes how a reconciliation unit was initiated. Routine
// checks and audits share one state machine; only the display labels and the
// snapshot scope differ.
type UnitKind string

const (
	UnitKindRoutineCheck UnitKind = "RoutineCheck"
	UnitKindSelfReport   UnitKind = "SelfReport"
	UnitKindAudit        UnitKind = "Audit"
)

func (k UnitKind) IsValid() bool {
	switch k {
	case UnitKindRoutineCheck, UnitKindSelfReport, UnitKindAudit:
		return true
	}
	return false
}

type UnitStatus string

const (
	UnitStatusDraft     UnitStatus = "Draft"
	UnitStatusCounting  UnitStatus = "Counting"
	UnitStatusReview    UnitStatus = "Review"
	UnitStatusResolved  UnitStatus = "Resolved"
	UnitStatusCancelled UnitStatus = "Cancelled"
)

func (s UnitStatus) IsTerminal() bool {
	return s == UnitStatusResolved || s == UnitStatusCancelled
}

// DisplayFor maps the internal status to the kind-specific label shown on the
// surface. Audits historically used their own lifecycle vocabulary
// (in_progress/submitted/under_review/completed); the engine keeps a single
// state machine and maps labels here only. A submitted audit shows
// "under_review" as soon as a reviewer has picked it up, which callers decide
// via the unit's ReviewerId.
func (s UnitStatus) DisplayFor(kind UnitKind, hasReviewer bool) string {
	if kind != UnitKindAudit {
		switch s {
		case UnitStatusDraft:
			return "draft"
		case UnitStatusCounting:
			return "counting"
		case UnitStatusReview:
			return "review"
		case UnitStatusResolved:
			return "resolved"
		case UnitStatusCancelled:
			return "cancelled"
		}
		return string(s)
	}
	switch s {
	case UnitStatusDraft, UnitStatusCounting:
		return "in_progress"
	case UnitStatusReview:
		if hasReviewer {
			return "under_review"
		}
		return "submitted"
	case UnitStatusResolved:
		return "completed"
	case UnitStatusCancelled:
		return "cancelled"
	}
	return string(s)
}

// Severity tiers are total-ordered: None < Low < Medium < High < Critical.
type Severity string

const (
	SeverityNone     Severity = "None"
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

var severityRank = map[Severity]int{
	SeverityNone:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

func (s Severity) Rank() int {
	return severityRank[s]
}

// LineResolution is the reviewer's per-line decision.
type LineResolution string

const (
	ResolutionAccept      LineResolution = "Accept"
	ResolutionKeepSystem  LineResolution = "KeepSystem"
	ResolutionInvestigate LineResolution = "Investigate"
)

func (r LineResolution) IsValid() bool {
	switch r {
	case ResolutionAccept, ResolutionKeepSystem, ResolutionInvestigate:
		return true
	}
	return false
}

func ParseLineResolution(s string) (LineResolution, error) {
	switch s {
	case "accept", "Accept":
		return ResolutionAccept, nil
	case "keep_system", "KeepSystem":
		return ResolutionKeepSystem, nil
	case "investigate", "Investigate":
		return ResolutionInvestigate, nil
	}
	return "", errors.New("invalid resolution")
}

// ThresholdTier records which level of the cascade supplied the tolerance.
type ThresholdTier string

const (
	ThresholdTierContractor ThresholdTier = "Contractor"
	ThresholdTierMaterial   ThresholdTier = "Material"
	ThresholdTierDefault    ThresholdTier = "Default"
)

// MovementType classifies an applied line's ledger effect.
type MovementType string

const (
	MovementTypeAdjustment MovementType = "Adjustment" // accept: ledger rewritten to counted qty
	MovementTypeLoss       MovementType = "Loss"       // keep_system with negative variance
	MovementTypeGain       MovementType = "Gain"       // keep_system with positive variance
)

type UserRole string

const (
	UserRoleAdmin    UserRole = "A"
	UserRoleOperator UserRole = "O"
	UserRoleCounter  UserRole = "C"
	UserRoleReviewer UserRole = "R"
)

type IdempotencyStatus string

const (
	IdempotencyStatusStarted   IdempotencyStatus = "STARTED"
	IdempotencyStatusSucceeded IdempotencyStatus = "SUCCEEDED"
	IdempotencyStatusFailed    IdempotencyStatus = "FAILED"
)
