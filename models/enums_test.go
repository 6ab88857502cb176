package models

import "testing"

func TestDisplayFor_AuditLabels(t *testing.T) {
	cases := []struct {
		status      UnitStatus
		hasReviewer bool
		want        string
	}{
		{UnitStatusDraft, false, "in_progress"},
		{UnitStatusCounting, false, "in_progress"},
		{UnitStatusReview, false, "submitted"},
		{UnitStatusReview, true, "under_review"},
		{UnitStatusResolved, false, "completed"},
		{UnitStatusResolved, true, "completed"},
		{UnitStatusCancelled, false, "cancelled"},
	}
	for _, tc := range cases {
		got := tc.status.DisplayFor(UnitKindAudit, tc.hasReviewer)
		if got != tc.want {
			t.Fatalf("DisplayFor(Audit, %s, reviewer=%v) = %q, want %q", tc.status, tc.hasReviewer, got, tc.want)
		}
	}
}

func TestDisplayFor_CheckLabels(t *testing.T) {
	cases := map[UnitStatus]string{
		UnitStatusDraft:     "draft",
		UnitStatusCounting:  "counting",
		UnitStatusReview:    "review",
		UnitStatusResolved:  "resolved",
		UnitStatusCancelled: "cancelled",
	}
	for _, kind := range []UnitKind{UnitKindRoutineCheck, UnitKindSelfReport} {
		for status, want := range cases {
			if got := status.DisplayFor(kind, true); got != want {
				t.Fatalf("DisplayFor(%s, %s) = %q, want %q", kind, status, got, want)
			}
		}
	}
}

func TestParseLineResolution(t *testing.T) {
	cases := map[string]LineResolution{
		"accept":      ResolutionAccept,
		"Accept":      ResolutionAccept,
		"keep_system": ResolutionKeepSystem,
		"KeepSystem":  ResolutionKeepSystem,
		"investigate": ResolutionInvestigate,
		"Investigate": ResolutionInvestigate,
	}
	for in, want := range cases {
		got, err := ParseLineResolution(in)
		if err != nil {
			t.Fatalf("ParseLineResolution(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseLineResolution(%q) = %s, want %s", in, got, want)
		}
	}
	if _, err := ParseLineResolution("shrug"); err == nil {
		t.Fatalf("unknown resolution must fail")
	}
}
