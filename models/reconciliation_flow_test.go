package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/stocktake_backend/config"
	"bitbucket.org/mmdatafocus/stocktake_backend/models"
	"bitbucket.org/mmdatafocus/stocktake_backend/utils"
	"bitbucket.org/mmdatafocus/stocktake_backend/workflow"
	"github.com/shopspring/decimal"
)

// End-to-end reconciliation flow against real MySQL + Redis containers.
// Three materials exercise the threshold cascade end to end: steel carries a
// contractor override, copper only a material default, zinc falls through to
// the configured default. Verifies draft counting, review claiming, the
// ledger rewrite and movement trail, the anomaly worklist, rejection of a
// second resolve, and transaction rollback when one line fails mid-resolve.
func TestReconciliationFlowAcceptRewritesLedger(t *testing.T) {
	ctx := setupIntegration(t)

	wh, err := models.CreateWarehouse(ctx, &models.NewWarehouse{Name: "Central Holding"})
	if err != nil {
		t.Fatalf("CreateWarehouse: %v", err)
	}
	contractor, err := models.CreateContractor(ctx, &models.NewContractor{
		Name:        "Acme Fabrication",
		WarehouseId: wh.ID,
	})
	if err != nil {
		t.Fatalf("CreateContractor: %v", err)
	}

	newMaterial := func(name, sku, uom string, opening int64) *models.Material {
		t.Helper()
		m, err := models.CreateMaterial(ctx, &models.NewMaterial{
			Name:          name,
			Sku:           sku,
			UnitOfMeasure: uom,
		})
		if err != nil {
			t.Fatalf("CreateMaterial(%s): %v", sku, err)
		}
		if _, err := models.SetOpeningQuantity(ctx, contractor.ID, m.ID, decimal.NewFromInt(opening)); err != nil {
			t.Fatalf("SetOpeningQuantity(%s): %v", sku, err)
		}
		return m
	}
	steel := newMaterial("Steel Rod 12mm", "STL-ROD-12", "kg", 100)
	copper := newMaterial("Copper Wire 2mm", "CU-WIRE-02", "kg", 200)
	zinc := newMaterial("Zinc Ingot", "ZN-INGOT", "kg", 50)

	lineFor := func(u *models.ReconciliationUnit, materialId int) *models.CountLine {
		t.Helper()
		for i := range u.Lines {
			if u.Lines[i].MaterialId == materialId {
				return &u.Lines[i]
			}
		}
		t.Fatalf("no count line for material %d", materialId)
		return nil
	}

	// Steel gets both a material default and a contractor override: the
	// contractor tier must win. Copper only carries the material default;
	// zinc has no row at all and uses the configured default.
	if _, err := models.CreateVarianceThreshold(ctx, &models.NewVarianceThreshold{
		MaterialId: steel.ID,
		Percentage: decimal.NewFromInt(8),
	}); err != nil {
		t.Fatalf("CreateVarianceThreshold(steel default): %v", err)
	}
	if _, err := models.CreateVarianceThreshold(ctx, &models.NewVarianceThreshold{
		MaterialId:   steel.ID,
		ContractorId: &contractor.ID,
		Percentage:   decimal.NewFromInt(5),
	}); err != nil {
		t.Fatalf("CreateVarianceThreshold(steel contractor): %v", err)
	}
	if _, err := models.CreateVarianceThreshold(ctx, &models.NewVarianceThreshold{
		MaterialId: copper.ID,
		Percentage: decimal.NewFromInt(3),
	}); err != nil {
		t.Fatalf("CreateVarianceThreshold(copper default): %v", err)
	}
	// Same (material, contractor) scope twice must be rejected.
	_, err = models.CreateVarianceThreshold(ctx, &models.NewVarianceThreshold{
		MaterialId:   steel.ID,
		ContractorId: &contractor.ID,
		Percentage:   decimal.NewFromInt(3),
	})
	if !errors.Is(err, utils.ErrThresholdConflict) {
		t.Fatalf("expected ErrThresholdConflict for duplicate scope; got %v", err)
	}

	unit, err := workflow.OpenUnit(ctx, &workflow.OpenUnitInput{
		ContractorId: contractor.ID,
		Kind:         models.UnitKindRoutineCheck,
	})
	if err != nil {
		t.Fatalf("OpenUnit: %v", err)
	}
	if unit.Status != models.UnitStatusCounting {
		t.Fatalf("expected status Counting after open; got %s", unit.Status)
	}
	if !strings.HasPrefix(unit.UnitNumber, "CHK-") {
		t.Fatalf("expected CHK- document number; got %q", unit.UnitNumber)
	}
	if len(unit.Lines) != 3 {
		t.Fatalf("expected three snapshot lines; got %d", len(unit.Lines))
	}
	if got := lineFor(unit, steel.ID).ExpectedQty; got.Cmp(decimal.NewFromInt(100)) != 0 {
		t.Fatalf("expected frozen steel qty 100; got %s", got.String())
	}

	// Draft counts are last-write-wins and replaying the same payload
	// leaves the unit untouched.
	draft := decimal.NewFromInt(95)
	draftCounts := []workflow.LineCount{{LineId: lineFor(unit, steel.ID).ID, ActualQty: &draft}}
	for i := 0; i < 2; i++ {
		if err := workflow.SaveDraftCounts(ctx, unit.ID, 1, draftCounts); err != nil {
			t.Fatalf("SaveDraftCounts(#%d): %v", i+1, err)
		}
		unit, err = models.GetReconciliationUnit(ctx, unit.ID)
		if err != nil {
			t.Fatalf("GetReconciliationUnit: %v", err)
		}
		if unit.Status != models.UnitStatusCounting {
			t.Fatalf("draft must not transition; got %s", unit.Status)
		}
		sl := lineFor(unit, steel.ID)
		if sl.ActualQty == nil || sl.ActualQty.Cmp(draft) != 0 {
			t.Fatalf("expected drafted steel count 95; got %v", sl.ActualQty)
		}
		if sl.IsAnomaly {
			t.Fatalf("drafts must not classify")
		}
	}

	// Final counts: steel -10% breaches its 5% contractor threshold,
	// copper -1% sits inside its 3% material default, zinc -2% sits
	// exactly on the configured 2% default.
	steelQty := decimal.NewFromInt(90)
	copperQty := decimal.NewFromInt(198)
	zincQty := decimal.NewFromInt(49)
	unit, err = workflow.SubmitCounts(ctx, unit.ID, 1, []workflow.LineCount{
		{LineId: lineFor(unit, steel.ID).ID, ActualQty: &steelQty},
		{LineId: lineFor(unit, copper.ID).ID, ActualQty: &copperQty},
		{LineId: lineFor(unit, zinc.ID).ID, ActualQty: &zincQty},
	})
	if err != nil {
		t.Fatalf("SubmitCounts: %v", err)
	}
	if unit.Status != models.UnitStatusReview {
		t.Fatalf("expected status Review after submit; got %s", unit.Status)
	}

	steelLine := lineFor(unit, steel.ID)
	if !steelLine.IsAnomaly {
		t.Fatalf("expected steel line flagged anomalous")
	}
	if steelLine.Severity != models.SeverityMedium {
		t.Fatalf("expected Medium severity for 10%% variance; got %s", steelLine.Severity)
	}
	if steelLine.Tier != models.ThresholdTierContractor {
		t.Fatalf("contractor override must beat the material default; got %s", steelLine.Tier)
	}
	if steelLine.ThresholdPct.Cmp(decimal.NewFromInt(5)) != 0 {
		t.Fatalf("expected applied threshold 5; got %s", steelLine.ThresholdPct.String())
	}

	copperLine := lineFor(unit, copper.ID)
	if copperLine.IsAnomaly {
		t.Fatalf("copper -1%% within material default 3%% must not be anomalous")
	}
	if copperLine.Tier != models.ThresholdTierMaterial {
		t.Fatalf("expected material threshold tier for copper; got %s", copperLine.Tier)
	}
	if copperLine.ThresholdPct.Cmp(decimal.NewFromInt(3)) != 0 {
		t.Fatalf("expected applied threshold 3 for copper; got %s", copperLine.ThresholdPct.String())
	}

	zincLine := lineFor(unit, zinc.ID)
	if zincLine.IsAnomaly {
		t.Fatalf("zinc -2%% exactly on the default threshold must be tolerated")
	}
	if zincLine.Tier != models.ThresholdTierDefault {
		t.Fatalf("expected default threshold tier for zinc; got %s", zincLine.Tier)
	}
	if zincLine.ThresholdPct.Cmp(decimal.NewFromInt(2)) != 0 {
		t.Fatalf("expected applied threshold 2 for zinc; got %s", zincLine.ThresholdPct.String())
	}

	// Reviewer 2 claims the submitted unit; another user cannot take it
	// over, re-claiming by the same reviewer is a no-op.
	unit, err = workflow.ClaimReview(ctx, unit.ID, 2)
	if err != nil {
		t.Fatalf("ClaimReview: %v", err)
	}
	if unit.ReviewerId == nil || *unit.ReviewerId != 2 {
		t.Fatalf("expected reviewer 2 recorded on claim; got %v", unit.ReviewerId)
	}
	if _, err := workflow.ClaimReview(ctx, unit.ID, 3); !errors.Is(err, utils.ErrValidation) {
		t.Fatalf("expected ErrValidation when claiming an already claimed unit; got %v", err)
	}
	if _, err := workflow.ClaimReview(ctx, unit.ID, 2); err != nil {
		t.Fatalf("ClaimReview(same reviewer): %v", err)
	}

	// Steel is accepted, copper is explicitly sent to investigation even
	// though it never breached its threshold, zinc auto-accepts inside
	// the band.
	unit, err = workflow.ResolveUnit(ctx, unit.ID, 2, []workflow.LineResolutionInput{
		{LineId: steelLine.ID, Resolution: "accept", Notes: "count verified on site"},
		{LineId: copperLine.ID, Resolution: "investigate", Notes: "spools look tampered"},
	})
	if err != nil {
		t.Fatalf("ResolveUnit: %v", err)
	}
	if unit.Status != models.UnitStatusResolved {
		t.Fatalf("expected status Resolved; got %s", unit.Status)
	}

	db := config.GetDB()
	businessId, _ := utils.GetBusinessIdFromContext(ctx)

	readQty := func(materialId int) (decimal.Decimal, int) {
		t.Helper()
		qty, version, err := models.ReadQuantity(db.WithContext(ctx), businessId, contractor.ID, materialId)
		if err != nil {
			t.Fatalf("ReadQuantity(%d): %v", materialId, err)
		}
		return qty, version
	}

	steelHeld, steelVersion := readQty(steel.ID)
	if steelHeld.Cmp(steelQty) != 0 {
		t.Fatalf("expected steel ledger rewritten to 90; got %s", steelHeld.String())
	}
	if copperHeld, _ := readQty(copper.ID); copperHeld.Cmp(decimal.NewFromInt(200)) != 0 {
		t.Fatalf("investigation must not touch the ledger; copper = %s", copperHeld.String())
	}
	if zincHeld, _ := readQty(zinc.ID); zincHeld.Cmp(zincQty) != 0 {
		t.Fatalf("expected zinc auto-accepted to 49; got %s", zincHeld.String())
	}

	var movements []models.StockMovement
	if err := db.WithContext(ctx).
		Where("business_id = ? AND unit_id = ?", businessId, unit.ID).
		Order("line_id").
		Find(&movements).Error; err != nil {
		t.Fatalf("fetch movements: %v", err)
	}
	if len(movements) != 2 {
		t.Fatalf("expected movement rows for steel and zinc only; got %d", len(movements))
	}
	for _, m := range movements {
		if m.MovementType != models.MovementTypeAdjustment {
			t.Fatalf("expected Adjustment movement; got %s", m.MovementType)
		}
		if m.MaterialId == copper.ID {
			t.Fatalf("investigated copper line must not produce a movement")
		}
	}
	if movements[0].QtyBefore.Cmp(decimal.NewFromInt(100)) != 0 || movements[0].QtyAfter.Cmp(steelQty) != 0 {
		t.Fatalf("expected steel movement 100 -> 90; got %s -> %s", movements[0].QtyBefore.String(), movements[0].QtyAfter.String())
	}

	// Two worklist entries: the breached steel line and the explicitly
	// investigated copper line.
	anomalies, err := models.ListAnomaly(ctx, models.AnomalyFilter{UnitId: &unit.ID})
	if err != nil {
		t.Fatalf("ListAnomaly: %v", err)
	}
	if len(anomalies) != 2 {
		t.Fatalf("expected anomalies for steel and copper; got %d", len(anomalies))
	}
	var steelAnomaly, copperAnomaly *models.Anomaly
	for _, a := range anomalies {
		switch a.LineId {
		case steelLine.ID:
			steelAnomaly = a
		case copperLine.ID:
			copperAnomaly = a
		}
	}
	if steelAnomaly == nil || steelAnomaly.Resolved || steelAnomaly.Severity != models.SeverityMedium {
		t.Fatalf("expected open Medium anomaly for steel; got %+v", steelAnomaly)
	}
	if copperAnomaly == nil {
		t.Fatalf("explicit investigate on a within-threshold line must open an anomaly")
	}
	if copperAnomaly.Resolved || copperAnomaly.Severity != models.SeverityNone {
		t.Fatalf("expected open None-severity anomaly for copper; got %+v", copperAnomaly)
	}

	// A second resolve of the same unit is an error, not a replay.
	if _, err := workflow.ResolveUnit(ctx, unit.ID, 2, nil); !errors.Is(err, utils.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on second resolve; got %v", err)
	}
	var count int64
	if err := db.WithContext(ctx).Model(&models.StockMovement{}).
		Where("business_id = ? AND unit_id = ?", businessId, unit.ID).
		Count(&count).Error; err != nil {
		t.Fatalf("count movements: %v", err)
	}
	if count != 2 {
		t.Fatalf("rejected resolve created extra movement rows: %d", count)
	}

	// Resolved is terminal: further counting is rejected.
	if _, err := workflow.SubmitCounts(ctx, unit.ID, 1, nil); !errors.Is(err, utils.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on submit after resolve; got %v", err)
	}

	// Closing an anomaly works once; the second close is rejected.
	if _, err := models.ResolveAnomaly(ctx, steelAnomaly.ID, "written off"); err != nil {
		t.Fatalf("ResolveAnomaly: %v", err)
	}
	if _, err := models.ResolveAnomaly(ctx, steelAnomaly.ID, "again"); !errors.Is(err, utils.ErrValidation) {
		t.Fatalf("expected ErrValidation on double anomaly resolve; got %v", err)
	}

	// A stale version must never overwrite the balance. The accept above
	// bumped the row past the version read before resolve.
	staleErr := models.WriteQuantity(db.WithContext(ctx), businessId, contractor.ID, steel.ID, decimal.NewFromInt(500), steelVersion-1)
	if !errors.Is(staleErr, utils.ErrLedgerConflict) {
		t.Fatalf("expected ErrLedgerConflict on stale version; got %v", staleErr)
	}
	if held, _ := readQty(steel.ID); held.Cmp(steelQty) != 0 {
		t.Fatalf("conflicting write changed the ledger: %s", held.String())
	}

	// A failing line aborts the whole resolve: a second check over the same
	// holdings is resolved with an accept on a line that was never counted.
	// That is rejected mid-transaction, after the steel line already
	// applied, and nothing of the attempt may stick.
	unit2, err := workflow.OpenUnit(ctx, &workflow.OpenUnitInput{
		ContractorId: contractor.ID,
		Kind:         models.UnitKindRoutineCheck,
	})
	if err != nil {
		t.Fatalf("OpenUnit(second): %v", err)
	}
	// Claiming review is only possible once counting is submitted.
	if _, err := workflow.ClaimReview(ctx, unit2.ID, 2); !errors.Is(err, utils.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition claiming a Counting unit; got %v", err)
	}
	steelRecount := decimal.NewFromInt(85)
	unit2, err = workflow.SubmitCounts(ctx, unit2.ID, 1, []workflow.LineCount{
		{LineId: lineFor(unit2, steel.ID).ID, ActualQty: &steelRecount},
	})
	if err != nil {
		t.Fatalf("SubmitCounts(second): %v", err)
	}
	_, err = workflow.ResolveUnit(ctx, unit2.ID, 2, []workflow.LineResolutionInput{
		{LineId: lineFor(unit2, steel.ID).ID, Resolution: "accept"},
		{LineId: lineFor(unit2, copper.ID).ID, Resolution: "accept"},
	})
	if !errors.Is(err, utils.ErrValidation) {
		t.Fatalf("expected ErrValidation accepting an uncounted line; got %v", err)
	}
	unit2, err = models.GetReconciliationUnit(ctx, unit2.ID)
	if err != nil {
		t.Fatalf("GetReconciliationUnit(second): %v", err)
	}
	if unit2.Status != models.UnitStatusReview {
		t.Fatalf("aborted resolve must leave the unit in Review; got %s", unit2.Status)
	}
	if res := lineFor(unit2, steel.ID).Resolution; res != nil {
		t.Fatalf("aborted resolve must not persist line resolutions; got %s", *res)
	}
	if err := db.WithContext(ctx).Model(&models.StockMovement{}).
		Where("business_id = ? AND unit_id = ?", businessId, unit2.ID).
		Count(&count).Error; err != nil {
		t.Fatalf("count movements(second): %v", err)
	}
	if count != 0 {
		t.Fatalf("aborted resolve leaked %d movement rows", count)
	}
	if held, _ := readQty(steel.ID); held.Cmp(steelQty) != 0 {
		t.Fatalf("aborted resolve changed the ledger: %s", held.String())
	}

	// The aborted attempt must not leave a poisoned idempotency key either:
	// a corrected resolve of the same unit still goes through.
	unit2, err = workflow.ResolveUnit(ctx, unit2.ID, 2, []workflow.LineResolutionInput{
		{LineId: lineFor(unit2, steel.ID).ID, Resolution: "accept"},
	})
	if err != nil {
		t.Fatalf("ResolveUnit(corrected): %v", err)
	}
	if unit2.Status != models.UnitStatusResolved {
		t.Fatalf("expected second unit Resolved after corrected resolve; got %s", unit2.Status)
	}
	if held, _ := readQty(steel.ID); held.Cmp(steelRecount) != 0 {
		t.Fatalf("expected steel rewritten to 85 by corrected resolve; got %s", held.String())
	}
}

func setupIntegration(t *testing.T) context.Context {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "stocktake_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	// Model hooks write History records and need user context.
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")
	ctx = utils.SetUsernameInContext(ctx, "test@local")
	ctx = utils.SetBusinessIdInContext(ctx, "it-biz")
	return ctx
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("stocktake-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("stocktake-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=stocktake_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
