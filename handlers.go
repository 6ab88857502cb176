package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"bitbucket.org/mmdatafocus/stocktake_backend/config"
	"bitbucket.org/mmdatafocus/stocktake_backend/models"
	"bitbucket.org/mmdatafocus/stocktake_backend/models/reports"
	"bitbucket.org/mmdatafocus/stocktake_backend/utils"
	"bitbucket.org/mmdatafocus/stocktake_backend/workflow"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// errStatus maps the engine's failure taxonomy to HTTP codes. Anything
// outside the taxonomy is an internal error.
func errStatus(err error) int {
	switch {
	case errors.Is(err, utils.ErrorRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, utils.ErrThresholdConflict),
		errors.Is(err, utils.ErrLedgerConflict),
		errors.Is(err, workflow.ErrIdempotencyInProgress):
		return http.StatusConflict
	case errors.Is(err, utils.ErrValidation),
		errors.Is(err, utils.ErrInvalidTransition):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func abortWithError(c *gin.Context, err error) {
	status := errStatus(err)
	if status == http.StatusInternalServerError {
		logger := config.GetLogger()
		config.LogError(logger, "handlers.go", c.FullPath(), "request failed", c.Request.URL.Path, err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// requireSession rejects requests that carry no resolved identity.
func requireSession(c *gin.Context) bool {
	businessId, ok := utils.GetBusinessIdFromContext(c.Request.Context())
	if !ok || businessId == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return false
	}
	return true
}

func pathId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string) *int {
	v := c.Query(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}

/* auth */

func loginHandler() gin.HandlerFunc {
	type loginRequest struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
			return
		}
		info, err := models.Login(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, info)
	}
}

func logoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := models.Logout(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"logged_out": ok})
	}
}

/* checks */

func openCheckHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		var input workflow.OpenUnitInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		unit, err := workflow.OpenUnit(c.Request.Context(), &input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, workflow.BuildUnitView(unit))
	}
}

func listChecksHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		var filter models.UnitFilter
		if v := c.Query("kind"); v != "" {
			kind := models.UnitKind(v)
			if !kind.IsValid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid kind"})
				return
			}
			filter.Kind = &kind
		}
		if v := c.Query("status"); v != "" {
			status := models.UnitStatus(v)
			filter.Status = &status
		}
		filter.ContractorId = queryInt(c, "contractor_id")

		units, err := models.ListReconciliationUnit(c.Request.Context(), filter)
		if err != nil {
			abortWithError(c, err)
			return
		}
		views := make([]*workflow.UnitView, 0, len(units))
		for _, unit := range units {
			views = append(views, workflow.BuildUnitView(unit))
		}
		c.JSON(http.StatusOK, views)
	}
}

func getCheckHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		id, ok := pathId(c)
		if !ok {
			return
		}
		unit, err := models.GetReconciliationUnit(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, workflow.BuildUnitView(unit))
	}
}

// countingViewHandler serves the counter's worksheet. For blind units the
// expected quantities stay hidden until the unit reaches Review.
func countingViewHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		id, ok := pathId(c)
		if !ok {
			return
		}
		unit, err := models.GetReconciliationUnit(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		lines := make([]workflow.LineView, 0, len(unit.Lines))
		for i := range unit.Lines {
			lines = append(lines, workflow.BuildLineView(unit, &unit.Lines[i]))
		}
		c.JSON(http.StatusOK, gin.H{
			"unit_number": unit.UnitNumber,
			"status":      unit.Status.DisplayFor(unit.Kind, unit.ReviewerId != nil),
			"blind":       unit.Blind,
			"lines":       lines,
		})
	}
}

func checkHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		id, ok := pathId(c)
		if !ok {
			return
		}
		history, err := models.ListHistory(c.Request.Context(), "reconciliation_units", id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, history)
	}
}

type countsRequest struct {
	CounterId int                  `json:"counter_id" binding:"required"`
	Lines     []workflow.LineCount `json:"lines" binding:"required"`
}

func saveDraftCountsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req countsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		if err := workflow.SaveDraftCounts(c.Request.Context(), id, req.CounterId, req.Lines); err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"saved": true})
	}
}

func submitCountsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req countsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		unit, err := workflow.SubmitCounts(c.Request.Context(), id, req.CounterId, req.Lines)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, workflow.BuildUnitView(unit))
	}
}

func resolveCheckHandler() gin.HandlerFunc {
	type resolveRequest struct {
		ReviewerId  int                            `json:"reviewer_id" binding:"required"`
		Resolutions []workflow.LineResolutionInput `json:"resolutions"`
	}
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req resolveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		unit, err := workflow.ResolveUnit(c.Request.Context(), id, req.ReviewerId, req.Resolutions)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, workflow.BuildUnitView(unit))
	}
}

func claimReviewHandler() gin.HandlerFunc {
	type claimRequest struct {
		ReviewerId int `json:"reviewer_id" binding:"required"`
	}
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req claimRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		unit, err := workflow.ClaimReview(c.Request.Context(), id, req.ReviewerId)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, workflow.BuildUnitView(unit))
	}
}

func cancelCheckHandler() gin.HandlerFunc {
	type cancelRequest struct {
		Reason string `json:"reason"`
	}
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req cancelRequest
		_ = c.ShouldBindJSON(&req)
		unit, err := workflow.CancelUnit(c.Request.Context(), id, req.Reason)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, workflow.BuildUnitView(unit))
	}
}

func exportVarianceReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		id, ok := pathId(c)
		if !ok {
			return
		}
		ctx, span := tracer.Start(c.Request.Context(), "report.varianceExport")
		defer span.End()
		unit, rows, err := reports.GetVarianceReport(ctx, id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		f, err := reports.WriteVarianceReportExcel(unit, rows)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.xlsx", unit.UnitNumber))
		if err := f.Write(c.Writer); err != nil {
			logger := config.GetLogger()
			config.LogError(logger, "handlers.go", "exportVarianceReportHandler", "writing workbook", id, err)
		}
	}
}

/* anomalies */

func listAnomaliesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		var filter models.AnomalyFilter
		filter.ContractorId = queryInt(c, "contractor_id")
		filter.UnitId = queryInt(c, "unit_id")
		if v := c.Query("severity"); v != "" {
			severity := models.Severity(v)
			filter.Severity = &severity
		}
		if v := c.Query("resolved"); v != "" {
			resolved, err := strconv.ParseBool(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid resolved filter"})
				return
			}
			filter.Resolved = &resolved
		}
		anomalies, err := models.ListAnomaly(c.Request.Context(), filter)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, anomalies)
	}
}

func getAnomalyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		id, ok := pathId(c)
		if !ok {
			return
		}
		anomaly, err := models.GetAnomaly(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, anomaly)
	}
}

func resolveAnomalyHandler() gin.HandlerFunc {
	type resolveRequest struct {
		Notes string `json:"notes"`
	}
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req resolveRequest
		_ = c.ShouldBindJSON(&req)
		anomaly, err := models.ResolveAnomaly(c.Request.Context(), id, req.Notes)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, anomaly)
	}
}

/* thresholds */

func listThresholdsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		thresholds, err := models.ListVarianceThreshold(c.Request.Context(),
			queryInt(c, "material_id"), queryInt(c, "contractor_id"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, thresholds)
	}
}

func createThresholdHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		var input models.NewVarianceThreshold
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		threshold, err := models.CreateVarianceThreshold(c.Request.Context(), &input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, threshold)
	}
}

func updateThresholdHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewVarianceThreshold
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		threshold, err := models.UpdateVarianceThreshold(c.Request.Context(), id, &input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, threshold)
	}
}

func deleteThresholdHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		id, ok := pathId(c)
		if !ok {
			return
		}
		threshold, err := models.DeleteVarianceThreshold(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, threshold)
	}
}

/* master data */

func listContractorsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		name := c.Query("name")
		var namePtr *string
		if name != "" {
			namePtr = &name
		}
		contractors, err := models.ListContractor(c.Request.Context(), namePtr)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, contractors)
	}
}

func createContractorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		var input models.NewContractor
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		contractor, err := models.CreateContractor(c.Request.Context(), &input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, contractor)
	}
}

func updateContractorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewContractor
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		contractor, err := models.UpdateContractor(c.Request.Context(), id, &input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, contractor)
	}
}

func deleteContractorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		id, ok := pathId(c)
		if !ok {
			return
		}
		contractor, err := models.DeleteContractor(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, contractor)
	}
}

func listMaterialsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		name := c.Query("name")
		var namePtr *string
		if name != "" {
			namePtr = &name
		}
		materials, err := models.ListMaterial(c.Request.Context(), namePtr)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, materials)
	}
}

func createMaterialHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		var input models.NewMaterial
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		material, err := models.CreateMaterial(c.Request.Context(), &input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, material)
	}
}

func updateMaterialHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewMaterial
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		material, err := models.UpdateMaterial(c.Request.Context(), id, &input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, material)
	}
}

func deleteMaterialHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		id, ok := pathId(c)
		if !ok {
			return
		}
		material, err := models.DeleteMaterial(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, material)
	}
}

func listWarehousesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		name := c.Query("name")
		var namePtr *string
		if name != "" {
			namePtr = &name
		}
		warehouses, err := models.ListWarehouse(c.Request.Context(), namePtr)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, warehouses)
	}
}

func createWarehouseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		var input models.NewWarehouse
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		warehouse, err := models.CreateWarehouse(c.Request.Context(), &input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, warehouse)
	}
}

func updateWarehouseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewWarehouse
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		warehouse, err := models.UpdateWarehouse(c.Request.Context(), id, &input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, warehouse)
	}
}

func deleteWarehouseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		id, ok := pathId(c)
		if !ok {
			return
		}
		warehouse, err := models.DeleteWarehouse(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, warehouse)
	}
}

/* ledger */

func listStockBalancesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		balances, err := models.ListStockBalance(c.Request.Context(), queryInt(c, "contractor_id"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, balances)
	}
}

func listStockMovementsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		movements, err := models.ListStockMovement(c.Request.Context(),
			queryInt(c, "contractor_id"), queryInt(c, "material_id"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, movements)
	}
}

// setOpeningStockHandler seeds the ledger. Admin only; meant for onboarding
// and test fixtures, not day-to-day operation.
func setOpeningStockHandler() gin.HandlerFunc {
	type openingStockRequest struct {
		ContractorId int             `json:"contractor_id" binding:"required"`
		MaterialId   int             `json:"material_id" binding:"required"`
		Qty          decimal.Decimal `json:"qty" binding:"required"`
	}
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		isAdmin, _ := utils.GetIsAdminFromContext(c.Request.Context())
		if !isAdmin {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		var req openingStockRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		balance, err := models.SetOpeningQuantity(c.Request.Context(), req.ContractorId, req.MaterialId, req.Qty)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, balance)
	}
}
