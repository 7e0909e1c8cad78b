package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/expensio/expensio_backend/internal/apperrors"
	portssvc "github.com/expensio/expensio_backend/internal/core/ports/services"
	"github.com/expensio/expensio_backend/internal/core/services"
	"github.com/expensio/expensio_backend/internal/dto"
	"github.com/expensio/expensio_backend/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/xuri/excelize/v2"
)

// maxReceiptSize caps uploaded receipt files at 10 MiB.
const maxReceiptSize = 10 << 20

// expenseHandler handles HTTP requests related to expenses.
type expenseHandler struct {
	expenseService portssvc.ExpenseSvcFacade
}

// newExpenseHandler creates a new expenseHandler.
func newExpenseHandler(es portssvc.ExpenseSvcFacade) *expenseHandler {
	return &expenseHandler{
		expenseService: es,
	}
}

// registerExpenseRoutes registers all expense-related routes.
func registerExpenseRoutes(rg *gin.RouterGroup, expenseService portssvc.ExpenseSvcFacade) {
	h := newExpenseHandler(expenseService)

	expenses := rg.Group("/expenses")
	{
		expenses.POST("", h.createExpense)
		expenses.GET("", h.listExpenses)
		expenses.GET("/export", h.exportExpenses)
		expenses.GET("/:expenseID", h.getExpense)
		expenses.PUT("/:expenseID", h.updateExpense)
		expenses.DELETE("/:expenseID", h.deleteExpense)
		expenses.POST("/:expenseID/receipt", h.attachReceipt)
		expenses.GET("/:expenseID/audit", h.listAuditTrail)
		expenses.POST("/:expenseID/submit", h.submitExpense)
		expenses.POST("/:expenseID/approve", h.approveExpense)
		expenses.POST("/:expenseID/reject", h.rejectExpense)
		expenses.POST("/:expenseID/request-changes", h.requestChanges)
		expenses.POST("/:expenseID/resubmit", h.resubmitExpense)
		expenses.POST("/:expenseID/reimburse", h.reimburseExpense)
	}
}

// writeTransitionError maps lifecycle service errors onto HTTP statuses.
// Invalid transitions surface as 409 so callers can re-read and retry.
func writeTransitionError(c *gin.Context, logger *slog.Logger, action string, err error) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		logger.Warn("Expense not found for " + action)
		c.JSON(http.StatusNotFound, gin.H{"error": "Expense not found"})
	case errors.Is(err, apperrors.ErrForbidden):
		logger.Warn("Caller forbidden to " + action + " expense")
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
	case errors.Is(err, apperrors.ErrInvalidTransition):
		logger.Warn("Invalid transition on "+action, slog.String("error", err.Error()))
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrValidation):
		logger.Warn("Validation error on "+action, slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.Error("Failed to "+action+" expense", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to " + action + " expense"})
	}
}

// readReceiptFile pulls the optional receipt file out of the multipart form.
// A missing file part is not an error; an oversized or unreadable one is.
func readReceiptFile(c *gin.Context) (*dto.AttachReceiptRequest, error) {
	fileHeader, err := c.FormFile("receipt")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, err
	}
	if fileHeader.Size > maxReceiptSize {
		return nil, fmt.Errorf("receipt exceeds the %d byte limit", maxReceiptSize)
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return &dto.AttachReceiptRequest{
		Filename:    fileHeader.Filename,
		ContentType: contentType,
		Data:        data,
	}, nil
}

// createExpense godoc
// @Summary Create a new expense
// @Description Creates a draft expense. Accepts plain JSON, or multipart form data with the JSON document in the "expense" field and an optional "receipt" file that is stored and queued for extraction.
// @Tags expenses
// @Accept json
// @Accept multipart/form-data
// @Produce json
// @Param expense body dto.CreateExpenseRequest true "Expense details"
// @Success 201 {object} dto.ExpenseResponse
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Failed to create expense"
// @Security BearerAuth
// @Router /expenses [post]
func (h *expenseHandler) createExpense(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	creatorUserID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		logger.Error("Creator user ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req dto.CreateExpenseRequest
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		payload := c.PostForm("expense")
		if payload == "" {
			logger.Warn("Multipart create request missing the expense field")
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing 'expense' form field"})
			return
		}
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			logger.Warn("Failed to parse expense form field", slog.String("error", err.Error()))
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
			return
		}
		// Manual unmarshalling skips Gin's binding step, so validate here.
		if err := binding.Validator.ValidateStruct(req); err != nil {
			logger.Warn("Validation failed for multipart create request", slog.String("error", err.Error()))
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
			return
		}
		receipt, err := readReceiptFile(c)
		if err != nil {
			logger.Warn("Failed to read receipt file", slog.String("error", err.Error()))
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid receipt file: " + err.Error()})
			return
		}
		req.Receipt = receipt
	} else if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for create expense request", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	logger = logger.With(slog.String("creator_user_id", creatorUserID))
	logger.Info("Received request to create expense", slog.String("title", req.Title))

	expense, err := h.expenseService.CreateExpense(c.Request.Context(), req, creatorUserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			logger.Warn("Validation error creating expense", slog.String("error", err.Error()))
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		} else {
			logger.Error("Failed to create expense in service", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create expense"})
		}
		return
	}

	logger.Info("Expense created successfully", slog.String("expense_id", expense.ExpenseID))
	c.JSON(http.StatusCreated, dto.ToExpenseResponse(expense))
}

// getExpense godoc
// @Summary Get an expense by ID
// @Description Retrieves one expense. Owners see their own expenses; approvers and admins see everything.
// @Tags expenses
// @Produce json
// @Param expenseID path string true "Expense ID"
// @Success 200 {object} dto.ExpenseResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Expense not found"
// @Failure 500 {object} map[string]string "Failed to retrieve expense"
// @Security BearerAuth
// @Router /expenses/{expenseID} [get]
func (h *expenseHandler) getExpense(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	expenseID := c.Param("expenseID")

	requesterID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		logger.Error("Requester user ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	expense, err := h.expenseService.GetExpenseByID(c.Request.Context(), expenseID, requesterID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			logger.Warn("Expense not found", slog.String("expense_id", expenseID))
			c.JSON(http.StatusNotFound, gin.H{"error": "Expense not found"})
		} else if errors.Is(err, apperrors.ErrForbidden) {
			logger.Warn("Requester forbidden to view expense", slog.String("expense_id", expenseID))
			c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		} else {
			logger.Error("Failed to get expense from service", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve expense"})
		}
		return
	}

	c.JSON(http.StatusOK, dto.ToExpenseResponse(expense))
}

// listExpenses godoc
// @Summary List expenses
// @Description Lists the caller's own expenses, or a status queue (e.g. status=PENDING) when the caller is an approver or admin.
// @Tags expenses
// @Produce json
// @Param limit query int false "Page size" default(20)
// @Param nextToken query string false "Pagination token from the previous page"
// @Param status query string false "Status queue to list (approvers and admins only)"
// @Success 200 {object} dto.ListExpensesResponse
// @Failure 400 {object} map[string]string "Invalid query parameters"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 500 {object} map[string]string "Failed to list expenses"
// @Security BearerAuth
// @Router /expenses [get]
func (h *expenseHandler) listExpenses(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	requesterID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		logger.Error("Requester user ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var params dto.ListExpensesParams
	if err := c.ShouldBindQuery(&params); err != nil {
		logger.Warn("Failed to bind query params for ListExpenses", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters: " + err.Error()})
		return
	}

	resp, err := h.expenseService.ListExpenses(c.Request.Context(), requesterID, params)
	if err != nil {
		if errors.Is(err, apperrors.ErrForbidden) {
			logger.Warn("Requester forbidden to list status queue")
			c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		} else if errors.Is(err, apperrors.ErrValidation) {
			logger.Warn("Validation error listing expenses", slog.String("error", err.Error()))
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		} else {
			logger.Error("Failed to list expenses from service", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list expenses"})
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}

// updateExpense godoc
// @Summary Update a draft expense
// @Description Updates the editable fields of a draft expense. Changing title, description or vendor re-runs categorization.
// @Tags expenses
// @Accept json
// @Produce json
// @Param expenseID path string true "Expense ID"
// @Param expense body dto.UpdateExpenseRequest true "Fields to update"
// @Success 200 {object} dto.ExpenseResponse
// @Failure 400 {object} map[string]string "Invalid input or expense not editable"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Expense not found"
// @Failure 409 {object} map[string]string "Expense left draft concurrently"
// @Failure 500 {object} map[string]string "Failed to update expense"
// @Security BearerAuth
// @Router /expenses/{expenseID} [put]
func (h *expenseHandler) updateExpense(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	expenseID := c.Param("expenseID")

	requesterID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		logger.Error("Requester user ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req dto.UpdateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for UpdateExpense", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	logger = logger.With(slog.String("expense_id", expenseID))
	logger.Info("Received request to update expense")

	expense, err := h.expenseService.UpdateExpense(c.Request.Context(), expenseID, req, requesterID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			logger.Warn("Expense not found for update")
			c.JSON(http.StatusNotFound, gin.H{"error": "Expense not found"})
		} else if errors.Is(err, apperrors.ErrForbidden) {
			logger.Warn("Requester forbidden to update expense")
			c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		} else if errors.Is(err, apperrors.ErrInvalidTransition) {
			logger.Warn("Expense left draft while updating", slog.String("error", err.Error()))
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		} else if errors.Is(err, apperrors.ErrValidation) {
			logger.Warn("Validation error updating expense", slog.String("error", err.Error()))
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		} else {
			logger.Error("Failed to update expense in service", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update expense"})
		}
		return
	}

	logger.Info("Expense updated successfully")
	c.JSON(http.StatusOK, dto.ToExpenseResponse(expense))
}

// deleteExpense godoc
// @Summary Delete a draft expense
// @Description Deletes a draft expense along with its extraction job. Submitted expenses cannot be deleted.
// @Tags expenses
// @Produce json
// @Param expenseID path string true "Expense ID"
// @Success 204 "No Content"
// @Failure 400 {object} map[string]string "Expense is no longer a draft"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Expense not found"
// @Failure 409 {object} map[string]string "Expense left draft concurrently"
// @Failure 500 {object} map[string]string "Failed to delete expense"
// @Security BearerAuth
// @Router /expenses/{expenseID} [delete]
func (h *expenseHandler) deleteExpense(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	expenseID := c.Param("expenseID")

	requesterID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		logger.Error("Requester user ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	logger = logger.With(slog.String("expense_id", expenseID))
	logger.Info("Received request to delete expense")

	err := h.expenseService.DeleteExpense(c.Request.Context(), expenseID, requesterID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			logger.Warn("Expense not found for deletion")
			c.JSON(http.StatusNotFound, gin.H{"error": "Expense not found"})
		} else if errors.Is(err, apperrors.ErrForbidden) {
			logger.Warn("Requester forbidden to delete expense")
			c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		} else if errors.Is(err, apperrors.ErrInvalidTransition) {
			logger.Warn("Expense left draft while deleting", slog.String("error", err.Error()))
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		} else if errors.Is(err, apperrors.ErrValidation) {
			logger.Warn("Expense no longer deletable", slog.String("error", err.Error()))
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		} else {
			logger.Error("Failed to delete expense in service", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete expense"})
		}
		return
	}

	logger.Info("Expense deleted successfully")
	c.Status(http.StatusNoContent)
}

// attachReceipt godoc
// @Summary Attach a receipt to a draft expense
// @Description Uploads a receipt file for a draft expense. A new receipt replaces the previous one and re-queues extraction from scratch.
// @Tags expenses
// @Accept multipart/form-data
// @Produce json
// @Param expenseID path string true "Expense ID"
// @Param receipt formData file true "Receipt file"
// @Success 200 {object} dto.ExpenseResponse
// @Failure 400 {object} map[string]string "Invalid or missing receipt file"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Expense not found"
// @Failure 409 {object} map[string]string "Expense left draft concurrently"
// @Failure 500 {object} map[string]string "Failed to attach receipt"
// @Security BearerAuth
// @Router /expenses/{expenseID}/receipt [post]
func (h *expenseHandler) attachReceipt(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	expenseID := c.Param("expenseID")

	requesterID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		logger.Error("Requester user ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	receipt, err := readReceiptFile(c)
	if err != nil {
		logger.Warn("Failed to read receipt file", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid receipt file: " + err.Error()})
		return
	}
	if receipt == nil {
		logger.Warn("Attach receipt request missing the receipt file")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing 'receipt' file"})
		return
	}

	logger = logger.With(slog.String("expense_id", expenseID))
	logger.Info("Received request to attach receipt", slog.String("filename", receipt.Filename), slog.Int("size_bytes", len(receipt.Data)))

	expense, err := h.expenseService.AttachReceipt(c.Request.Context(), expenseID, *receipt, requesterID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			logger.Warn("Expense not found for receipt attachment")
			c.JSON(http.StatusNotFound, gin.H{"error": "Expense not found"})
		} else if errors.Is(err, apperrors.ErrForbidden) {
			logger.Warn("Requester forbidden to attach receipt")
			c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		} else if errors.Is(err, apperrors.ErrInvalidTransition) {
			logger.Warn("Expense left draft while attaching receipt", slog.String("error", err.Error()))
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		} else if errors.Is(err, apperrors.ErrValidation) {
			logger.Warn("Validation error attaching receipt", slog.String("error", err.Error()))
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		} else {
			logger.Error("Failed to attach receipt in service", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to attach receipt"})
		}
		return
	}

	logger.Info("Receipt attached successfully")
	c.JSON(http.StatusOK, dto.ToExpenseResponse(expense))
}

// listAuditTrail godoc
// @Summary List the audit trail of an expense
// @Description Returns every recorded action for an expense, oldest first. Visible to the owner, approvers and admins.
// @Tags expenses
// @Produce json
// @Param expenseID path string true "Expense ID"
// @Success 200 {object} dto.ListAuditTrailResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Expense not found"
// @Failure 500 {object} map[string]string "Failed to list audit trail"
// @Security BearerAuth
// @Router /expenses/{expenseID}/audit [get]
func (h *expenseHandler) listAuditTrail(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	expenseID := c.Param("expenseID")

	requesterID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		logger.Error("Requester user ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	entries, err := h.expenseService.ListAuditTrail(c.Request.Context(), expenseID, requesterID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			logger.Warn("Expense not found for audit trail", slog.String("expense_id", expenseID))
			c.JSON(http.StatusNotFound, gin.H{"error": "Expense not found"})
		} else if errors.Is(err, apperrors.ErrForbidden) {
			logger.Warn("Requester forbidden to view audit trail", slog.String("expense_id", expenseID))
			c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		} else {
			logger.Error("Failed to list audit trail from service", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list audit trail"})
		}
		return
	}

	c.JSON(http.StatusOK, dto.ListAuditTrailResponse{Entries: dto.ToAuditEntryResponses(entries)})
}

// exportExpenses godoc
// @Summary Export expenses as a spreadsheet
// @Description Exports the caller's expenses (or a status queue, for approvers and admins) as an xlsx attachment.
// @Tags expenses
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param status query string false "Status queue to export (approvers and admins only)"
// @Success 200 {file} file "xlsx spreadsheet"
// @Failure 400 {object} map[string]string "Invalid query parameters"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 500 {object} map[string]string "Failed to export expenses"
// @Security BearerAuth
// @Router /expenses/export [get]
func (h *expenseHandler) exportExpenses(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	requesterID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		logger.Error("Requester user ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var params dto.ListExpensesParams
	if err := c.ShouldBindQuery(&params); err != nil {
		logger.Warn("Failed to bind query params for export", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters: " + err.Error()})
		return
	}

	// Walk every page; the listing service enforces who may see which queue.
	params.Limit = 100
	params.NextToken = nil
	var all []dto.ExpenseResponse
	for {
		page, err := h.expenseService.ListExpenses(c.Request.Context(), requesterID, params)
		if err != nil {
			if errors.Is(err, apperrors.ErrForbidden) {
				logger.Warn("Requester forbidden to export status queue")
				c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
			} else if errors.Is(err, apperrors.ErrValidation) {
				logger.Warn("Validation error exporting expenses", slog.String("error", err.Error()))
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			} else {
				logger.Error("Failed to list expenses for export", slog.String("error", err.Error()))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to export expenses"})
			}
			return
		}
		all = append(all, page.Expenses...)
		if page.NextToken == nil {
			break
		}
		params.NextToken = page.NextToken
	}

	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil {
			logger.Error("Failed to close spreadsheet", slog.String("error", cerr.Error()))
		}
	}()

	const sheetName = "Expenses"
	f.SetSheetName("Sheet1", sheetName)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	headers := []string{"ID", "Title", "Vendor", "Amount", "Currency", "Category", "Status", "Submitted At", "Created At"}
	for i, header := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(sheetName, cell, header)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}
	f.SetColWidth(sheetName, "A", "A", 38)
	f.SetColWidth(sheetName, "B", "C", 24)
	f.SetColWidth(sheetName, "D", "G", 14)
	f.SetColWidth(sheetName, "H", "I", 20)

	for i, e := range all {
		row := i + 2
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), e.ExpenseID)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), e.Title)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), e.Vendor)
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), e.Amount.InexactFloat64())
		f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), e.CurrencyCode)
		f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), string(e.Category))
		f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), e.Status)
		if e.SubmittedAt != nil {
			f.SetCellValue(sheetName, fmt.Sprintf("H%d", row), e.SubmittedAt.Format("2006-01-02 15:04:05"))
		}
		f.SetCellValue(sheetName, fmt.Sprintf("I%d", row), e.CreatedAt.Format("2006-01-02 15:04:05"))
	}

	filename := fmt.Sprintf("expenses_%s.xlsx", time.Now().Format("2006-01-02"))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if err := f.Write(c.Writer); err != nil {
		logger.Error("Failed to write spreadsheet to response", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to export expenses"})
		return
	}

	logger.Info("Expenses exported", slog.Int("count", len(all)))
}

// submitExpense godoc
// @Summary Submit an expense for approval
// @Description Moves a draft expense to PENDING, assigns an approver and notifies them.
// @Tags expenses
// @Produce json
// @Param expenseID path string true "Expense ID"
// @Success 200 {object} dto.ExpenseResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Expense not found"
// @Failure 409 {object} map[string]string "Expense is not in a submittable state or no approver available"
// @Failure 500 {object} map[string]string "Failed to submit expense"
// @Security BearerAuth
// @Router /expenses/{expenseID}/submit [post]
func (h *expenseHandler) submitExpense(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	expenseID := c.Param("expenseID")

	actorID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		logger.Error("Actor user ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	logger = logger.With(slog.String("expense_id", expenseID))
	logger.Info("Received request to submit expense")

	expense, err := h.expenseService.SubmitExpense(c.Request.Context(), expenseID, actorID)
	if err != nil {
		if errors.Is(err, services.ErrNoEligibleApprover) {
			logger.Warn("No eligible approver available for submission")
			c.JSON(http.StatusConflict, gin.H{"error": "No eligible approver available"})
			return
		}
		writeTransitionError(c, logger, "submit", err)
		return
	}

	logger.Info("Expense submitted successfully")
	c.JSON(http.StatusOK, dto.ToExpenseResponse(expense))
}

// approveExpense godoc
// @Summary Approve a pending expense
// @Description Moves a pending expense to APPROVED. An optional note is recorded in the audit trail. A category kept different from the suggestion feeds the classifier.
// @Tags expenses
// @Accept json
// @Produce json
// @Param expenseID path string true "Expense ID"
// @Param approval body dto.ApproveExpenseRequest false "Optional approval note"
// @Success 200 {object} dto.ExpenseResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden (caller is not an approver)"
// @Failure 404 {object} map[string]string "Expense not found"
// @Failure 409 {object} map[string]string "Expense is not pending"
// @Failure 500 {object} map[string]string "Failed to approve expense"
// @Security BearerAuth
// @Router /expenses/{expenseID}/approve [post]
func (h *expenseHandler) approveExpense(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	expenseID := c.Param("expenseID")

	approverID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		logger.Error("Approver user ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	// The note is optional, so an empty body is fine.
	var req dto.ApproveExpenseRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			logger.Warn("Failed to bind JSON for ApproveExpense", slog.String("error", err.Error()))
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
			return
		}
	}

	logger = logger.With(slog.String("expense_id", expenseID))
	logger.Info("Received request to approve expense")

	expense, err := h.expenseService.ApproveExpense(c.Request.Context(), expenseID, approverID, req.Note)
	if err != nil {
		writeTransitionError(c, logger, "approve", err)
		return
	}

	logger.Info("Expense approved successfully")
	c.JSON(http.StatusOK, dto.ToExpenseResponse(expense))
}

// rejectExpense godoc
// @Summary Reject a pending expense
// @Description Moves a pending expense to REJECTED. A non-empty reason is required and lands in the audit trail and the owner notification.
// @Tags expenses
// @Accept json
// @Produce json
// @Param expenseID path string true "Expense ID"
// @Param rejection body dto.RejectExpenseRequest true "Rejection reason"
// @Success 200 {object} dto.ExpenseResponse
// @Failure 400 {object} map[string]string "Missing rejection reason"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden (caller is not an approver)"
// @Failure 404 {object} map[string]string "Expense not found"
// @Failure 409 {object} map[string]string "Expense is not pending"
// @Failure 500 {object} map[string]string "Failed to reject expense"
// @Security BearerAuth
// @Router /expenses/{expenseID}/reject [post]
func (h *expenseHandler) rejectExpense(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	expenseID := c.Param("expenseID")

	approverID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		logger.Error("Approver user ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req dto.RejectExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for RejectExpense", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	logger = logger.With(slog.String("expense_id", expenseID))
	logger.Info("Received request to reject expense")

	expense, err := h.expenseService.RejectExpense(c.Request.Context(), expenseID, approverID, req.Reason)
	if err != nil {
		writeTransitionError(c, logger, "reject", err)
		return
	}

	logger.Info("Expense rejected successfully")
	c.JSON(http.StatusOK, dto.ToExpenseResponse(expense))
}

// requestChanges godoc
// @Summary Request changes on a pending expense
// @Description Moves a pending expense to CHANGES_REQUESTED with a message for the owner, who can edit and resubmit.
// @Tags expenses
// @Accept json
// @Produce json
// @Param expenseID path string true "Expense ID"
// @Param changes body dto.RequestChangesRequest true "Change-request message"
// @Success 200 {object} dto.ExpenseResponse
// @Failure 400 {object} map[string]string "Missing change-request message"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden (caller is not an approver)"
// @Failure 404 {object} map[string]string "Expense not found"
// @Failure 409 {object} map[string]string "Expense is not pending"
// @Failure 500 {object} map[string]string "Failed to request changes"
// @Security BearerAuth
// @Router /expenses/{expenseID}/request-changes [post]
func (h *expenseHandler) requestChanges(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	expenseID := c.Param("expenseID")

	approverID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		logger.Error("Approver user ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req dto.RequestChangesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for RequestChanges", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	logger = logger.With(slog.String("expense_id", expenseID))
	logger.Info("Received request to request changes on expense")

	expense, err := h.expenseService.RequestChanges(c.Request.Context(), expenseID, approverID, req.Message)
	if err != nil {
		writeTransitionError(c, logger, "request changes on", err)
		return
	}

	logger.Info("Changes requested successfully")
	c.JSON(http.StatusOK, dto.ToExpenseResponse(expense))
}

// resubmitExpense godoc
// @Summary Resubmit an expense after changes
// @Description Moves a CHANGES_REQUESTED expense back to PENDING, keeping the assigned approver when still eligible.
// @Tags expenses
// @Produce json
// @Param expenseID path string true "Expense ID"
// @Success 200 {object} dto.ExpenseResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Expense not found"
// @Failure 409 {object} map[string]string "Expense has no requested changes"
// @Failure 500 {object} map[string]string "Failed to resubmit expense"
// @Security BearerAuth
// @Router /expenses/{expenseID}/resubmit [post]
func (h *expenseHandler) resubmitExpense(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	expenseID := c.Param("expenseID")

	actorID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		logger.Error("Actor user ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	logger = logger.With(slog.String("expense_id", expenseID))
	logger.Info("Received request to resubmit expense")

	expense, err := h.expenseService.ResubmitExpense(c.Request.Context(), expenseID, actorID)
	if err != nil {
		if errors.Is(err, services.ErrNoEligibleApprover) {
			logger.Warn("No eligible approver available for resubmission")
			c.JSON(http.StatusConflict, gin.H{"error": "No eligible approver available"})
			return
		}
		writeTransitionError(c, logger, "resubmit", err)
		return
	}

	logger.Info("Expense resubmitted successfully")
	c.JSON(http.StatusOK, dto.ToExpenseResponse(expense))
}

// reimburseExpense godoc
// @Summary Mark an approved expense as reimbursed
// @Description Moves an approved expense to REIMBURSED, the terminal state.
// @Tags expenses
// @Produce json
// @Param expenseID path string true "Expense ID"
// @Success 200 {object} dto.ExpenseResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden (caller is not an approver)"
// @Failure 404 {object} map[string]string "Expense not found"
// @Failure 409 {object} map[string]string "Expense is not approved"
// @Failure 500 {object} map[string]string "Failed to reimburse expense"
// @Security BearerAuth
// @Router /expenses/{expenseID}/reimburse [post]
func (h *expenseHandler) reimburseExpense(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	expenseID := c.Param("expenseID")

	actorID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		logger.Error("Actor user ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	logger = logger.With(slog.String("expense_id", expenseID))
	logger.Info("Received request to reimburse expense")

	expense, err := h.expenseService.ReimburseExpense(c.Request.Context(), expenseID, actorID)
	if err != nil {
		writeTransitionError(c, logger, "reimburse", err)
		return
	}

	logger.Info("Expense reimbursed successfully")
	c.JSON(http.StatusOK, dto.ToExpenseResponse(expense))
}
