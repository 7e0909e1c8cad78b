package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/expensio/expensio_backend/internal/apperrors"
	"github.com/expensio/expensio_backend/internal/core/domain"
	portssvc "github.com/expensio/expensio_backend/internal/core/ports/services"
	"github.com/expensio/expensio_backend/internal/dto"
	"github.com/expensio/expensio_backend/internal/middleware"

	"github.com/gin-gonic/gin"
)

// categorizationHandler handles HTTP requests around category suggestions
// and the classifier model.
type categorizationHandler struct {
	categorizer    portssvc.CategorizerSvc
	expenseService portssvc.ExpenseSvcFacade
	userService    portssvc.UserSvcFacade
}

// newCategorizationHandler creates a new categorizationHandler.
func newCategorizationHandler(cs portssvc.CategorizerSvc, es portssvc.ExpenseSvcFacade, us portssvc.UserSvcFacade) *categorizationHandler {
	return &categorizationHandler{
		categorizer:    cs,
		expenseService: es,
		userService:    us,
	}
}

// registerCategorizationRoutes registers classification and model routes.
func registerCategorizationRoutes(rg *gin.RouterGroup, categorizer portssvc.CategorizerSvc, expenseService portssvc.ExpenseSvcFacade, userService portssvc.UserSvcFacade) {
	h := newCategorizationHandler(categorizer, expenseService, userService)

	rg.POST("/expenses/:expenseID/classify", h.classifyExpense)
	rg.POST("/expenses/:expenseID/feedback", h.recordFeedback)

	categorization := rg.Group("/categorization")
	{
		categorization.GET("/model", h.getModelInfo)
		categorization.POST("/retrain", h.retrainModel)
	}
}

// classifyExpense godoc
// @Summary Re-run categorization for an expense
// @Description Runs the categorization strategy chain for an expense and stores the winning suggestion on it. Classifier outages degrade to rule-based scoring.
// @Tags categorization
// @Produce json
// @Param expenseID path string true "Expense ID"
// @Success 200 {object} dto.CategorizationResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Expense not found"
// @Failure 500 {object} map[string]string "Failed to classify expense"
// @Security BearerAuth
// @Router /expenses/{expenseID}/classify [post]
func (h *categorizationHandler) classifyExpense(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	expenseID := c.Param("expenseID")

	requesterID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		logger.Error("Requester user ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	// The categorizer itself is caller-agnostic; visibility rules live with
	// the expense service, so gate on a read first.
	if _, err := h.expenseService.GetExpenseByID(c.Request.Context(), expenseID, requesterID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			logger.Warn("Expense not found for classification", slog.String("expense_id", expenseID))
			c.JSON(http.StatusNotFound, gin.H{"error": "Expense not found"})
		} else if errors.Is(err, apperrors.ErrForbidden) {
			logger.Warn("Requester forbidden to classify expense", slog.String("expense_id", expenseID))
			c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		} else {
			logger.Error("Failed to load expense for classification", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to classify expense"})
		}
		return
	}

	logger = logger.With(slog.String("expense_id", expenseID))
	logger.Info("Received request to classify expense")

	outcome, err := h.categorizer.ClassifyExpense(c.Request.Context(), expenseID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			logger.Warn("Expense disappeared before classification")
			c.JSON(http.StatusNotFound, gin.H{"error": "Expense not found"})
		} else {
			logger.Error("Failed to classify expense", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to classify expense"})
		}
		return
	}

	logger.Info("Expense classified", slog.String("category", string(outcome.Category)), slog.Float64("confidence", outcome.Confidence))
	c.JSON(http.StatusOK, dto.ToCategorizationResponse(outcome))
}

// recordFeedback godoc
// @Summary Correct the suggested category of an expense
// @Description Sends a human category correction to the classifier. A correction matching the current suggestion is a no-op.
// @Tags categorization
// @Accept json
// @Produce json
// @Param expenseID path string true "Expense ID"
// @Param feedback body dto.CategoryFeedbackRequest true "Corrected category"
// @Success 204 "No Content"
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Expense not found"
// @Failure 500 {object} map[string]string "Failed to record feedback"
// @Security BearerAuth
// @Router /expenses/{expenseID}/feedback [post]
func (h *categorizationHandler) recordFeedback(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	expenseID := c.Param("expenseID")

	actorID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		logger.Error("Actor user ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req dto.CategoryFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for category feedback", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	// Same visibility gate as classification.
	if _, err := h.expenseService.GetExpenseByID(c.Request.Context(), expenseID, actorID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			logger.Warn("Expense not found for feedback", slog.String("expense_id", expenseID))
			c.JSON(http.StatusNotFound, gin.H{"error": "Expense not found"})
		} else if errors.Is(err, apperrors.ErrForbidden) {
			logger.Warn("Actor forbidden to send feedback", slog.String("expense_id", expenseID))
			c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		} else {
			logger.Error("Failed to load expense for feedback", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record feedback"})
		}
		return
	}

	logger = logger.With(slog.String("expense_id", expenseID))
	logger.Info("Received category feedback", slog.String("category", string(req.Category)))

	if err := h.categorizer.RecordCategoryFeedback(c.Request.Context(), expenseID, req.Category, actorID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			logger.Warn("Expense disappeared before feedback")
			c.JSON(http.StatusNotFound, gin.H{"error": "Expense not found"})
		} else {
			logger.Error("Failed to record category feedback", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record feedback"})
		}
		return
	}

	c.Status(http.StatusNoContent)
}

// getModelInfo godoc
// @Summary Get the active classifier model
// @Description Returns the model version and accuracy recorded by the last successful retrain in this process.
// @Tags categorization
// @Produce json
// @Success 200 {object} dto.ModelInfoResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "No retrain has happened yet"
// @Security BearerAuth
// @Router /categorization/model [get]
func (h *categorizationHandler) getModelInfo(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	info := h.categorizer.CurrentModel()
	if info == nil {
		logger.Info("Model info requested before any retrain")
		c.JSON(http.StatusNotFound, gin.H{"error": "No model trained in this process yet"})
		return
	}

	c.JSON(http.StatusOK, dto.ToModelInfoResponse(info))
}

// retrainModel godoc
// @Summary Retrain the classifier model
// @Description Submits recently finalized expenses to the classifier as training samples. Admin only. With too few samples available the run is skipped.
// @Tags categorization
// @Accept json
// @Produce json
// @Param retrain body dto.RetrainRequest false "Optional window and minimum sample overrides"
// @Success 200 {object} dto.ModelInfoResponse
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden (caller is not an admin)"
// @Failure 500 {object} map[string]string "Failed to retrain model"
// @Security BearerAuth
// @Router /categorization/retrain [post]
func (h *categorizationHandler) retrainModel(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	requesterID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		logger.Error("Requester user ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	requester, err := h.userService.GetUserByID(c.Request.Context(), requesterID)
	if err != nil {
		logger.Error("Failed to load requester for retrain authorization", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrain model"})
		return
	}
	if requester.Role != domain.RoleAdmin {
		logger.Warn("Non-admin attempted to trigger a retrain", slog.String("role", string(requester.Role)))
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		return
	}

	// Overrides are optional; zero values pick up the configured defaults.
	var req dto.RetrainRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			logger.Warn("Failed to bind JSON for retrain request", slog.String("error", err.Error()))
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
			return
		}
	}

	logger.Info("Received request to retrain model", slog.Int("window_days", req.SampleWindowDays), slog.Int("min_samples", req.MinSamples))

	info, err := h.categorizer.RetrainModel(c.Request.Context(), req.SampleWindowDays, req.MinSamples)
	if err != nil {
		logger.Error("Failed to retrain model", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrain model"})
		return
	}
	if info == nil {
		logger.Info("Retrain skipped, not enough finalized expenses")
		c.JSON(http.StatusOK, gin.H{"message": "Not enough finalized expenses to retrain"})
		return
	}

	logger.Info("Model retrained", slog.String("model_version", info.Version))
	c.JSON(http.StatusOK, dto.ToModelInfoResponse(info))
}
