package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/headwall/headwall/pkg/logger"
	"github.com/headwall/headwall/services/optimizer-service/internal/models"
	"github.com/headwall/headwall/services/optimizer-service/internal/repository"
	"github.com/headwall/headwall/services/optimizer-service/internal/service"
)

// OptimizerHandler HTTP обработчики сервиса оптимизации
type OptimizerHandler struct {
	engine     *service.Engine
	rules      *repository.RuleRepository
	executions *repository.ExecutionRepository
	logger     *logger.Logger
}

// NewOptimizerHandler создает новый обработчик
func NewOptimizerHandler(engine *service.Engine, rules *repository.RuleRepository, executions *repository.ExecutionRepository, logger *logger.Logger) *OptimizerHandler {
	return &OptimizerHandler{
		engine:     engine,
		rules:      rules,
		executions: executions,
		logger:     logger,
	}
}

// RunCycleHTTP запускает цикл оптимизации паблишера вне расписания
func (h *OptimizerHandler) RunCycleHTTP(c *gin.Context) {
	start := time.Now()
	defer func() {
		service.RecordHTTPRequest("POST", "/publishers/:publisher_id/run", time.Since(start).Seconds(), c.Writer.Status())
	}()

	publisherID := c.Param("publisher_id")
	if publisherID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Publisher ID is required"})
		return
	}

	summary, err := h.engine.RunCycle(c, publisherID)
	if err != nil {
		if errors.Is(err, models.ErrCycleInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": "Optimization cycle already in progress"})
			return
		}
		h.logger.WithError(err).WithField("publisher", publisherID).Error("Failed to run optimization cycle")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to run optimization cycle"})
		return
	}

	c.JSON(http.StatusOK, summary)
}

// ListRulesHTTP возвращает правила паблишера
func (h *OptimizerHandler) ListRulesHTTP(c *gin.Context) {
	start := time.Now()
	defer func() {
		service.RecordHTTPRequest("GET", "/rules", time.Since(start).Seconds(), c.Writer.Status())
	}()

	publisherID := c.Query("publisher_id")
	if publisherID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Publisher ID is required"})
		return
	}

	rules, err := h.rules.ListByPublisher(c, publisherID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list rules")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list rules"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"rules": rules,
		"total": len(rules),
	})
}

// ListExecutionsHTTP возвращает аудит-записи выполнения правил
func (h *OptimizerHandler) ListExecutionsHTTP(c *gin.Context) {
	start := time.Now()
	defer func() {
		service.RecordHTTPRequest("GET", "/executions", time.Since(start).Seconds(), c.Writer.Status())
	}()

	filter := repository.ExecutionFilter{
		PublisherID: c.Query("publisher_id"),
		Result:      models.ExecutionResult(c.Query("result")),
	}

	if ruleIDStr := c.Query("rule_id"); ruleIDStr != "" {
		ruleID, err := primitive.ObjectIDFromHex(ruleIDStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid rule ID"})
			return
		}
		filter.RuleID = &ruleID
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.ParseInt(limitStr, 10, 64)
		if err != nil || limit < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		filter.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.ParseInt(offsetStr, 10, 64)
		if err != nil || offset < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid offset"})
			return
		}
		filter.Offset = offset
	}

	executions, err := h.executions.List(c, filter)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list executions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list executions"})
		return
	}

	total, err := h.executions.Count(c, filter)
	if err != nil {
		h.logger.WithError(err).Error("Failed to count executions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count executions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"executions": executions,
		"total":      total,
		"limit":      filter.Limit,
		"offset":     filter.Offset,
	})
}

// HealthHTTP проверка живости сервиса
func (h *OptimizerHandler) HealthHTTP(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "optimizer-service",
		"time":    time.Now().UTC(),
	})
}
