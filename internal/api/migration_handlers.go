package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ksred/hoopstats/internal/models"
	"github.com/ksred/hoopstats/internal/utils"
)

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) healthHandler(c *gin.Context) {
	if err := s.db.Health(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// listFunctionsHandler returns the registered migration functions.
func (s *Server) listFunctionsHandler(c *gin.Context) {
	type functionInfo struct {
		Name          string   `json:"name"`
		Description   string   `json:"description"`
		Version       string   `json:"version"`
		TargetColumns []string `json:"target_columns"`
		SourceColumns []string `json:"source_columns"`
	}

	functions := s.registry.List()
	out := make([]functionInfo, 0, len(functions))
	for _, fn := range functions {
		out = append(out, functionInfo{
			Name:          fn.Name,
			Description:   fn.Description,
			Version:       fn.Version,
			TargetColumns: fn.TargetColumns,
			SourceColumns: fn.SourceColumns,
		})
	}
	c.JSON(http.StatusOK, gin.H{"functions": out})
}

// migrationHistoryHandler returns persisted migration runs, newest first.
// An optional ?table= query filters by target table.
func (s *Server) migrationHistoryHandler(c *gin.Context) {
	records, err := s.executor.History(c.Request.Context(), c.Query("table"))
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load migration history")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to load migration history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"migrations": records})
}

// migrationHandler returns one migration run by ID.
func (s *Server) migrationHandler(c *gin.Context) {
	var record models.MigrationLog
	err := s.db.DB().WithContext(c.Request.Context()).First(&record, "id = ?", c.Param("id")).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "migration run not found"})
			return
		}
		s.logger.Error().Err(err).Msg("failed to load migration run")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to load migration run"})
		return
	}
	c.JSON(http.StatusOK, record)
}

// rollbackHandler restores the table snapshot taken for a run.
func (s *Server) rollbackHandler(c *gin.Context) {
	runID := c.Param("id")
	err := s.executor.Rollback(c.Request.Context(), runID)
	if err != nil {
		switch {
		case utils.IsNotFoundError(err):
			c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		case utils.IsRollbackUnavailableError(err):
			c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
		default:
			s.logger.Error().Err(err).Str("run_id", runID).Msg("rollback failed")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "rollback failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "rolled_back", "run_id": runID})
}

// schemaChangesHandler returns the applied schema change audit trail.
func (s *Server) schemaChangesHandler(c *gin.Context) {
	var changes []models.SchemaChange
	query := s.db.DB().WithContext(c.Request.Context()).Order("applied_at DESC")
	if table := c.Query("table"); table != "" {
		query = query.Where("table_name = ?", table)
	}
	if err := query.Find(&changes).Error; err != nil {
		s.logger.Error().Err(err).Msg("failed to load schema changes")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to load schema changes"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"changes": changes})
}
