package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// handleHealth reports process liveness.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handlePendingTasks dumps the pending tasks of every registered
// consumer, one log-style line per tuple.
func (s *Server) handlePendingTasks(c *gin.Context) {
	lines := make([]string, 0)
	for _, o := range s.orchs {
		lines = append(lines, o.DumpPendingTasks()...)
	}

	c.JSON(http.StatusOK, gin.H{
		"count": len(lines),
		"tasks": lines,
	})
}

// handleReferenceInfo renders the dependency state of one object.
func (s *Server) handleReferenceInfo(c *gin.Context) {
	table := c.Param("table")
	name := c.Param("name")

	if s.refs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "reference map not enabled"})
		return
	}

	if _, ok := s.refs.DoesObjectExist(table, name); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "object not found"})
		return
	}
	info := s.refs.ObjectReferenceInfo(table, name)

	c.JSON(http.StatusOK, gin.H{
		"table": table,
		"name":  name,
		"info":  info,
	})
}
