package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ShayCichocki/opsmesh/internal/knowledge"
	"github.com/ShayCichocki/opsmesh/internal/state"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": float64(time.Now().UnixNano()) / 1e9,
	})
}

func (s *Server) handleAgents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"agents": agentInfos(s.orch.Agents())})
}

func (s *Server) handleProcess(c *gin.Context) {
	var req ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Request must be JSON"})
		return
	}
	if req.Request == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing 'request' field"})
		return
	}

	plan, err := s.orch.ProcessRequest(c.Request.Context(), *req.Request, req.PlanName, req.Async)
	if err != nil {
		s.logger.Error("process request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	message := "Request processed successfully"
	if req.Async {
		message = "Request submitted for processing"
	}
	c.JSON(http.StatusOK, gin.H{"message": message, "plan": NewPlanView(plan)})
}

func (s *Server) handleAnalyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Request must be JSON"})
		return
	}
	if req.Request == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing 'request' field"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"request":         *req.Request,
		"required_agents": s.orch.AnalyzeRequest(*req.Request),
	})
}

func (s *Server) handleListPlans(c *gin.Context) {
	active := s.orch.ActivePlans()
	views := make([]PlanView, 0, len(active))
	for _, p := range active {
		views = append(views, NewPlanView(p))
	}
	c.JSON(http.StatusOK, gin.H{"active_plans": views})
}

func (s *Server) handleGetPlan(c *gin.Context) {
	id := c.Param("id")
	plan, ok := s.orch.GetPlanStatus(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Plan %s not found", id)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"plan": NewPlanView(plan)})
}

func (s *Server) handleResources(c *gin.Context) {
	kb := s.orch.KnowledgeBase()
	var resources map[string]knowledge.Resource
	if t := c.Query("type"); t != "" {
		resources = kb.GetResourcesByType(t)
	} else {
		resources = kb.Resources()
	}
	c.JSON(http.StatusOK, gin.H{"resources": resources})
}

func (s *Server) handleDeployments(c *gin.Context) {
	deployments := s.orch.KnowledgeBase().Deployments()
	if deployments == nil {
		deployments = []knowledge.Deployment{}
	}
	c.JSON(http.StatusOK, gin.H{"deployments": deployments})
}

// defaultHistoryLimit caps GET /history when no limit is given.
const defaultHistoryLimit = 50

func (s *Server) handleHistory(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	records := []state.PlanRecord{}
	if s.archive != nil {
		got, err := s.archive.ListPlans(limit)
		if err != nil {
			s.logger.Error("list archived plans failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if got != nil {
			records = got
		}
	}
	c.JSON(http.StatusOK, gin.H{"plans": records})
}
