package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/trial-eligibility-server/internal/domain"
	"github.com/trial-eligibility-server/internal/trial"
)

// registerTrialRequest registers a trial and, when criteria text is
// present, parses it into the criterion tree in the same call.
type registerTrialRequest struct {
	TrialID      string       `json:"trial_id" binding:"required"`
	Title        string       `json:"title" binding:"required"`
	Phase        string       `json:"phase"`
	Status       trial.Status `json:"status"`
	Sponsor      string       `json:"sponsor"`
	CriteriaText string       `json:"criteria_text"`
	Kind         domain.Kind  `json:"kind"`
}

func (s *Server) handleRegisterTrial(c *gin.Context) {
	var req registerTrialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "invalid request body", err)
		return
	}

	t := &trial.Trial{
		TrialID:      req.TrialID,
		Title:        req.Title,
		Phase:        req.Phase,
		Status:       req.Status,
		Sponsor:      req.Sponsor,
		CriteriaText: req.CriteriaText,
	}

	if err := s.trials.Save(c.Request.Context(), t); err != nil {
		s.respondError(c, http.StatusInternalServerError, domain.ErrCodeDatabase, "failed to save trial", err)
		return
	}

	response := gin.H{"trial": t}

	if req.CriteriaText != "" {
		parsed, err := s.eligibility.ParseCriteria(c.Request.Context(), &domain.ParseCriteriaRequest{
			TrialID:      req.TrialID,
			CriteriaText: req.CriteriaText,
			Kind:         req.Kind,
		})
		if err != nil {
			s.respondError(c, http.StatusBadGateway, domain.ErrCodeExtraction, "trial saved but criteria parsing failed", err)
			return
		}
		response["criteria"] = parsed.Criteria
		response["warnings"] = parsed.Warnings
	}

	c.JSON(http.StatusCreated, response)
}

func (s *Server) handleListTrials(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 || limit > 200 {
		limit = 20
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	trials, err := s.trials.List(c.Request.Context(), limit, offset)
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, domain.ErrCodeDatabase, "failed to list trials", err)
		return
	}

	count, err := s.trials.Count(c.Request.Context())
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, domain.ErrCodeDatabase, "failed to count trials", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"trials": trials,
		"total":  count,
		"limit":  limit,
		"offset": offset,
	})
}

func (s *Server) handleExportTrials(c *gin.Context) {
	c.Header("Content-Type", "application/json")
	c.Header("Content-Disposition", `attachment; filename="trials.json"`)

	if err := s.trials.ExportJSON(c.Request.Context(), c.Writer); err != nil {
		// Headers may already be written; log instead of switching to an
		// error body mid-stream.
		s.log.WithError(err).Error("Trial registry export failed")
	}
}

func (s *Server) handleGetTrial(c *gin.Context) {
	trialID := c.Param("id")

	t, err := s.trials.Get(c.Request.Context(), trialID)
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, domain.ErrCodeDatabase, "failed to get trial", err)
		return
	}
	if t == nil {
		s.respondError(c, http.StatusNotFound, domain.ErrCodeNotFound, "trial not registered", nil)
		return
	}

	c.JSON(http.StatusOK, t)
}

func (s *Server) handleDeleteTrial(c *gin.Context) {
	trialID := c.Param("id")

	if err := s.trials.Delete(c.Request.Context(), trialID); err != nil {
		s.respondError(c, http.StatusInternalServerError, domain.ErrCodeDatabase, "failed to delete trial", err)
		return
	}

	// Parsed criteria for the trial are stale once the trial is gone.
	if err := s.eligibility.InvalidateCriteria(c.Request.Context(), trialID); err != nil {
		s.log.WithError(err).WithField("trial_id", trialID).Warn("Failed to invalidate cached criteria")
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) handleGetCriteria(c *gin.Context) {
	trialID := c.Param("id")

	criteria, err := s.eligibility.GetCriteria(c.Request.Context(), trialID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.respondError(c, http.StatusNotFound, domain.ErrCodeNotFound, "no criteria stored for trial", err)
			return
		}
		s.respondError(c, http.StatusInternalServerError, domain.ErrCodeDatabase, "failed to load criteria", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"trial_id": trialID,
		"criteria": criteria,
	})
}

func (s *Server) handleParseCriteria(c *gin.Context) {
	var req domain.ParseCriteriaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "invalid request body", err)
		return
	}

	resp, err := s.eligibility.ParseCriteria(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCriterion) {
			s.respondError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "invalid parse request", err)
			return
		}
		s.respondError(c, http.StatusBadGateway, domain.ErrCodeExtraction, "criteria extraction failed", err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCheckEligibility(c *gin.Context) {
	var req domain.CheckEligibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "invalid request body", err)
		return
	}
	if req.TrialID == "" || req.PatientID == "" {
		s.respondError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "trial_id and patient_id are required", nil)
		return
	}

	result, err := s.eligibility.CheckEligibility(c.Request.Context(), req.TrialID, req.PatientID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.respondError(c, http.StatusNotFound, domain.ErrCodeNotFound, "trial or patient not found", err)
			return
		}
		s.respondError(c, http.StatusBadGateway, domain.ErrCodeEvaluation, "eligibility evaluation failed", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) respondError(c *gin.Context, status int, code, message string, err error) {
	details := ""
	if err != nil {
		details = err.Error()
		s.log.WithError(err).WithFields(map[string]interface{}{
			"path":   c.Request.URL.Path,
			"status": status,
		}).Error(message)
	}

	c.JSON(status, domain.NewAPIError(code, message, details, c.GetString("correlation_id")))
}
