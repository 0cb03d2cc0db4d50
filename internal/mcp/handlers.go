package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/trial-eligibility-server/internal/domain"
	"github.com/trial-eligibility-server/internal/trial"
)

// Tool argument shapes. The SDK delivers arguments as raw JSON.

type registerTrialParams struct {
	TrialID      string `json:"trial_id"`
	Title        string `json:"title"`
	Phase        string `json:"phase,omitempty"`
	Sponsor      string `json:"sponsor,omitempty"`
	CriteriaText string `json:"criteria_text,omitempty"`
	Kind         string `json:"kind,omitempty"`
}

type listTrialsParams struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

type parseCriteriaParams struct {
	TrialID      string `json:"trial_id"`
	CriteriaText string `json:"criteria_text"`
	Kind         string `json:"kind,omitempty"`
}

type trialIDParams struct {
	TrialID string `json:"trial_id"`
}

type checkEligibilityParams struct {
	TrialID   string `json:"trial_id"`
	PatientID string `json:"patient_id"`
}

func (s *Server) handleRegisterTrial(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params registerTrialParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if params.TrialID == "" || params.Title == "" {
		return errorResult("trial_id and title are required"), nil
	}

	t := &trial.Trial{
		TrialID:      params.TrialID,
		Title:        params.Title,
		Phase:        params.Phase,
		Sponsor:      params.Sponsor,
		CriteriaText: params.CriteriaText,
	}
	if err := s.trialStore.Save(ctx, t); err != nil {
		return errorResult(fmt.Sprintf("failed to save trial: %v", err)), nil
	}

	response := map[string]interface{}{"trial": t}

	if params.CriteriaText != "" {
		parsed, err := s.eligibility.ParseCriteria(ctx, &domain.ParseCriteriaRequest{
			TrialID:      params.TrialID,
			CriteriaText: params.CriteriaText,
			Kind:         domain.Kind(params.Kind),
		})
		if err != nil {
			return errorResult(fmt.Sprintf("trial saved but criteria parsing failed: %v", err)), nil
		}
		response["criteria"] = parsed.Criteria
		response["warnings"] = parsed.Warnings
	}

	return jsonResult(response)
}

func (s *Server) handleListTrials(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params listTrialsParams
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
			return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
	}
	if params.Limit <= 0 || params.Limit > 200 {
		params.Limit = 20
	}
	if params.Offset < 0 {
		params.Offset = 0
	}

	trials, err := s.trialStore.List(ctx, params.Limit, params.Offset)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to list trials: %v", err)), nil
	}

	count, err := s.trialStore.Count(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to count trials: %v", err)), nil
	}

	return jsonResult(map[string]interface{}{
		"trials": trials,
		"total":  count,
	})
}

func (s *Server) handleParseCriteria(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params parseCriteriaParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	resp, err := s.eligibility.ParseCriteria(ctx, &domain.ParseCriteriaRequest{
		TrialID:      params.TrialID,
		CriteriaText: params.CriteriaText,
		Kind:         domain.Kind(params.Kind),
	})
	if err != nil {
		return errorResult(fmt.Sprintf("criteria parsing failed: %v", err)), nil
	}

	return jsonResult(resp)
}

func (s *Server) handleGetCriteria(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params trialIDParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if params.TrialID == "" {
		return errorResult("trial_id is required"), nil
	}

	criteria, err := s.eligibility.GetCriteria(ctx, params.TrialID)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to load criteria: %v", err)), nil
	}

	return jsonResult(map[string]interface{}{
		"trial_id": params.TrialID,
		"criteria": criteria,
	})
}

func (s *Server) handleCheckEligibility(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params checkEligibilityParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if params.TrialID == "" || params.PatientID == "" {
		return errorResult("trial_id and patient_id are required"), nil
	}

	s.logger.WithField("trial_id", params.TrialID).Info("Checking eligibility via MCP")

	result, err := s.eligibility.CheckEligibility(ctx, params.TrialID, params.PatientID)
	if err != nil {
		return errorResult(fmt.Sprintf("eligibility check failed: %v", err)), nil
	}

	return jsonResult(result)
}

type importTrialsParams struct {
	Path string `json:"path"`
}

func (s *Server) handleExportTrials(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := os.MkdirAll(s.config.ExportDir(), 0o755); err != nil {
		return errorResult(fmt.Sprintf("failed to create export directory: %v", err)), nil
	}

	path := filepath.Join(s.config.ExportDir(), fmt.Sprintf("trials-%s.json", time.Now().UTC().Format("20060102-150405")))
	file, err := os.Create(path)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to create export file: %v", err)), nil
	}
	defer file.Close()

	if err := s.trialStore.ExportJSON(ctx, file); err != nil {
		return errorResult(fmt.Sprintf("export failed: %v", err)), nil
	}

	count, err := s.trialStore.Count(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to count trials: %v", err)), nil
	}

	s.logger.WithFields(logrus.Fields{"path": path, "trials": count}).Info("Exported trial registry")

	return jsonResult(map[string]interface{}{
		"path":   path,
		"trials": count,
	})
}

func (s *Server) handleImportTrials(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params importTrialsParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if params.Path == "" {
		return errorResult("path is required"), nil
	}

	file, err := os.Open(params.Path)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to open import file: %v", err)), nil
	}
	defer file.Close()

	imported, skipped, err := s.trialStore.ImportJSON(ctx, file)
	if err != nil {
		return errorResult(fmt.Sprintf("import failed: %v", err)), nil
	}

	s.logger.WithFields(logrus.Fields{"imported": imported, "skipped": skipped}).Info("Imported trial registry")

	return jsonResult(map[string]interface{}{
		"imported": imported,
		"skipped":  skipped,
	})
}

// jsonResult wraps a value as a JSON text content block.
func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}, nil
}

// errorResult reports a tool-level failure to the client.
func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: message},
		},
	}
}
