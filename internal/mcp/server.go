// Package mcp exposes the eligibility engine to MCP clients. The server
// runs standalone: SQLite for the trial registry and parsed criteria,
// in-process caching only, no Postgres or Redis.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/trial-eligibility-server/internal/config"
	"github.com/trial-eligibility-server/internal/domain"
	"github.com/trial-eligibility-server/internal/service"
	"github.com/trial-eligibility-server/internal/trial"
	"github.com/trial-eligibility-server/pkg/external"
)

// Server is the standalone MCP server.
type Server struct {
	config      *config.LiteConfig
	mcpServer   *mcp.Server
	trialStore  trial.Store
	eligibility *service.EligibilityService
	logger      *logrus.Logger
}

// ServerOption is a functional option for Server.
type ServerOption func(*Server) error

// WithTrialStore sets a custom trial store.
func WithTrialStore(store trial.Store) ServerOption {
	return func(s *Server) error {
		s.trialStore = store
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) error {
		s.logger = logger
		return nil
	}
}

// NewServer creates a new standalone MCP server instance.
func NewServer(cfg *config.LiteConfig, opts ...ServerOption) (*Server, error) {
	server := &Server{
		config: cfg,
		logger: logrus.New(),
	}

	if cfg.LogFormat == "text" {
		server.logger.SetFormatter(&logrus.TextFormatter{})
	} else {
		server.logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, _ := logrus.ParseLevel(cfg.LogLevel)
	server.logger.SetLevel(level)

	for _, opt := range opts {
		if err := opt(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	var sqliteStore *trial.SQLiteStore
	if server.trialStore == nil {
		store, err := trial.NewSQLiteStore(cfg.TrialDBPath())
		if err != nil {
			return nil, fmt.Errorf("failed to create trial store: %w", err)
		}
		server.trialStore = store
		sqliteStore = store
	} else if store, ok := server.trialStore.(*trial.SQLiteStore); ok {
		sqliteStore = store
	}

	var criteriaRepo domain.CriteriaRepository
	if sqliteStore != nil {
		repo, err := trial.NewSQLiteCriteriaStore(sqliteStore)
		if err != nil {
			return nil, fmt.Errorf("failed to create criteria store: %w", err)
		}
		criteriaRepo = repo
	} else {
		return nil, fmt.Errorf("a custom trial store requires a SQLite-backed registry")
	}

	extractor := external.NewExtractionClient(domain.ExtractionConfig{
		BaseURL: cfg.ExtractionURL,
		APIKey:  cfg.ExtractionAPIKey,
	})
	source := external.NewFHIRClient(domain.ClinicalConfig{
		BaseURL: cfg.FHIRBaseURL,
		APIKey:  cfg.FHIRAPIKey,
	})

	eligibility, err := service.NewEligibilityService(
		external.NewResilientExtractor(extractor, server.logger),
		external.NewResilientClinicalSource(source, server.logger),
		criteriaRepo,
		service.EligibilityServiceOptions{MemoryItems: cfg.CacheMaxItems},
		server.logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create eligibility service: %w", err)
	}
	server.eligibility = eligibility

	serverInfo := &mcp.Implementation{
		Name:    "trial-eligibility-mcp-server",
		Version: "v0.1.0",
	}
	mcpServer := mcp.NewServer(serverInfo, nil)
	server.mcpServer = mcpServer

	server.registerTools()

	server.logger.Info("MCP server initialized successfully")
	return server, nil
}

// registerTools registers the eligibility tools with the MCP SDK.
func (s *Server) registerTools() {
	tools := []struct {
		tool    *mcp.Tool
		handler mcp.ToolHandler
	}{
		{
			tool: &mcp.Tool{
				Name:        "register_trial",
				Description: "Register a clinical trial with its free-text eligibility criteria. Criteria are parsed into a structured tree.",
			},
			handler: s.handleRegisterTrial,
		},
		{
			tool: &mcp.Tool{
				Name:        "list_trials",
				Description: "List registered clinical trials.",
			},
			handler: s.handleListTrials,
		},
		{
			tool: &mcp.Tool{
				Name:        "parse_criteria",
				Description: "Parse free-text eligibility criteria into a structured AND/OR/NOT criterion tree with terminology codes.",
			},
			handler: s.handleParseCriteria,
		},
		{
			tool: &mcp.Tool{
				Name:        "get_criteria",
				Description: "Get the parsed criterion tree stored for a trial.",
			},
			handler: s.handleGetCriteria,
		},
		{
			tool: &mcp.Tool{
				Name:        "check_eligibility",
				Description: "Check a patient's eligibility for a trial. Returns the verdict with per-criterion results and evidence.",
			},
			handler: s.handleCheckEligibility,
		},
		{
			tool: &mcp.Tool{
				Name:        "export_trials",
				Description: "Export the trial registry to a JSON file in the export directory.",
			},
			handler: s.handleExportTrials,
		},
		{
			tool: &mcp.Tool{
				Name:        "import_trials",
				Description: "Import trials from a registry export file. Existing trials are skipped.",
			},
			handler: s.handleImportTrials,
		},
	}

	for _, t := range tools {
		s.mcpServer.AddTool(t.tool, t.handler)
		s.logger.WithField("tool_name", t.tool.Name).Debug("Registered MCP tool")
	}

	s.logger.WithField("tool_count", len(tools)).Info("Registered all MCP tools")
}

// Start runs the MCP server over stdio until the context is canceled.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting trial eligibility MCP server...")

	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// Close cleans up server resources.
func (s *Server) Close() error {
	if s.trialStore != nil {
		if err := s.trialStore.Close(); err != nil {
			s.logger.WithError(err).Error("Failed to close trial store")
			return err
		}
	}
	return nil
}
