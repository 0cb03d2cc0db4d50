package domain

import (
	"time"
)

// Evidence carries the clinical facts a matcher compared against a leaf,
// or the child results a logical node combined. It is retained on every
// result for audit and explanation.
type Evidence struct {
	Operator   string              `json:"operator,omitempty"`
	Expected   any                 `json:"expected,omitempty"`
	Observed   any                 `json:"observed,omitempty"`
	Records    []ClinicalRecord    `json:"records,omitempty"`
	SubResults []*EvaluationResult `json:"sub_results,omitempty"`
}

// EvaluationResult is the outcome of evaluating one criterion against one
// patient. Results form a tree parallel to the criterion tree and are
// request-scoped: they are never persisted.
type EvaluationResult struct {
	Met         bool   `json:"met"`
	Reason      string `json:"reason"`
	Kind        Kind   `json:"kind"`
	Description string `json:"description,omitempty"`

	// Exactly one of Category and LogicOperator is set, matching the
	// originating criterion.
	Category      Category      `json:"category,omitempty"`
	LogicOperator LogicOperator `json:"logic_operator,omitempty"`

	Evidence *Evidence `json:"evidence,omitempty"`
}

// EligibilitySummary aggregates the top-level criterion results of one
// eligibility check.
type EligibilitySummary struct {
	Total             int `json:"total"`
	InclusionMet      int `json:"inclusion_met"`
	ExclusionViolated int `json:"exclusion_violated"`
}

// EligibilityResult is the verdict for one patient against one trial's
// criteria: eligible iff every inclusion criterion is met and no exclusion
// criterion is met.
type EligibilityResult struct {
	TrialID        string              `json:"trial_id"`
	PatientID      string              `json:"patient_id"`
	Eligible       bool                `json:"eligible"`
	Results        []*EvaluationResult `json:"results"`
	Summary        EligibilitySummary  `json:"summary"`
	FailedCriteria []*EvaluationResult `json:"failed_criteria"`
	CheckedAt      time.Time           `json:"checked_at"`
}

// ParseCriteriaRequest asks for a trial's free-text criteria to be
// extracted and assembled into a criterion tree.
type ParseCriteriaRequest struct {
	TrialID      string `json:"trial_id"`
	CriteriaText string `json:"criteria_text"`
	Kind         Kind   `json:"kind,omitempty"`
}

// ParseCriteriaResponse returns the assembled tree plus any non-fatal
// validation warnings.
type ParseCriteriaResponse struct {
	TrialID  string       `json:"trial_id"`
	Criteria []*Criterion `json:"criteria"`
	Warnings []string     `json:"warnings,omitempty"`
}

// CheckEligibilityRequest asks for a patient to be checked against a
// trial's stored criteria.
type CheckEligibilityRequest struct {
	TrialID   string `json:"trial_id"`
	PatientID string `json:"patient_id"`
}

// Configuration models, bound by viper.

// Config is the main application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Clinical   ClinicalConfig   `mapstructure:"clinical"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// CacheConfig holds criteria-cache settings: the Redis tier and the
// in-process LRU tier.
type CacheConfig struct {
	RedisURL     string        `mapstructure:"redis_url"`
	DefaultTTL   time.Duration `mapstructure:"default_ttl"`
	MaxRetries   int           `mapstructure:"max_retries"`
	PoolSize     int           `mapstructure:"pool_size"`
	PoolTimeout  time.Duration `mapstructure:"pool_timeout"`
	MemoryItems  int           `mapstructure:"memory_items"`
	MemoryEnable bool          `mapstructure:"memory_enable"`
}

// ExtractionConfig holds settings for the criteria extraction service.
type ExtractionConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	Model      string        `mapstructure:"model"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RateLimit  int           `mapstructure:"rate_limit"`
	RetryCount int           `mapstructure:"retry_count"`
}

// ClinicalConfig holds settings for the clinical data source.
type ClinicalConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit int           `mapstructure:"rate_limit"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
