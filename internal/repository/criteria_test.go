package repository

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/trial-eligibility-server/internal/database"
	"github.com/trial-eligibility-server/internal/domain"
)

// generateTestPassword creates a random password for test databases.
func generateTestPassword() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "test_fallback_password_123"
	}
	return "test_" + hex.EncodeToString(bytes)
}

func setupTestDB(t *testing.T) (*database.DB, func()) {
	ctx := context.Background()

	testPassword := generateTestPassword()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword(testPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	host, err := pgContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	config := database.Config{
		Host:        host,
		Port:        port.Int(),
		Database:    "testdb",
		Username:    "testuser",
		Password:    testPassword,
		MaxConns:    10,
		MinConns:    2,
		MaxConnLife: time.Hour,
		MaxConnIdle: time.Minute * 30,
		SSLMode:     "disable",
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	db, err := database.NewConnection(ctx, config, logger)
	if err != nil {
		t.Fatalf("Failed to create database connection: %v", err)
	}

	migrationRunner, err := database.NewMigrationRunner(config.URL(), "../../migrations", logger)
	if err != nil {
		t.Fatalf("Failed to create migration runner: %v", err)
	}

	if err := migrationRunner.Up(ctx); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		migrationRunner.Close()
		db.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate PostgreSQL container: %v", err)
		}
	}

	return db, cleanup
}

func testCriteria() []*domain.Criterion {
	return []*domain.Criterion{
		{
			Kind:        domain.INCLUSION,
			Description: "Age between 18 and 75 years",
			Leaf: &domain.Leaf{
				Category:  domain.DEMOGRAPHICS,
				Attribute: "age",
				Operator:  domain.BETWEEN,
				Value:     []any{18.0, 75.0},
				Unit:      "years",
			},
		},
		{
			Kind:        domain.INCLUSION,
			Description: "Diagnosed with type 2 diabetes AND HbA1c above 7.5%",
			Node: &domain.Node{
				Operator: domain.AND,
				Children: []*domain.Criterion{
					{
						Kind:        domain.INCLUSION,
						Description: "Diagnosed with type 2 diabetes",
						Leaf: &domain.Leaf{
							Category:  domain.CONDITION,
							Attribute: "diagnosis",
							Operator:  domain.CONTAINS,
							Value:     "type 2 diabetes",
						},
					},
					{
						Kind:        domain.INCLUSION,
						Description: "HbA1c above 7.5%",
						Leaf: &domain.Leaf{
							Category:  domain.LAB_VALUE,
							Attribute: "hba1c",
							Operator:  domain.GREATER_THAN,
							Value:     7.5,
							Unit:      "%",
						},
					},
				},
			},
		},
		{
			Kind:        domain.EXCLUSION,
			Description: "Currently on insulin therapy",
			Leaf: &domain.Leaf{
				Category:  domain.MEDICATION,
				Attribute: "medication",
				Operator:  domain.CONTAINS,
				Value:     "insulin",
			},
		},
	}
}

func TestCriteriaRepository_SaveAndGet(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	repo := NewCriteriaRepository(db.Pool, logger)

	ctx := context.Background()
	criteria := testCriteria()

	if err := repo.SaveCriteria(ctx, "NCT00000001", criteria); err != nil {
		t.Fatalf("Failed to save criteria: %v", err)
	}

	retrieved, err := repo.GetCriteria(ctx, "NCT00000001")
	if err != nil {
		t.Fatalf("Failed to retrieve criteria: %v", err)
	}

	if len(retrieved) != len(criteria) {
		t.Fatalf("Expected %d criteria, got %d", len(criteria), len(retrieved))
	}

	if !retrieved[1].IsNode() {
		t.Error("Expected second criterion to round-trip as a logical node")
	}
	if retrieved[1].Node.Operator != domain.AND {
		t.Errorf("Expected AND operator, got %s", retrieved[1].Node.Operator)
	}
	if len(retrieved[1].Node.Children) != 2 {
		t.Errorf("Expected 2 children, got %d", len(retrieved[1].Node.Children))
	}
	if retrieved[2].Kind != domain.EXCLUSION {
		t.Errorf("Expected exclusion kind, got %s", retrieved[2].Kind)
	}
}

func TestCriteriaRepository_SaveReplacesExisting(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	repo := NewCriteriaRepository(db.Pool, logger)

	ctx := context.Background()

	if err := repo.SaveCriteria(ctx, "NCT00000002", testCriteria()); err != nil {
		t.Fatalf("Failed to save criteria: %v", err)
	}

	replacement := []*domain.Criterion{
		{
			Kind:        domain.INCLUSION,
			Description: "Age at least 21 years",
			Leaf: &domain.Leaf{
				Category:  domain.DEMOGRAPHICS,
				Attribute: "age",
				Operator:  domain.GREATER_THAN_OR_EQUAL,
				Value:     21.0,
				Unit:      "years",
			},
		},
	}

	if err := repo.SaveCriteria(ctx, "NCT00000002", replacement); err != nil {
		t.Fatalf("Failed to replace criteria: %v", err)
	}

	retrieved, err := repo.GetCriteria(ctx, "NCT00000002")
	if err != nil {
		t.Fatalf("Failed to retrieve criteria: %v", err)
	}

	if len(retrieved) != 1 {
		t.Fatalf("Expected replacement to leave 1 criterion, got %d", len(retrieved))
	}
	if retrieved[0].Description != "Age at least 21 years" {
		t.Errorf("Unexpected description: %s", retrieved[0].Description)
	}
}

func TestCriteriaRepository_GetMissing(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	repo := NewCriteriaRepository(db.Pool, logger)

	_, err := repo.GetCriteria(context.Background(), "NCT99999999")
	if err == nil {
		t.Fatal("Expected error for missing trial, got nil")
	}
}

func TestCriteriaRepository_DeleteAndList(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	repo := NewCriteriaRepository(db.Pool, logger)

	ctx := context.Background()

	for _, trialID := range []string{"NCT00000003", "NCT00000004"} {
		if err := repo.SaveCriteria(ctx, trialID, testCriteria()); err != nil {
			t.Fatalf("Failed to save criteria for %s: %v", trialID, err)
		}
	}

	trials, err := repo.ListTrials(ctx, 10, 0)
	if err != nil {
		t.Fatalf("Failed to list trials: %v", err)
	}
	if len(trials) != 2 {
		t.Fatalf("Expected 2 trials, got %d", len(trials))
	}

	if err := repo.DeleteCriteria(ctx, "NCT00000003"); err != nil {
		t.Fatalf("Failed to delete criteria: %v", err)
	}

	if _, err := repo.GetCriteria(ctx, "NCT00000003"); err == nil {
		t.Error("Expected error when getting deleted criteria, got nil")
	}

	if err := repo.DeleteCriteria(ctx, "NCT00000003"); err == nil {
		t.Error("Expected error when deleting missing criteria, got nil")
	}
}
