// Package testing provides test utilities and database setup for testing the pricing engine
package testing

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver for database/sql
	"github.com/sunops/sunops-backend/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDBConfig holds configuration for test database connections
type TestDBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	SSLMode  string
}

// GetTestDBConfig loads test database configuration from environment variables.
// It returns nil when TEST_DB_HOST is unset, which selects the in-memory SQLite backend.
func GetTestDBConfig() *TestDBConfig {
	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		return nil
	}
	return &TestDBConfig{
		Host:     host,
		Port:     getEnvAsInt("TEST_DB_PORT", 5432),
		User:     getEnv("TEST_DB_USER", "postgres"),
		Password: getEnv("TEST_DB_PASSWORD", "postgres"),
		SSLMode:  getEnv("TEST_DB_SSL_MODE", "disable"),
	}
}

// TestDB represents a test database instance
type TestDB struct {
	DB     *gorm.DB
	Name   string
	config *TestDBConfig
}

// AllModels lists every persisted entity, in dependency order
func AllModels() []any {
	return []any{
		&models.User{},
		&models.RateTable{},
		&models.PowerBand{},
		&models.RegionTax{},
		&models.PricingDefaults{},
		&models.AuditLog{},
	}
}

// SetupTestDB creates a new isolated test database and prepares the schema
func SetupTestDB() (*TestDB, error) {
	config := GetTestDBConfig()
	if config == nil {
		return setupSQLiteTestDB()
	}
	return setupPostgresTestDB(config)
}

func setupSQLiteTestDB() (*TestDB, error) {
	name := "sunops_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	dsn := "file:" + name + "?mode=memory&cache=shared&_busy_timeout=5000"

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite test database: %w", err)
	}

	// A single connection serializes transactions the way row locks do on PostgreSQL
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := db.AutoMigrate(AllModels()...); err != nil {
		return nil, fmt.Errorf("failed to migrate sqlite test database: %w", err)
	}

	return &TestDB{DB: db, Name: name}, nil
}

func setupPostgresTestDB(config *TestDBConfig) (*TestDB, error) {
	dbName := "sunops_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]

	// Connect to PostgreSQL server (without specific database)
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.SSLMode)

	adminDB, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := adminDB.Exec(fmt.Sprintf("CREATE DATABASE %s", dbName)).Error; err != nil {
		return nil, fmt.Errorf("failed to create test database %s: %w", dbName, err)
	}

	sqlDB, _ := adminDB.DB()
	sqlDB.Close()

	testDSN := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, dbName, config.SSLMode)

	testDB, err := gorm.Open(postgres.Open(testDSN), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database %s: %w", dbName, err)
	}

	tdb := &TestDB{DB: testDB, Name: dbName, config: config}
	if err := runTestMigrations(testDSN, dbName); err != nil {
		_ = tdb.TeardownTestDB()
		return nil, fmt.Errorf("failed to run migrations on test database %s: %w", dbName, err)
	}

	return tdb, nil
}

// TeardownTestDB drops the test database and closes connections
func (tdb *TestDB) TeardownTestDB() error {
	if tdb.DB == nil {
		return nil
	}

	sqlDB, err := tdb.DB.DB()
	if err == nil {
		sqlDB.Close()
	}

	// In-memory SQLite disappears with its last connection
	if tdb.config == nil {
		return nil
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s sslmode=%s",
		tdb.config.Host, tdb.config.Port, tdb.config.User, tdb.config.Password, tdb.config.SSLMode)

	adminDB, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Printf("Warning: failed to connect to PostgreSQL for cleanup: %v", err)
		return err
	}
	defer func() {
		sqlDB, _ := adminDB.DB()
		sqlDB.Close()
	}()

	// Force disconnect all connections to the test database
	err = adminDB.Exec(
		"SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = ? AND pid <> pg_backend_pid()",
		tdb.Name).Error
	if err != nil {
		log.Printf("Warning: failed to terminate connections to test database %s: %v", tdb.Name, err)
	}

	if err := adminDB.Exec(fmt.Sprintf("DROP DATABASE IF EXISTS %s", tdb.Name)).Error; err != nil {
		log.Printf("Warning: failed to drop test database %s: %v", tdb.Name, err)
		return err
	}

	return nil
}

// ClearAllTables removes all data from tables while preserving structure
func (tdb *TestDB) ClearAllTables() error {
	// Children first
	tables := []string{
		"audit_log",
		"region_taxes",
		"power_bands",
		"rate_tables",
		"pricing_defaults",
		"users",
	}

	for _, table := range tables {
		if err := tdb.DB.Exec(fmt.Sprintf("DELETE FROM %s", table)).Error; err != nil {
			return fmt.Errorf("failed to clear table %s: %w", table, err)
		}
	}

	return nil
}

// runTestMigrations runs all database migrations by executing SQL files directly
func runTestMigrations(databaseURL, dbName string) error {
	migrationsPath, err := findMigrationsDir()
	if err != nil {
		return err
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	migrationFiles, err := filepath.Glob(filepath.Join(migrationsPath, "*.up.sql"))
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}

	for _, migrationPath := range migrationFiles {
		content, err := os.ReadFile(migrationPath)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", migrationPath, err)
		}

		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", filepath.Base(migrationPath), err)
		}

		log.Printf("Applied migration: %s", filepath.Base(migrationPath))
	}

	log.Printf("Successfully applied %d migrations to test database %s", len(migrationFiles), dbName)
	return nil
}

// findMigrationsDir walks up from the working directory to the module root
func findMigrationsDir() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}

	for dir := wd; ; dir = filepath.Dir(dir) {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			path := filepath.Join(dir, "migrations")
			if _, err := os.Stat(path); err != nil {
				return "", fmt.Errorf("migrations directory not found at %s", path)
			}
			return path, nil
		}
		if parent := filepath.Dir(dir); parent == dir {
			return "", fmt.Errorf("module root not found above %s", wd)
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// TestWithDB is a helper function that sets up a test database, runs the test function, and cleans up
func TestWithDB(testFunc func(*TestDB) error) error {
	testDB, err := SetupTestDB()
	if err != nil {
		return fmt.Errorf("failed to setup test database: %w", err)
	}
	defer func() {
		if cleanupErr := testDB.TeardownTestDB(); cleanupErr != nil {
			log.Printf("Warning: failed to cleanup test database: %v", cleanupErr)
		}
	}()

	return testFunc(testDB)
}

// CreateTestContext creates a context for testing
func CreateTestContext() context.Context {
	return context.Background()
}
