// Package testing provides test utilities and database setup for testing the pricing engine
package testing

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sunops/sunops-backend/models"
	"github.com/sunops/sunops-backend/utils"
	"golang.org/x/crypto/bcrypt"
)

// TestPassword is the plaintext password of every fixture user
const TestPassword = "TestPass123!"

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestUser creates an active user of the given role under tenantID
func (tf *TestFixtures) CreateTestUser(tenantID uint, role string) (*models.User, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	user := &models.User{
		TenantID:     tenantID,
		Name:         "Test " + role,
		Email:        fmt.Sprintf("%s.%d.%s@example.com", role, tenantID, suffix),
		PasswordHash: string(hashedPassword),
		Role:         role,
		IsActive:     utils.ToPtr(true),
	}

	if err := tf.DB.DB.Create(user).Error; err != nil {
		return nil, fmt.Errorf("failed to create test user: %w", err)
	}

	return user, nil
}

// BandSpec describes a fixture band as plain strings
type BandSpec struct {
	Label     string
	Min       string
	Max       string
	UnitPrice string
}

// RegionSpec describes a fixture region entry as plain strings
type RegionSpec struct {
	Code    string
	TaxRate string
}

// RateTableSpec describes a fixture rate table
type RateTableSpec struct {
	TenantID uint
	Name     string
	Start    string
	End      string
	Active   bool
	Bands    []BandSpec
	Regions  []RegionSpec
}

// CreateTestRateTable inserts a rate table and its children directly, bypassing validation
func (tf *TestFixtures) CreateTestRateTable(spec RateTableSpec) (*models.RateTable, error) {
	start, err := utils.ParseDate(spec.Start)
	if err != nil {
		return nil, err
	}
	end, err := utils.ParseDate(spec.End)
	if err != nil {
		return nil, err
	}

	table := &models.RateTable{
		TenantID:     spec.TenantID,
		Name:         spec.Name,
		VigencyStart: start,
		VigencyEnd:   end,
		Active:       spec.Active,
	}
	if err := tf.DB.DB.Create(table).Error; err != nil {
		return nil, fmt.Errorf("failed to create test rate table: %w", err)
	}

	for i, b := range spec.Bands {
		band := models.PowerBand{
			RateTableID: table.ID,
			Label:       b.Label,
			PowerMin:    decimal.RequireFromString(b.Min),
			PowerMax:    decimal.RequireFromString(b.Max),
			UnitPrice:   decimal.RequireFromString(b.UnitPrice),
			SortOrder:   i,
		}
		if err := tf.DB.DB.Create(&band).Error; err != nil {
			return nil, fmt.Errorf("failed to create test band %s: %w", b.Label, err)
		}
		table.Bands = append(table.Bands, band)
	}

	for _, r := range spec.Regions {
		region := models.RegionTax{
			RateTableID: table.ID,
			RegionCode:  models.NormalizeRegionCode(r.Code),
			TaxRate:     decimal.RequireFromString(r.TaxRate),
		}
		if err := tf.DB.DB.Create(&region).Error; err != nil {
			return nil, fmt.Errorf("failed to create test region %s: %w", r.Code, err)
		}
		table.Regions = append(table.Regions, region)
	}

	return table, nil
}

// CreateTestPricingDefaults stores explicit defaults for a tenant
func (tf *TestFixtures) CreateTestPricingDefaults(tenantID uint, margin, commission string) (*models.PricingDefaults, error) {
	row := &models.PricingDefaults{
		TenantID:       tenantID,
		MarginRate:     decimal.RequireFromString(margin),
		CommissionRate: decimal.RequireFromString(commission),
	}
	if err := tf.DB.DB.Create(row).Error; err != nil {
		return nil, fmt.Errorf("failed to create test pricing defaults: %w", err)
	}
	return row, nil
}

// Date parses a YYYY-MM-DD fixture date and panics on malformed input
func Date(value string) time.Time {
	d, err := utils.ParseDate(value)
	if err != nil {
		panic(err)
	}
	return d
}
