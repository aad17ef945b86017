package businessflow

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/sunops/sunops-backend/app/services"
	"github.com/sunops/sunops-backend/repository"
	testingutil "github.com/sunops/sunops-backend/testing"
)

// flowEnv wires every flow against one test database
type flowEnv struct {
	db       *testingutil.TestDB
	fixtures *testingutil.TestFixtures

	rateTableRepo repository.RateTableRepository
	bandRepo      repository.PowerBandRepository
	regionRepo    repository.RegionTaxRepository
	defaultsRepo  repository.PricingDefaultsRepository
	userRepo      repository.UserRepository
	auditRepo     repository.AuditLogRepository

	selector *RateTableSelector
	rateFlow RateTableFlow
	pricing  PricingFlow
}

func newFlowEnv(t *testing.T, testDB *testingutil.TestDB) *flowEnv {
	t.Helper()

	env := &flowEnv{
		db:            testDB,
		fixtures:      testingutil.NewTestFixtures(testDB),
		rateTableRepo: repository.NewRateTableRepository(testDB.DB),
		bandRepo:      repository.NewPowerBandRepository(testDB.DB),
		regionRepo:    repository.NewRegionTaxRepository(testDB.DB),
		defaultsRepo:  repository.NewPricingDefaultsRepository(testDB.DB),
		userRepo:      repository.NewUserRepository(testDB.DB),
		auditRepo:     repository.NewAuditLogRepository(testDB.DB),
	}
	env.selector = NewRateTableSelector(env.rateTableRepo, env.bandRepo, env.regionRepo)
	env.rateFlow = NewRateTableFlow(
		env.rateTableRepo,
		env.bandRepo,
		env.regionRepo,
		env.auditRepo,
		services.NewRateTableCache(nil, "", 0),
		services.NewRateTableExporter(),
		testDB.DB,
	)
	env.pricing = NewPricingFlow(env.selector, env.defaultsRepo, env.auditRepo, DefaultPricingFallback(), testDB.DB)
	return env
}

// withFlowEnv runs fn against a fresh database
func withFlowEnv(t *testing.T, fn func(env *flowEnv)) {
	t.Helper()
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fn(newFlowEnv(t, testDB))
		return nil
	})
	require.NoError(t, err)
}

// standardTable is the reference premissa: one 0-10 kW band at 0.23/Wp and SP taxed at 16%
func standardTable(tenantID uint) testingutil.RateTableSpec {
	return testingutil.RateTableSpec{
		TenantID: tenantID,
		Name:     "Q1",
		Start:    "2025-01-01",
		End:      "2025-03-31",
		Active:   true,
		Bands:    []testingutil.BandSpec{{Label: "Standard", Min: "0", Max: "10", UnitPrice: "0.23"}},
		Regions:  []testingutil.RegionSpec{{Code: "SP", TaxRate: "0.16"}},
	}
}
