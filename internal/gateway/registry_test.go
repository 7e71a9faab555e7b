package gateway

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"bersepay/internal/models"
	"bersepay/internal/routing"
)

type fakeProviderStore struct {
	providers []models.PaymentProvider
}

func (s *fakeProviderStore) FindByID(id uint) (*models.PaymentProvider, error) {
	for i := range s.providers {
		if s.providers[i].ID == id {
			p := s.providers[i]
			return &p, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *fakeProviderStore) FindByCode(code string) (*models.PaymentProvider, error) {
	for i := range s.providers {
		if s.providers[i].Code == code {
			p := s.providers[i]
			return &p, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *fakeProviderStore) FindDefault() (*models.PaymentProvider, error) {
	var candidates []models.PaymentProvider
	for _, p := range s.providers {
		if p.Active && p.IsDefault {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Priority < candidates[j].Priority
	})
	return &candidates[0], nil
}

func (s *fakeProviderStore) FindActive() ([]models.PaymentProvider, error) {
	var active []models.PaymentProvider
	for _, p := range s.providers {
		if p.Active {
			active = append(active, p)
		}
	}
	return active, nil
}

type fakeRuleStore struct {
	rules []models.RoutingRule
}

func (s *fakeRuleStore) FindActiveOrdered() ([]models.RoutingRule, error) {
	rules := make([]models.RoutingRule, 0, len(s.rules))
	for _, r := range s.rules {
		if r.Active {
			rules = append(rules, r)
		}
	}
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority < rules[j].Priority
	})
	return rules, nil
}

func providerA() models.PaymentProvider {
	return models.PaymentProvider{
		ID: 1, Code: "banktransfer", Name: "Provider A",
		Environment: "test", Active: true, IsDefault: true, Priority: 10,
		Currencies: `["MYR","SGD"]`, Countries: `["MY","SG"]`,
	}
}

func providerB() models.PaymentProvider {
	return models.PaymentProvider{
		ID: 2, Code: "stripe", Name: "Provider B",
		Environment: "test", SecretKey: "sk_test_b", Active: true, Priority: 20,
		Currencies: `["USD","EUR"]`,
	}
}

func newTestRegistry(providers []models.PaymentProvider, rules []models.RoutingRule) *Registry {
	return NewRegistry(
		&fakeProviderStore{providers: providers},
		&fakeRuleStore{rules: rules},
		zap.NewNop(),
	)
}

func TestByProviderIDCachesInstances(t *testing.T) {
	r := newTestRegistry([]models.PaymentProvider{providerA()}, nil)

	first, err := r.ByProviderID(1)
	require.NoError(t, err)
	second, err := r.ByProviderID(1)
	require.NoError(t, err)
	assert.Same(t, first, second)

	r.ClearCache(1)
	third, err := r.ByProviderID(1)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
}

func TestClearCacheAll(t *testing.T) {
	r := newTestRegistry([]models.PaymentProvider{providerA(), providerB()}, nil)

	a1, err := r.ByProviderID(1)
	require.NoError(t, err)
	b1, err := r.ByProviderID(2)
	require.NoError(t, err)

	r.ClearCache()

	a2, err := r.ByProviderID(1)
	require.NoError(t, err)
	b2, err := r.ByProviderID(2)
	require.NoError(t, err)
	assert.NotSame(t, a1, a2)
	assert.NotSame(t, b1, b2)
}

func TestByProviderIDNotFound(t *testing.T) {
	r := newTestRegistry(nil, nil)

	_, err := r.ByProviderID(99)
	assert.True(t, IsNotFound(err))
}

func TestByProviderIDInactive(t *testing.T) {
	p := providerA()
	p.Active = false
	r := newTestRegistry([]models.PaymentProvider{p}, nil)

	_, err := r.ByProviderID(1)
	assert.True(t, IsInvalidState(err))
}

func TestByProviderCode(t *testing.T) {
	r := newTestRegistry([]models.PaymentProvider{providerA()}, nil)

	gw, err := r.ByProviderCode("banktransfer")
	require.NoError(t, err)
	assert.Equal(t, "banktransfer", gw.Code())

	_, err = r.ByProviderCode("nonexistent")
	assert.True(t, IsNotFound(err))
}

func TestDefaultGateway(t *testing.T) {
	r := newTestRegistry([]models.PaymentProvider{providerA(), providerB()}, nil)

	gw, err := r.Default()
	require.NoError(t, err)
	assert.Equal(t, "banktransfer", gw.Code())
}

func TestDefaultGatewayMissingIsConfigurationError(t *testing.T) {
	r := newTestRegistry([]models.PaymentProvider{providerB()}, nil)

	_, err := r.Default()
	assert.True(t, IsConfiguration(err))
}

func TestDefaultGatewayTieBreaksOnPriority(t *testing.T) {
	a := providerA()
	b := providerB()
	b.IsDefault = true
	b.Priority = 5
	r := newTestRegistry([]models.PaymentProvider{a, b}, nil)

	gw, err := r.Default()
	require.NoError(t, err)
	assert.Equal(t, "stripe", gw.Code())
}

func TestByRoutingNoRulesFallsBackToDefault(t *testing.T) {
	r := newTestRegistry([]models.PaymentProvider{providerA()}, nil)

	gw, err := r.ByRouting(routing.Context{"amount": 50, "currency": "MYR"})
	require.NoError(t, err)
	assert.Equal(t, "banktransfer", gw.Code())
}

func TestByRoutingNoMatchFallsBackToDefault(t *testing.T) {
	rules := []models.RoutingRule{
		{ID: 1, Priority: 1, ProviderID: 2, Active: true,
			Conditions: `{"currency":{"in":["USD","EUR"]}}`},
	}
	r := newTestRegistry([]models.PaymentProvider{providerA(), providerB()}, rules)

	gw, err := r.ByRouting(routing.Context{"currency": "MYR"})
	require.NoError(t, err)
	assert.Equal(t, "banktransfer", gw.Code())
}

func TestByRoutingMatchWins(t *testing.T) {
	rules := []models.RoutingRule{
		{ID: 1, Priority: 1, ProviderID: 2, Active: true,
			Conditions: `{"currency":{"in":["USD","EUR"]}}`},
	}
	r := newTestRegistry([]models.PaymentProvider{providerA(), providerB()}, rules)

	gw, err := r.ByRouting(routing.Context{"currency": "USD"})
	require.NoError(t, err)
	assert.Equal(t, "stripe", gw.Code())
}

func TestByRoutingFirstMatchIsDeterministic(t *testing.T) {
	// Two rules both match; the lower priority must win every time.
	rules := []models.RoutingRule{
		{ID: 1, Priority: 1, ProviderID: 1, Active: true,
			Conditions: `{"currency":"USD"}`},
		{ID: 2, Priority: 2, ProviderID: 2, Active: true,
			Conditions: `{"currency":"USD"}`},
	}
	r := newTestRegistry([]models.PaymentProvider{providerA(), providerB()}, rules)

	for i := 0; i < 20; i++ {
		gw, err := r.ByRouting(routing.Context{"currency": "USD"})
		require.NoError(t, err)
		assert.Equal(t, "banktransfer", gw.Code())
	}
}

func TestByRoutingSkipsInactiveProviderRules(t *testing.T) {
	b := providerB()
	b.Active = false
	rules := []models.RoutingRule{
		{ID: 1, Priority: 1, ProviderID: 2, Active: true,
			Conditions: `{"currency":"USD"}`},
	}
	r := newTestRegistry([]models.PaymentProvider{providerA(), b}, rules)

	gw, err := r.ByRouting(routing.Context{"currency": "USD"})
	require.NoError(t, err)
	assert.Equal(t, "banktransfer", gw.Code())
}

func TestByRoutingAbsentContextFieldIsNonBlocking(t *testing.T) {
	rules := []models.RoutingRule{
		{ID: 1, Priority: 1, ProviderID: 2, Active: true,
			Conditions: `{"country":{"in":["MY","SG"]},"currency":"USD"}`},
	}
	r := newTestRegistry([]models.PaymentProvider{providerA(), providerB()}, rules)

	// No country in context: the country condition is skipped and the
	// currency condition decides.
	gw, err := r.ByRouting(routing.Context{"currency": "USD"})
	require.NoError(t, err)
	assert.Equal(t, "stripe", gw.Code())
}

func TestValidateProviderSupport(t *testing.T) {
	r := newTestRegistry([]models.PaymentProvider{providerA()}, nil)

	assert.NoError(t, r.ValidateProviderSupport(1, "MYR", "MY"))
	assert.NoError(t, r.ValidateProviderSupport(1, "myr", ""))

	err := r.ValidateProviderSupport(1, "THB", "")
	assert.True(t, IsConfiguration(err))

	err = r.ValidateProviderSupport(1, "MYR", "TH")
	assert.True(t, IsConfiguration(err))

	err = r.ValidateProviderSupport(42, "MYR", "")
	assert.True(t, IsNotFound(err))
}

func TestValidateProviderSupportEmptyListsAreUnrestricted(t *testing.T) {
	p := providerA()
	p.Currencies = ""
	p.Countries = ""
	r := newTestRegistry([]models.PaymentProvider{p}, nil)

	assert.NoError(t, r.ValidateProviderSupport(1, "THB", "TH"))
}
