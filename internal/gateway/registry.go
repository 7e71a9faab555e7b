package gateway

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"bersepay/internal/models"
	"bersepay/internal/routing"
)

// ProviderStore supplies provider configuration records. Implemented by the
// repository layer.
type ProviderStore interface {
	FindByID(id uint) (*models.PaymentProvider, error)
	FindByCode(code string) (*models.PaymentProvider, error)
	FindDefault() (*models.PaymentProvider, error)
	FindActive() ([]models.PaymentProvider, error)
}

// RuleStore supplies active routing rules in ascending priority order.
type RuleStore interface {
	FindActiveOrdered() ([]models.RoutingRule, error)
}

// Registry resolves provider identifiers and routing contexts to gateway
// instances. Instances capture configuration by value at construction, so
// they are cached for process lifetime and must be invalidated via ClearCache
// whenever the administered configuration changes.
type Registry struct {
	providers ProviderStore
	rules     RuleStore
	logger    *zap.Logger

	mu    sync.RWMutex
	cache map[uint]Gateway
}

func NewRegistry(providers ProviderStore, rules RuleStore, logger *zap.Logger) *Registry {
	return &Registry{
		providers: providers,
		rules:     rules,
		logger:    logger,
		cache:     make(map[uint]Gateway),
	}
}

// ByProviderID returns the cached gateway for a provider id, constructing and
// caching it on first use.
func (r *Registry) ByProviderID(id uint) (Gateway, error) {
	r.mu.RLock()
	gw, ok := r.cache[id]
	r.mu.RUnlock()
	if ok {
		return gw, nil
	}

	record, err := r.providers.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, E(KindNotFound, "", "resolve", fmt.Sprintf("provider %d not found", id))
		}
		return nil, Ewrap(KindProvider, "", "resolve", "load provider record", err)
	}
	if !record.Active {
		return nil, E(KindInvalidState, record.Code, "resolve",
			fmt.Sprintf("provider %d is inactive", id))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if gw, ok := r.cache[id]; ok {
		return gw, nil
	}
	gw, err = FromRecord(record)
	if err != nil {
		return nil, err
	}
	r.cache[id] = gw
	return gw, nil
}

// ByProviderCode resolves a provider code to its record and delegates to
// ByProviderID.
func (r *Registry) ByProviderCode(code string) (Gateway, error) {
	record, err := r.providers.FindByCode(code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, E(KindNotFound, code, "resolve", "provider code not found")
		}
		return nil, Ewrap(KindProvider, code, "resolve", "load provider record", err)
	}
	return r.ByProviderID(record.ID)
}

// Default returns the gateway of the active provider flagged default.
func (r *Registry) Default() (Gateway, error) {
	record, err := r.providers.FindDefault()
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, E(KindConfiguration, "", "resolve", "no default provider configured")
		}
		return nil, Ewrap(KindProvider, "", "resolve", "load default provider", err)
	}
	return r.ByProviderID(record.ID)
}

// ByRouting evaluates routing rules in ascending priority order and returns
// the gateway of the first rule whose conditions all match the context and
// whose provider is active. With no matching rule the default provider wins.
func (r *Registry) ByRouting(ctx routing.Context) (Gateway, error) {
	rules, err := r.rules.FindActiveOrdered()
	if err != nil {
		return nil, Ewrap(KindProvider, "", "routing", "load routing rules", err)
	}

	for _, rule := range rules {
		conditions, err := routing.ParseConditions(rule.Conditions)
		if err != nil {
			r.logger.Warn("Skipping routing rule with bad conditions",
				zap.Uint("rule_id", rule.ID), zap.Error(err))
			continue
		}
		if !routing.Matches(conditions, ctx) {
			continue
		}

		record, err := r.providers.FindByID(rule.ProviderID)
		if err != nil || !record.Active {
			// A rule pointing at a missing or inactive provider does not
			// participate; lower-priority rules still get their turn.
			continue
		}
		return r.ByProviderID(record.ID)
	}

	return r.Default()
}

// ClearCache drops cached instances for the given provider ids, or the whole
// cache when called with none.
func (r *Registry) ClearCache(ids ...uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(ids) == 0 {
		r.cache = make(map[uint]Gateway)
		return
	}
	for _, id := range ids {
		delete(r.cache, id)
	}
}

// ValidateProviderSupport checks a provider's declared currency and country
// lists before an intent is attempted, so unsupported combinations fail fast
// with a clear reason. An empty declared list means no restriction.
func (r *Registry) ValidateProviderSupport(providerID uint, currency, country string) error {
	record, err := r.providers.FindByID(providerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return E(KindNotFound, "", "validate_support",
				fmt.Sprintf("provider %d not found", providerID))
		}
		return Ewrap(KindProvider, "", "validate_support", "load provider record", err)
	}

	if currency != "" {
		if list := record.CurrencyList(); len(list) > 0 && !containsFold(list, currency) {
			return E(KindConfiguration, record.Code, "validate_support",
				fmt.Sprintf("currency %s is not supported", currency))
		}
	}
	if country != "" {
		if list := record.CountryList(); len(list) > 0 && !containsFold(list, country) {
			return E(KindConfiguration, record.Code, "validate_support",
				fmt.Sprintf("country %s is not supported", country))
		}
	}
	return nil
}

func containsFold(list []string, want string) bool {
	for _, v := range list {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}
