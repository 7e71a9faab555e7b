package cron

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"bersepay/internal/gateway"
)

// HealthMonitor periodically probes every active provider so a dead or
// misconfigured processor is noticed before a customer hits it.
type HealthMonitor struct {
	cron      *cron.Cron
	registry  *gateway.Registry
	providers gateway.ProviderStore
	logger    *zap.Logger
}

func NewHealthMonitor(registry *gateway.Registry, providers gateway.ProviderStore, logger *zap.Logger) *HealthMonitor {
	return &HealthMonitor{
		cron:      cron.New(cron.WithSeconds()),
		registry:  registry,
		providers: providers,
		logger:    logger,
	}
}

// Start registers and starts the health-check job.
func (m *HealthMonitor) Start() {
	// Probe every 5 minutes.
	m.cron.AddFunc("0 */5 * * * *", func() {
		m.logger.Debug("Running: provider health check")
		m.CheckProviders()
	})
	m.cron.Start()
}

// Stop halts the scheduler and waits for a running job to finish.
func (m *HealthMonitor) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
}

// CheckProviders probes each active provider with a bounded timeout.
func (m *HealthMonitor) CheckProviders() {
	providers, err := m.providers.FindActive()
	if err != nil {
		m.logger.Error("Health check: cannot list providers", zap.Error(err))
		return
	}

	for _, p := range providers {
		gw, err := m.registry.ByProviderID(p.ID)
		if err != nil {
			m.logger.Warn("Health check: provider not constructible",
				zap.String("code", p.Code), zap.Error(err))
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		healthy := gw.HealthCheck(ctx)
		cancel()

		if !healthy {
			m.logger.Warn("Provider unhealthy", zap.String("code", p.Code))
			continue
		}
		m.logger.Debug("Provider healthy", zap.String("code", p.Code))
	}
}
