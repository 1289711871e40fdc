package notification

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"notify-delivery-backend/config"
	"notify-delivery-backend/internal/gateway"
	"notify-delivery-backend/internal/store"
)

// CleanupReport summarizes one cleanup pass.
type CleanupReport struct {
	Candidates int   `json:"candidates"`
	Removed    int   `json:"removed"`
	LogsPurged int64 `json:"logs_purged"`
	Errors     int   `json:"errors"`
}

// Cleaner removes endpoints whose deliveries keep failing permanently.
type Cleaner struct {
	store     store.Store
	lookback  time.Duration
	threshold int
	log       *zap.Logger
	now       func() time.Time

	mu sync.Mutex
}

// NewCleaner creates a cleaner.
func NewCleaner(s store.Store, cfg config.CleanupConfig, log *zap.Logger) *Cleaner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cleaner{
		store:     s,
		lookback:  cfg.Lookback,
		threshold: cfg.Threshold,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run removes every endpoint with at least threshold permanent failures in
// the lookback window, along with its delivery logs.
func (c *Cleaner) Run(ctx context.Context) (CleanupReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var report CleanupReport
	since := c.now().Add(-c.lookback)
	candidates, err := c.store.CountFailuresByToken(ctx, since, gateway.PermanentSignature, c.threshold)
	if err != nil {
		return report, err
	}
	report.Candidates = len(candidates)

	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		removal, err := c.store.DeleteEndpoint(ctx, cand.Token)
		if err != nil {
			report.Errors++
			c.log.Error("failed to remove dead endpoint", zap.String("token", cand.Token), zap.Error(err))
			continue
		}
		report.Removed++
		report.LogsPurged += removal.LogsPurged
		c.log.Info("dead endpoint removed",
			zap.String("token", cand.Token),
			zap.Int64("failures", cand.Failures),
			zap.Bool("endpoint_deleted", removal.EndpointDeleted),
			zap.Int64("logs_purged", removal.LogsPurged))
	}

	c.log.Info("endpoint cleanup pass finished",
		zap.Int("candidates", report.Candidates),
		zap.Int("removed", report.Removed),
		zap.Int("errors", report.Errors))
	return report, nil
}

// DeleteEndpoint removes one token immediately.
func (c *Cleaner) DeleteEndpoint(ctx context.Context, token string) (store.EndpointRemoval, error) {
	removal, err := c.store.DeleteEndpoint(ctx, token)
	if err != nil {
		return removal, err
	}
	c.log.Info("endpoint deleted by operator",
		zap.String("token", token),
		zap.Bool("endpoint_deleted", removal.EndpointDeleted),
		zap.Int64("logs_purged", removal.LogsPurged))
	return removal, nil
}
