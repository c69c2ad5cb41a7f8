package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/V4T54L/tenantlog/internal/domain"
)

// ProcessedLogRepository is an in-process domain.ProcessedLogRepository.
// Records are partitioned by tenant first, so a lookup can never reach
// another tenant's logs.
type ProcessedLogRepository struct {
	mu      sync.RWMutex
	tenants map[string]map[string]domain.ProcessedLog
	now     func() time.Time
}

func NewProcessedLogRepository() *ProcessedLogRepository {
	return &ProcessedLogRepository{
		tenants: make(map[string]map[string]domain.ProcessedLog),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Upsert overwrites the record at (TenantID, LogID) and stamps ProcessedAt.
func (r *ProcessedLogRepository) Upsert(ctx context.Context, log domain.ProcessedLog) (domain.ProcessedLog, error) {
	if log.TenantID == "" || log.LogID == "" {
		return log, domain.ErrMissingKey
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	logs, ok := r.tenants[log.TenantID]
	if !ok {
		logs = make(map[string]domain.ProcessedLog)
		r.tenants[log.TenantID] = logs
	}
	log.ProcessedAt = r.now()
	logs[log.LogID] = log
	return log, nil
}

func (r *ProcessedLogRepository) Get(ctx context.Context, tenantID, logID string) (*domain.ProcessedLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	log, ok := r.tenants[tenantID][logID]
	if !ok {
		return nil, nil
	}
	return &log, nil
}

// List returns a tenant's logs, most recently processed first.
func (r *ProcessedLogRepository) List(ctx context.Context, tenantID string, limit int) ([]domain.ProcessedLog, error) {
	r.mu.RLock()
	logs := make([]domain.ProcessedLog, 0, len(r.tenants[tenantID]))
	for _, log := range r.tenants[tenantID] {
		logs = append(logs, log)
	}
	r.mu.RUnlock()

	sort.Slice(logs, func(i, j int) bool {
		if logs[i].ProcessedAt.Equal(logs[j].ProcessedAt) {
			return logs[i].LogID < logs[j].LogID
		}
		return logs[i].ProcessedAt.After(logs[j].ProcessedAt)
	})
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

// Len returns the number of stored records across all tenants.
func (r *ProcessedLogRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, logs := range r.tenants {
		n += len(logs)
	}
	return n
}
