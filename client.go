package fieldsync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Client is the main interface to the offline sync queue. It owns the
// queue store, the drain engine and the optional background
// maintenance task.
type Client struct {
	queue   Queue
	engine  *Engine
	records *RecordsClient
	config  Config
	log     *DebugLogger

	mu        sync.Mutex
	closed    bool
	stopMaint chan struct{}
	maintDone chan struct{}
}

// New creates a client over the local SQLite queue store.
func New(cfg Config) (*Client, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := NewStore(cfg.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	return NewWithQueue(cfg, store)
}

// NewWithQueue creates a client over a caller-provided queue store,
// for example a pgstore.Store in server-side deployments.
func NewWithQueue(cfg Config, queue Queue) (*Client, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, err := NewDebugLogger(cfg.Debug, cfg.DebugLogPath)
	if err != nil {
		queue.Close()
		return nil, fmt.Errorf("client: %w", err)
	}

	c := &Client{
		queue:     queue,
		config:    cfg,
		log:       log,
		stopMaint: make(chan struct{}),
		maintDone: make(chan struct{}),
	}

	var audit AuditSink
	if !cfg.IsOffline() {
		c.records = NewRecordsClient(cfg.RecordsURL, cfg.APIKey, cfg.DeviceID)
		c.records.SetDebugLogger(log)
		audit = c.records
	}

	c.engine = NewEngine(queue, audit)
	c.engine.SetDebugLogger(log)
	c.engine.SetCommitTimeout(cfg.CommitTimeout)

	if c.records != nil {
		for _, entityType := range ValidEntityTypes() {
			c.engine.RegisterCommitter(entityType, c.records.Committer(entityType))
		}
	}

	// Start background maintenance if enabled
	if cfg.AutoMaintain {
		go c.maintenanceLoop()
	} else {
		close(c.maintDone)
	}

	return c, nil
}

// RegisterCommitter overrides the commit collaborator for an entity
// type, replacing the default records service committer.
func (c *Client) RegisterCommitter(entityType EntityType, committer Committer) {
	c.engine.RegisterCommitter(entityType, committer)
}

// SetAuditSink overrides the audit sink.
func (c *Client) SetAuditSink(sink AuditSink) {
	c.engine.audit = sink
}

// QueueChange enqueues a change for later synchronization. For create
// operations with no entity id, a provisional client-generated id is
// assigned; the records service may replace it at commit time.
func (c *Client) QueueChange(entityType EntityType, entityID string, op Operation, payload json.RawMessage) (*SyncQueueEntry, error) {
	if op == OpCreate && entityID == "" {
		entityID = "local-" + uuid.NewString()
	}

	entry, err := c.queue.Enqueue(entityType, entityID, op, payload)
	if err != nil {
		return nil, err
	}

	c.log.Log("queued %s %s/%s as entry %s", op, entityType, entityID, entry.ID)
	return entry, nil
}

// ProcessPendingSync drains up to limit pending entries in FIFO order.
// A limit of zero or less drains everything pending.
func (c *Client) ProcessPendingSync(ctx context.Context, limit int) (*DrainResult, error) {
	return c.engine.ProcessPending(ctx, limit)
}

// RetryFailedSync re-offers failed entries under their retry budget and
// drains them. Zero maxAttempts uses the configured default.
func (c *Client) RetryFailedSync(ctx context.Context, maxAttempts, limit int) (*DrainResult, error) {
	if maxAttempts <= 0 {
		maxAttempts = c.config.MaxAttempts
	}
	return c.engine.RetryFailed(ctx, maxAttempts, limit)
}

// GetSyncStats returns a queue health snapshot.
func (c *Client) GetSyncStats() (*SyncStats, error) {
	return c.engine.Stats()
}

// CleanupOldEntries purges completed entries older than the given
// number of days. Zero or negative days uses the configured retention.
func (c *Client) CleanupOldEntries(olderThanDays int) (int, error) {
	if olderThanDays <= 0 {
		olderThanDays = c.config.RetainDays
	}
	return c.engine.Cleanup(olderThanDays)
}

// EntriesByEntity returns the queue history for one target record,
// newest-first.
func (c *Client) EntriesByEntity(entityType EntityType, entityID string) ([]SyncQueueEntry, error) {
	return c.queue.EntriesByEntity(entityType, entityID)
}

// DeleteEntry removes one entry, the operator path for discarding a
// quarantined change after out-of-band resolution.
func (c *Client) DeleteEntry(id string) error {
	return c.queue.Delete(id)
}

// HealthCheck reports client health: store reachability and, when a
// records service is configured, its reachability too.
func (c *Client) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{Healthy: true, StoreOK: true}

	if _, err := c.queue.CountPending(); err != nil {
		status.Healthy = false
		status.StoreOK = false
		status.Error = err.Error()
		return status
	}

	if c.records != nil {
		if _, err := c.records.Health(ctx); err != nil {
			status.Healthy = false
			status.Error = err.Error()
		} else {
			status.RecordsReachable = true
		}
	}

	return status
}

// Config returns the effective configuration.
func (c *Client) Config() Config { return c.config }

// maintenanceLoop periodically purges old completed entries and logs a
// stats snapshot. It never touches pending or failed entries.
func (c *Client) maintenanceLoop() {
	defer close(c.maintDone)

	ticker := time.NewTicker(c.config.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopMaint:
			return
		case <-ticker.C:
			deleted, err := c.engine.Cleanup(c.config.RetainDays)
			if err != nil {
				c.log.Log("maintenance: cleanup failed: %v", err)
				continue
			}
			if deleted > 0 {
				c.log.Log("maintenance: purged %d completed entries", deleted)
			}
			if stats, err := c.engine.Stats(); err == nil {
				c.log.Log("maintenance: pending=%d failed=%d", stats.Pending, stats.Failed)
			}
		}
	}
}

// Close stops background maintenance and closes the queue store.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.stopMaint)
	<-c.maintDone

	if err := c.queue.Close(); err != nil {
		return err
	}
	return c.log.Close()
}
