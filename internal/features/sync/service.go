package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"aspire-sync/internal/aspire"
	"aspire-sync/internal/config"
	"aspire-sync/internal/email"
	"aspire-sync/internal/features/record"

	"go.uber.org/zap"
)

// API is the slice of the Aspire client the sync functions consume.
type API interface {
	FetchCompanies(ctx context.Context, opts aspire.FetchOptions) ([]aspire.Record, error)
	FetchContacts(ctx context.Context, opts aspire.FetchOptions) ([]aspire.Record, error)
	FetchProperties(ctx context.Context, opts aspire.FetchOptions) ([]aspire.Record, error)
	FetchContracts(ctx context.Context, opts aspire.FetchOptions) ([]aspire.Record, error)
	FetchWorkTickets(ctx context.Context, opts aspire.FetchOptions) ([]aspire.Record, error)
	FetchOpportunityServices(ctx context.Context, opportunityIDs []int64) ([]aspire.Record, error)
	TestConnection(ctx context.Context) bool
}

// ClientFactory builds a fresh API client per run so the cached token
// lives exactly as long as the run that owns it.
type ClientFactory func() (API, error)

type Service interface {
	FullSync(ctx context.Context) (Stats, error)
	IncrementalSync(ctx context.Context) (Stats, error)
	ManualSync(ctx context.Context, cutoff *time.Time) (Stats, error)
	ResyncSince(ctx context.Context, cutoff time.Time) (Stats, error)
	LinkWorkTicketsToProperties(ctx context.Context) (LinkResult, error)
	LinkPropertiesToCompanies(ctx context.Context) (LinkResult, error)
	ListLogs(ctx context.Context, entityScope, status string, limit int64) ([]RunLog, error)
	TestConnection(ctx context.Context) bool
}

// ServiceImpl orchestrates sync runs. Runs are strictly sequential inside;
// callers must not start two runs concurrently (the foreign-key lookups are
// rebuilt from current store state, so concurrent writers would race on
// upsert-by-external-id). This is a documented precondition, not a guarded
// invariant.
type ServiceImpl struct {
	store      record.Store
	logs       RunLogRepository
	newClient  ClientFactory
	hub        *Hub
	mailer     email.Sender
	log        *zap.Logger
	alertTo    []string
	batchDelay time.Duration
}

func NewService(store record.Store, logs RunLogRepository, hub *Hub, mailer email.Sender, cfg *config.Config, log *zap.Logger) Service {
	factory := func() (API, error) {
		client, err := aspire.NewClient(cfg, log)
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	return &ServiceImpl{
		store:      store,
		logs:       logs,
		newClient:  factory,
		hub:        hub,
		mailer:     mailer,
		log:        log,
		alertTo:    splitEmails(cfg.AlertEmails),
		batchDelay: BatchDelay,
	}
}

// FullSync pulls the entire remote collection for every entity.
func (s *ServiceImpl) FullSync(ctx context.Context) (Stats, error) {
	return s.run(ctx, TypeFull, aspire.FetchOptions{})
}

// IncrementalSync pulls records modified strictly after the completion of
// the most recent Success run. With no prior Success it behaves as a full
// sync.
func (s *ServiceImpl) IncrementalSync(ctx context.Context) (Stats, error) {
	since, err := s.logs.LastSuccess(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read last sync date: %w", err)
	}
	return s.run(ctx, TypeIncremental, aspire.FetchOptions{ModifiedSince: since})
}

// ManualSync runs a full sync, optionally bounded by a cutoff date.
func (s *ServiceImpl) ManualSync(ctx context.Context, cutoff *time.Time) (Stats, error) {
	return s.run(ctx, TypeManual, aspire.FetchOptions{Cutoff: cutoff})
}

// ResyncSince re-pulls everything modified on or after the cutoff date,
// independent of run history. Used for catch-up after failed syncs.
func (s *ServiceImpl) ResyncSince(ctx context.Context, cutoff time.Time) (Stats, error) {
	return s.run(ctx, TypeManual, aspire.FetchOptions{Cutoff: &cutoff})
}

func (s *ServiceImpl) ListLogs(ctx context.Context, entityScope, status string, limit int64) ([]RunLog, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.logs.List(ctx, entityScope, status, limit)
}

func (s *ServiceImpl) TestConnection(ctx context.Context) bool {
	client, err := s.newClient()
	if err != nil {
		return false
	}
	return client.TestConnection(ctx)
}

type phase struct {
	name string
	fn   func(context.Context, API, aspire.FetchOptions) (Result, error)
}

// run executes the entity syncs in dependency order: work tickets reference
// properties, properties and contracts reference companies, contracts may
// reference properties.
func (s *ServiceImpl) run(ctx context.Context, syncType string, opts aspire.FetchOptions) (Stats, error) {
	start := time.Now()

	runLog := &RunLog{
		SyncType:    syncType,
		EntityScope: "All",
		Status:      StatusRunning,
		StartedAt:   start,
	}
	if err := s.logs.Create(ctx, runLog); err != nil {
		return Stats{}, fmt.Errorf("failed to create sync log: %w", err)
	}

	runID := runLog.ID.Hex()
	s.log.Info("sync run started", zap.String("run_id", runID), zap.String("sync_type", syncType))

	var stats Stats
	var allErrors []ErrorEntry

	client, err := s.newClient()
	if err != nil {
		return s.fail(ctx, runLog, start, stats, allErrors, err)
	}

	phases := []phase{
		{"Companies", s.syncCompanies},
		{"Properties", s.syncProperties},
		{"Contacts", s.syncContacts},
		{"Contracts", s.syncContracts},
		{"Work Tickets", s.syncWorkTickets},
	}

	for _, p := range phases {
		s.publish(p.name, "syncing")
		s.log.Info("syncing entity", zap.String("run_id", runID), zap.String("entity", p.name))

		res, err := p.fn(ctx, client, opts)
		stats.add(res)
		allErrors = append(allErrors, res.Errors...)
		if err != nil {
			return s.fail(ctx, runLog, start, stats, allErrors, err)
		}
	}

	s.publish("All", "completed")

	status := StatusSuccess
	if stats.Errors > 0 {
		status = StatusPartial
	}
	s.finalize(ctx, runLog, start, status, stats, allErrors)

	s.log.Info("sync run finished",
		zap.String("run_id", runID),
		zap.String("status", status),
		zap.Int("pulled", stats.Pulled),
		zap.Int("created", stats.Created),
		zap.Int("updated", stats.Updated),
		zap.Int("errors", stats.Errors))

	return stats, nil
}

// fail finalizes a run aborted by an unrecoverable error (auth or
// transport failure) and sends the failure alert.
func (s *ServiceImpl) fail(ctx context.Context, runLog *RunLog, start time.Time, stats Stats, errors []ErrorEntry, cause error) (Stats, error) {
	errors = append(errors, ErrorEntry{Entity: "API", Error: cause.Error()})
	stats.Errors++
	s.finalize(ctx, runLog, start, StatusFailed, stats, errors)

	s.log.Error("sync run failed", zap.String("run_id", runLog.ID.Hex()), zap.Error(cause))

	if len(s.alertTo) > 0 {
		subject := fmt.Sprintf("Aspire sync failed (%s)", runLog.SyncType)
		body := fmt.Sprintf("Sync run %s failed: %s", runLog.ID.Hex(), cause.Error())
		if err := s.mailer.Send(s.alertTo, subject, body); err != nil {
			s.log.Warn("failed to send alert email", zap.Error(err))
		}
	}

	return stats, cause
}

func (s *ServiceImpl) finalize(ctx context.Context, runLog *RunLog, start time.Time, status string, stats Stats, errors []ErrorEntry) {
	runLog.Status = status
	runLog.RecordsPulled = stats.Pulled
	runLog.RecordsCreated = stats.Created
	runLog.RecordsUpdated = stats.Updated
	runLog.Errors = stats.Errors
	runLog.CompletedAt = time.Now()
	runLog.DurationSeconds = time.Since(start).Seconds()

	if len(errors) > 0 {
		if detail, err := json.Marshal(errors); err == nil {
			runLog.ErrorDetail = string(detail)
		}
	}

	if err := s.logs.Finalize(ctx, runLog); err != nil {
		s.log.Error("failed to finalize sync log", zap.String("run_id", runLog.ID.Hex()), zap.Error(err))
	}
}

// publish emits a progress notification; observability only, never a
// correctness dependency.
func (s *ServiceImpl) publish(entity, status string) {
	if s.hub != nil {
		s.hub.Broadcast(ProgressEvent{Entity: entity, Status: status})
	}
}

func splitEmails(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if addr := strings.TrimSpace(part); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}
