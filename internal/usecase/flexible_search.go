package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"flexsearch-service/internal/domain/entity"
	"flexsearch-service/internal/domain/repository"
	"flexsearch-service/pkg/logger"
	"flexsearch-service/pkg/metrics"
	"flexsearch-service/pkg/utils"

	"golang.org/x/sync/errgroup"
)

// EngineConfig tunes the batch loop of a flexible search
type EngineConfig struct {
	BatchSize     int
	BatchDelay    time.Duration
	TopN          int
	NotifyTimeout time.Duration
}

// DefaultEngineConfig returns the production defaults
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		BatchSize:     10,
		BatchDelay:    500 * time.Millisecond,
		TopN:          DefaultTopN,
		NotifyTimeout: 30 * time.Second,
	}
}

// FlexibleSearchEngine runs one flexible search: it checks every date of the
// range in sequential batches, keeps the job record current after each batch and
// publishes progress as it goes.
type FlexibleSearchEngine struct {
	lookup    repository.FareLookupClient
	jobs      repository.JobStore
	publisher repository.ProgressPublisher
	notifier  repository.Notifier
	cfg       EngineConfig
	logger    logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewFlexibleSearchEngine creates a new engine. notifier may be nil.
func NewFlexibleSearchEngine(
	lookup repository.FareLookupClient,
	jobs repository.JobStore,
	publisher repository.ProgressPublisher,
	notifier repository.Notifier,
	cfg EngineConfig,
	logger logger.Logger,
	m *metrics.Metrics,
) *FlexibleSearchEngine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.TopN <= 0 {
		cfg.TopN = DefaultTopN
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 30 * time.Second
	}
	return &FlexibleSearchEngine{
		lookup:    lookup,
		jobs:      jobs,
		publisher: publisher,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

// SetClock replaces the time source used for ETA and timestamps
func (e *FlexibleSearchEngine) SetClock(now func() time.Time) {
	e.now = now
}

// Run executes the search for jobID from the first batch. Per-date lookup
// failures are recorded as absence; only job store failures and cancellation
// end the run early. Run never writes the failed state, see MarkFailed.
func (e *FlexibleSearchEngine) Run(ctx context.Context, jobID string, req entity.SearchRequest) (*entity.Results, error) {
	log := e.logger.With("jobID", jobID)
	started := e.now()

	if err := ctx.Err(); err != nil {
		return nil, cancelled(jobID, err)
	}

	dates := GenerateDateRange(req.CenterDate, req.Range)
	total := len(dates)
	log.Info("Starting flexible search",
		"origin", req.Origin,
		"destination", req.Destination,
		"dates", total)

	empty := entity.EmptyResults()
	if _, err := e.jobs.Patch(ctx, jobID, entity.JobPatch{
		Status:   entity.StatusPtr(entity.StatusProcessing),
		Progress: &entity.Progress{Total: total, EstimatedTimeRemaining: InitialEstimate(total)},
		Results:  &empty,
	}); err != nil {
		return nil, fmt.Errorf("mark job processing: %w", err)
	}

	agg := NewAggregator(e.cfg.TopN)

	for start := 0; start < total; start += e.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, cancelled(jobID, err)
		}

		end := min(start+e.cfg.BatchSize, total)
		batchStarted := e.now()
		quotes := e.lookupBatch(ctx, log, req, dates[start:end])
		e.metrics.BatchDuration.Observe(e.now().Sub(batchStarted).Seconds())

		// lookups cut short by cancellation are not real absences
		if err := ctx.Err(); err != nil {
			return nil, cancelled(jobID, err)
		}

		for _, q := range quotes {
			if q != nil {
				agg.Add(*q)
			}
		}

		progress := ComputeProgress(total, end, e.now().Sub(started))
		snapshot := agg.Snapshot()
		if _, err := e.jobs.Patch(ctx, jobID, entity.JobPatch{
			Progress: &progress,
			Results:  &snapshot,
		}); err != nil {
			return nil, fmt.Errorf("save progress: %w", err)
		}

		e.publish(ctx, log, jobID, entity.ProgressEvent{
			Type:       entity.EventProgress,
			JobID:      jobID,
			Progress:   progress,
			TopResults: snapshot.TopResults,
			Timestamp:  e.now(),
		})

		log.Debug("Batch processed",
			"checked", progress.Checked,
			"total", total,
			"percentage", progress.Percentage,
			"found", agg.Count())

		if end < total {
			if err := utils.Sleep(ctx, e.cfg.BatchDelay); err != nil {
				return nil, cancelled(jobID, err)
			}
		}
	}

	results := agg.Finalize()
	final := entity.Progress{Total: total, Checked: total, Percentage: 100}
	if _, err := e.jobs.Patch(ctx, jobID, entity.JobPatch{
		Status:   entity.StatusPtr(entity.StatusCompleted),
		Progress: &final,
		Results:  &results,
	}); err != nil {
		return nil, fmt.Errorf("save final results: %w", err)
	}

	e.publish(ctx, log, jobID, entity.ProgressEvent{
		Type:       entity.EventCompleted,
		JobID:      jobID,
		Progress:   final,
		TopResults: results.TopResults,
		Results:    &results,
		Timestamp:  e.now(),
	})

	e.metrics.JobsFinished.WithLabelValues(string(entity.StatusCompleted)).Inc()
	e.metrics.JobDuration.Observe(e.now().Sub(started).Seconds())
	log.Info("Flexible search completed",
		"found", results.Statistics.TotalOptionsFound,
		"averagePrice", results.Statistics.AveragePrice,
		"cheapestDate", results.Statistics.CheapestDate)

	e.notify(ctx, log, jobID, req, results)
	return &results, nil
}

// MarkFailed moves the job to failed with cause and publishes the terminal event.
// Both steps are best-effort: the store may be the reason the run failed.
func (e *FlexibleSearchEngine) MarkFailed(ctx context.Context, jobID, cause string) error {
	log := e.logger.With("jobID", jobID)

	event := entity.ProgressEvent{
		Type:      entity.EventFailed,
		JobID:     jobID,
		Error:     cause,
		Timestamp: e.now(),
	}

	rec, err := e.jobs.Patch(ctx, jobID, entity.JobPatch{
		Status: entity.StatusPtr(entity.StatusFailed),
		Error:  entity.StringPtr(cause),
	})
	if err != nil {
		log.Error("Failed to record job failure", "cause", cause, "error", err)
	} else {
		event.Progress = rec.Progress
	}

	e.publish(ctx, log, jobID, event)
	e.metrics.JobsFinished.WithLabelValues(string(entity.StatusFailed)).Inc()
	log.Warn("Flexible search failed", "cause", cause)
	return err
}

// Settle finishes a run whose terminal write reached the store even though the
// store reported an error. The stored record wins: its terminal event is
// published and a completed search still sends its notification.
func (e *FlexibleSearchEngine) Settle(ctx context.Context, req entity.SearchRequest, record *entity.JobRecord) {
	log := e.logger.With("jobID", record.JobID)

	e.publish(ctx, log, record.JobID, terminalEvent(record))
	if record.Status != entity.StatusCompleted {
		return
	}
	e.metrics.JobsFinished.WithLabelValues(string(entity.StatusCompleted)).Inc()
	log.Info("Flexible search completed after a lost store reply")
	e.notify(ctx, log, record.JobID, req, record.Results)
}

// lookupBatch queries every date of the batch concurrently and waits for all of
// them. The result slice is index-aligned with dates.
func (e *FlexibleSearchEngine) lookupBatch(ctx context.Context, log logger.Logger, req entity.SearchRequest, dates []time.Time) []*entity.FareQuote {
	quotes := make([]*entity.FareQuote, len(dates))

	var g errgroup.Group
	for i, date := range dates {
		g.Go(func() error {
			query := entity.FareQuery{
				Origin:        req.Origin,
				Destination:   req.Destination,
				DepartureDate: date,
				Nights:        req.Nights,
				Adults:        req.Passengers.Adults,
				Children:      req.Passengers.Children,
			}

			quote, err := e.lookup.LookupFare(ctx, query)
			switch {
			case err != nil:
				e.metrics.FareLookups.WithLabelValues(metrics.OutcomeFailed).Inc()
				log.Warn("Fare lookup failed", "date", date.Format(entity.DateLayout), "error", err)
			case quote == nil:
				e.metrics.FareLookups.WithLabelValues(metrics.OutcomeEmpty).Inc()
				log.Debug("No fare found", "date", date.Format(entity.DateLayout))
			default:
				e.metrics.FareLookups.WithLabelValues(metrics.OutcomeFound).Inc()
				quotes[i] = quote
			}
			return nil
		})
	}
	_ = g.Wait()

	return quotes
}

func (e *FlexibleSearchEngine) publish(ctx context.Context, log logger.Logger, jobID string, event entity.ProgressEvent) {
	if err := e.publisher.Publish(ctx, jobID, event); err != nil {
		log.Warn("Failed to publish progress event", "type", event.Type, "error", err)
		e.metrics.ErrorsCount.WithLabelValues("publish").Inc()
	}
}

func (e *FlexibleSearchEngine) notify(ctx context.Context, log logger.Logger, jobID string, req entity.SearchRequest, results entity.Results) {
	if e.notifier == nil {
		return
	}
	n := BuildNotification(jobID, req, results)

	go func() {
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.NotifyTimeout)
		defer cancel()

		if err := e.notifier.Notify(nctx, n); err != nil {
			log.Warn("Failed to send notification", "userID", n.UserID, "error", err)
			e.metrics.ErrorsCount.WithLabelValues("notify").Inc()
		}
	}()
}

// BuildNotification renders the "search finished" message for results
func BuildNotification(jobID string, req entity.SearchRequest, results entity.Results) entity.Notification {
	n := entity.Notification{
		JobID:       jobID,
		UserID:      req.UserID,
		Email:       req.ContactEmail,
		Origin:      req.Origin,
		Destination: req.Destination,
	}

	if len(results.TopResults) == 0 {
		n.Title = "No fares found"
		n.Body = fmt.Sprintf("%s → %s: no prices were available around %s",
			req.Origin, req.Destination, req.CenterDate.Format(entity.DateLayout))
		return n
	}

	best := results.TopResults[0]
	symbol := currencySymbol(best.Currency)
	n.Title = "Best prices found!"
	n.Body = fmt.Sprintf("%s → %s: from %s%.0f (save %s%.0f)",
		req.Origin, req.Destination, symbol, best.Price, symbol, best.Savings)
	n.CheapestPrice = best.Price
	n.Savings = best.Savings
	n.Currency = best.Currency
	return n
}

func currencySymbol(code string) string {
	switch code {
	case "", "EUR":
		return "€"
	case "USD":
		return "$"
	case "GBP":
		return "£"
	default:
		return code + " "
	}
}

// IsCancellation reports whether err ended a run on purpose rather than by failure
func IsCancellation(err error) bool {
	return errors.Is(err, entity.ErrCancelled) || errors.Is(err, context.Canceled)
}

func cancelled(jobID string, cause error) error {
	return fmt.Errorf("search %s %w: %w", jobID, entity.ErrCancelled, cause)
}
