package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/Qubut/IP-Claim/packages/alipay_bill/internal/alipay"
	"github.com/Qubut/IP-Claim/packages/alipay_bill/internal/config"
	"github.com/Qubut/IP-Claim/packages/alipay_bill/internal/lock"
	"github.com/Qubut/IP-Claim/packages/alipay_bill/internal/models"
)

type AccountSource interface {
	ListValid(ctx context.Context) ([]models.Account, error)
}

type RecordStore interface {
	SaveDownloadURL(
		ctx context.Context,
		accountID uint,
		billType models.BillType,
		date string,
		downloadURL string,
		response []byte,
	) (*models.BillURL, error)
	MarkStored(ctx context.Context, record *models.BillURL, localFile string) error
	MarkFailed(ctx context.Context, record *models.BillURL, status models.BillStatus, reason string) error
}

type BillQuerier interface {
	QueryBillDownloadURL(
		ctx context.Context,
		account models.Account,
		billType models.BillType,
		date string,
	) (*alipay.Result, error)
}

type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

type BlobStore interface {
	Write(ctx context.Context, key string, data []byte) error
}

type KeyGenerator interface {
	Key(date time.Time, billType models.BillType) string
}

type Notifier interface {
	Notify(ctx context.Context, summary Summary) error
}

// Deps are the collaborators of a Job. Locker and Notifier may be nil.
type Deps struct {
	Accounts AccountSource
	Records  RecordStore
	Querier  BillQuerier
	Fetcher  Fetcher
	Blobs    BlobStore
	Keys     KeyGenerator
	Locker   lock.Locker
	Notifier Notifier
}

// Options narrow a single run.
type Options struct {
	// AppID limits the run to one valid account.
	AppID string
}

type Job struct {
	Deps
	cfg      config.Download
	progress io.Writer
	Logger   *zap.SugaredLogger
	Tracer   trace.Tracer
	Meter    metric.Meter

	pairsTotal    metric.Int64Counter
	pairsOutcome  metric.Int64Counter
	bytesTotal    metric.Int64Counter
	fetchDuration metric.Int64Histogram
	runDuration   metric.Int64Histogram
}

func New(
	deps Deps,
	cfg config.Download,
	progress io.Writer,
	tracer trace.Tracer,
	logger *zap.SugaredLogger,
	meter metric.Meter,
) (*Job, error) {
	if deps.Locker == nil {
		deps.Locker = lock.Noop{}
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	j := &Job{
		Deps:     deps,
		cfg:      cfg,
		progress: progress,
		Logger:   logger,
		Tracer:   tracer,
		Meter:    meter,
	}

	var err error
	j.pairsTotal, err = meter.Int64Counter(
		"bill.pairs.total",
		metric.WithDescription("Number of (account, bill type) pairs attempted"),
	)
	if err != nil {
		return nil, err
	}

	j.pairsOutcome, err = meter.Int64Counter(
		"bill.pairs.outcome",
		metric.WithDescription("Number of pairs by outcome"),
	)
	if err != nil {
		return nil, err
	}

	j.bytesTotal, err = meter.Int64Counter(
		"bill.bytes.total",
		metric.WithDescription("Total bytes of bill archives stored"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	j.fetchDuration, err = meter.Int64Histogram(
		"bill.fetch.duration",
		metric.WithDescription("Duration of a bill archive fetch"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	j.runDuration, err = meter.Int64Histogram(
		"bill.run.duration",
		metric.WithDescription("Duration of a download run"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return j, nil
}

type pair struct {
	account  models.Account
	billType models.BillType
}

// Run downloads the bills of date for every valid account and bill type.
// Failures of single pairs are logged and counted; only setup failures and
// cancellation are returned.
func (j *Job) Run(ctx context.Context, date time.Time, opts Options) (Summary, error) {
	day := date.Format(DateLayout)
	summary := newSummary(day)
	ctx, span := j.Tracer.Start(ctx, "bill.run", trace.WithAttributes(
		attribute.String("bill.date", day),
		attribute.Int("workers", j.cfg.Workers),
	))
	defer span.End()
	start := time.Now()

	release, err := j.Locker.Acquire(ctx, LockKey(day))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return summary, fmt.Errorf("lock run of %s: %w", day, err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			j.Logger.Warnw("Releasing run lock failed", "date", day, "error", err)
		}
	}()

	accounts, err := j.Accounts.ListValid(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return summary, err
	}
	if opts.AppID != "" {
		accounts = filterAccounts(accounts, opts.AppID)
		if len(accounts) == 0 {
			return summary, fmt.Errorf("no valid account with app id %s", opts.AppID)
		}
	}

	pairs := make([]pair, 0, len(accounts)*len(models.BillTypes()))
	for _, account := range accounts {
		for _, billType := range models.BillTypes() {
			pairs = append(pairs, pair{account: account, billType: billType})
		}
	}
	j.Logger.Infow("Starting download run",
		"date", day,
		"accounts", len(accounts),
		"pairs", len(pairs),
		"workers", j.cfg.Workers,
	)
	j.pairsTotal.Add(ctx, int64(len(pairs)))

	bar := j.newProgressBar(len(pairs))
	sem := semaphore.NewWeighted(int64(j.cfg.Workers))
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		runErr error
	)
	for _, p := range pairs {
		if err := sem.Acquire(ctx, 1); err != nil {
			runErr = err
			break
		}
		wg.Add(1)
		go func(p pair) {
			defer wg.Done()
			defer sem.Release(1)
			outcome := j.processPair(ctx, p.account, p.billType, date)
			j.pairsOutcome.Add(ctx, 1, metric.WithAttributes(
				attribute.String("outcome", outcome.String()),
				attribute.String("bill_type", p.billType.String()),
			))
			mu.Lock()
			summary.record(outcome)
			mu.Unlock()
			if bar != nil {
				_ = bar.Add(1)
			}
		}(p)
	}
	wg.Wait()
	if bar != nil {
		_ = bar.Finish()
	}

	summary.Duration = time.Since(start)
	status := "completed"
	if runErr != nil {
		status = "cancelled"
		span.SetStatus(codes.Error, runErr.Error())
	}
	j.runDuration.Record(ctx, summary.Duration.Milliseconds(), metric.WithAttributes(
		attribute.String("status", status),
	))
	span.SetAttributes(
		attribute.Int("pairs.attempted", summary.Attempted),
		attribute.Int("pairs.fetched", summary.Fetched),
		attribute.Int("pairs.empty", summary.Empty),
		attribute.Int("pairs.errored", summary.Errored),
	)
	j.Logger.Infow("Download run completed",
		"date", day,
		"status", status,
		"attempted", summary.Attempted,
		"fetched", summary.Fetched,
		"empty", summary.Empty,
		"errored", summary.Errored,
		"failures", summary.Breakdown(),
		"duration_ms", summary.Duration.Milliseconds(),
	)

	if j.Notifier != nil {
		if err := j.Notifier.Notify(context.WithoutCancel(ctx), summary); err != nil {
			j.Logger.Warnw("Sending run summary failed", "date", day, "error", err)
		}
	}
	return summary, runErr
}

func filterAccounts(accounts []models.Account, appID string) []models.Account {
	for _, a := range accounts {
		if a.AppID == appID {
			return []models.Account{a}
		}
	}
	return nil
}

func (j *Job) newProgressBar(total int) *progressbar.ProgressBar {
	if !j.cfg.Progress || j.progress == nil || total == 0 {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(j.progress),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Downloading bills"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionThrottle(50*time.Millisecond),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// processPair runs query, record, fetch and store for one pair. The fetch
// follows the record write directly since the download URL expires quickly.
func (j *Job) processPair(
	ctx context.Context,
	account models.Account,
	billType models.BillType,
	date time.Time,
) Outcome {
	day := date.Format(DateLayout)
	ctx, span := j.Tracer.Start(ctx, "bill.pair", trace.WithAttributes(
		attribute.String("app_id", account.AppID),
		attribute.String("bill_type", billType.String()),
		attribute.String("bill.date", day),
	))
	defer span.End()
	log := j.Logger.With(
		"account", account.String(),
		"app_id", account.AppID,
		"bill_type", billType.String(),
		"date", day,
	)
	finish := func(o Outcome, err error) Outcome {
		span.SetAttributes(attribute.String("outcome", o.String()))
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		return o
	}

	result, err := j.Querier.QueryBillDownloadURL(ctx, account, billType, day)
	if err != nil {
		if errors.Is(err, alipay.ErrMalformedResponse) {
			log.Errorw("Invalid bill query response", "error", err)
			return finish(OutcomeInvalidResponse, err)
		}
		log.Errorw("Bill query failed", "error", err)
		return finish(OutcomeQueryFailed, err)
	}
	if result.Empty() {
		log.Warnw("No bill for this day", "response", string(result.Raw))
		return finish(OutcomeEmpty, nil)
	}
	if !result.Success() {
		log.Errorw("Bill query was rejected",
			"code", result.Code,
			"sub_code", result.SubCode,
			"sub_msg", result.SubMsg,
			"response", string(result.Raw),
		)
		return finish(OutcomeInvalidResponse, fmt.Errorf("code %s", result.Code))
	}
	if result.BillDownloadURL == "" {
		log.Errorw("Bill query returned no download URL", "response", string(result.Raw))
		return finish(OutcomeMissingURL, nil)
	}

	record, err := j.Records.SaveDownloadURL(ctx, account.ID, billType, day, result.BillDownloadURL, result.Raw)
	if err != nil {
		log.Errorw("Saving download URL failed", "error", err)
		return finish(OutcomeRecordFailed, err)
	}

	// outcomes are recorded even after a shutdown signal cancels ctx
	persist := context.WithoutCancel(ctx)

	start := time.Now()
	data, err := j.Fetcher.Get(ctx, result.BillDownloadURL)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		j.fetchDuration.Record(ctx, elapsed, metric.WithAttributes(attribute.String("status", "failed")))
		log.Errorw("Bill fetch failed", "error", err, "duration_ms", elapsed)
		if err := j.Records.MarkFailed(persist, record, models.BillStatusFetchFailed, err.Error()); err != nil {
			log.Errorw("Recording fetch failure failed", "error", err)
		}
		return finish(OutcomeFetchFailed, err)
	}
	j.fetchDuration.Record(ctx, elapsed, metric.WithAttributes(attribute.String("status", "success")))

	key := j.Keys.Key(date, billType)
	if err := j.Blobs.Write(ctx, key, data); err != nil {
		log.Errorw("Bill storage write failed", "error", err, "key", key, "bytes", len(data))
		if err := j.Records.MarkFailed(persist, record, models.BillStatusStoreFailed, err.Error()); err != nil {
			log.Errorw("Recording storage failure failed", "error", err)
		}
		return finish(OutcomeStoreFailed, err)
	}
	if err := j.Records.MarkStored(persist, record, key); err != nil {
		log.Errorw("Stored bill archive has no record", "error", err, "key", key, "bill_url_id", record.ID)
		return finish(OutcomeRecordFailed, err)
	}

	j.bytesTotal.Add(ctx, int64(len(data)), metric.WithAttributes(
		attribute.String("bill_type", billType.String()),
	))
	log.Infow("Bill stored", "key", key, "bytes", len(data), "duration_ms", elapsed)
	return finish(OutcomeFetched, nil)
}
