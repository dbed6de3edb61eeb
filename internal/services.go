package internal

import (
	"context"
	"errors"
	"io"
	"os"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Qubut/IP-Claim/packages/alipay_bill/internal/alipay"
	"github.com/Qubut/IP-Claim/packages/alipay_bill/internal/config"
	"github.com/Qubut/IP-Claim/packages/alipay_bill/internal/extract"
	"github.com/Qubut/IP-Claim/packages/alipay_bill/internal/fetch"
	"github.com/Qubut/IP-Claim/packages/alipay_bill/internal/job"
	"github.com/Qubut/IP-Claim/packages/alipay_bill/internal/lock"
	"github.com/Qubut/IP-Claim/packages/alipay_bill/internal/notify"
	"github.com/Qubut/IP-Claim/packages/alipay_bill/internal/storage"
	"github.com/Qubut/IP-Claim/packages/alipay_bill/internal/store"
)

type Services struct {
	Downloader DownloaderInterface
	Extractor  ExtractorInterface
	Accounts   AccountsInterface
	Bills      BillsInterface

	db          *gorm.DB
	closeLocker func() error
}

func InitServices(
	ctx context.Context,
	cfg config.Config,
	tracer trace.Tracer,
	logger *zap.SugaredLogger,
	meter metric.Meter,
) (*Services, error) {
	db, err := store.Open(cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	s := &Services{db: db, closeLocker: func() error { return nil }}

	accounts := store.NewAccountRepository(db)
	bills := store.NewBillURLRepository(db)
	s.Accounts = accounts
	s.Bills = bills

	blobs, err := storage.NewDirStore(cfg.Storage)
	if err != nil {
		return nil, errors.Join(err, s.Close())
	}

	locker, closeLocker, err := lock.New(ctx, cfg.Redis, logger)
	if err != nil {
		return nil, errors.Join(err, s.Close())
	}
	s.closeLocker = closeLocker

	notifier, err := notify.New(cfg.Notify, logger)
	if err != nil {
		return nil, errors.Join(err, s.Close())
	}

	var progress io.Writer
	if cfg.Download.Progress {
		progress = os.Stderr
	}

	s.Downloader, err = job.New(job.Deps{
		Accounts: accounts,
		Records:  bills,
		Querier:  alipay.NewClient(cfg.Alipay, logger),
		Fetcher:  fetch.NewFetcher(cfg.Download, logger),
		Blobs:    blobs,
		Keys:     storage.NewKeyGenerator(cfg.Storage.Namespace),
		Locker:   locker,
		Notifier: notifier,
	}, cfg.Download, progress, tracer, logger, meter)
	if err != nil {
		return nil, errors.Join(err, s.Close())
	}

	out, err := extract.NewDirFs(cfg.Extract.Directory)
	if err != nil {
		return nil, errors.Join(err, s.Close())
	}
	s.Extractor, err = extract.NewExtractor(bills, blobs, out, progress, tracer, logger, meter)
	if err != nil {
		return nil, errors.Join(err, s.Close())
	}
	return s, nil
}

// Close releases the database and redis connections.
func (s *Services) Close() error {
	return errors.Join(s.closeLocker(), store.Close(s.db))
}
