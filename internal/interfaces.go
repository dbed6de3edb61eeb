package internal

import (
	"context"
	"time"

	"github.com/IBM/fp-go/v2/ioeither"

	"github.com/Qubut/IP-Claim/packages/alipay_bill/internal/extract"
	"github.com/Qubut/IP-Claim/packages/alipay_bill/internal/job"
	"github.com/Qubut/IP-Claim/packages/alipay_bill/internal/models"
)

type DownloaderInterface interface {
	Run(ctx context.Context, date time.Time, opts job.Options) (job.Summary, error)
}

type ExtractorInterface interface {
	ExtractDate(ctx context.Context, date string) ioeither.IOEither[error, extract.Result]
}

type AccountsInterface interface {
	List(ctx context.Context) ([]models.Account, error)
	Save(ctx context.Context, account *models.Account) error
	SetValid(ctx context.Context, appID string, valid bool) error
}

type BillsInterface interface {
	ListByDate(ctx context.Context, date string) ([]models.BillURL, error)
}
