package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	ET "github.com/IBM/fp-go/v2/either"
	"github.com/IBM/fp-go/v2/function"
	IOE "github.com/IBM/fp-go/v2/ioeither"
	Http "github.com/IBM/fp-go/v2/ioeither/http"
	"github.com/IBM/fp-go/v2/retry"
	"go.uber.org/zap"

	"github.com/Qubut/IP-Claim/packages/alipay_bill/internal/config"
)

var ErrBadStatus = errors.New("bad status")

// Fetcher downloads bill archives from the short-lived URLs the gateway issues.
type Fetcher struct {
	client     Http.Client
	maxRetries int
	backoff    time.Duration
	logger     *zap.SugaredLogger
}

func NewFetcher(cfg config.Download, logger *zap.SugaredLogger) *Fetcher {
	timeout := function.Ternary(
		func(t time.Duration) bool { return t > 0 },
		function.Identity[time.Duration],
		function.Constant1[time.Duration, time.Duration](25*time.Second),
	)(cfg.Timeout)
	return &Fetcher{
		client:     Http.MakeClient(&http.Client{Timeout: timeout}),
		maxRetries: cfg.MaxRetries,
		backoff:    200 * time.Millisecond,
		logger:     logger,
	}
}

// Get returns the body of a 200 response. Other statuses fail with ErrBadStatus.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	return ET.UnwrapError(f.Fetch(ctx, url)())
}

func (f *Fetcher) Fetch(ctx context.Context, url string) IOE.IOEither[error, []byte] {
	policy := retry.Monoid.Concat(
		retry.LimitRetries(uint(f.maxRetries)),
		retry.ExponentialBackoff(f.backoff),
	)
	action := func(status retry.RetryStatus) IOE.IOEither[error, []byte] {
		select {
		case <-ctx.Done():
			return IOE.Left[[]byte](ctx.Err())
		default:
		}
		if status.IterNumber > 0 {
			f.logger.Warnw("Retrying bill fetch", "attempt", status.IterNumber+1)
		}
		request := IOE.TryCatchError(func() (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		})
		return IOE.Bracket(
			f.client.Do(request),
			func(resp *http.Response) IOE.IOEither[error, []byte] {
				if resp.StatusCode != http.StatusOK {
					return IOE.Left[[]byte](fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode))
				}
				return IOE.TryCatchError(func() ([]byte, error) {
					return io.ReadAll(resp.Body)
				})
			},
			func(resp *http.Response, _ ET.Either[error, []byte]) IOE.IOEither[error, any] {
				return IOE.TryCatchError(func() (any, error) { return nil, resp.Body.Close() })
			},
		)
	}
	return IOE.Retrying(policy, action, ET.Fold(
		func(err error) bool { return ctx.Err() == nil && !errors.Is(err, context.Canceled) },
		function.Constant1[[]byte](false),
	))
}
