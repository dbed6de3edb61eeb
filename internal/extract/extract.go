package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/IBM/fp-go/v2/array"
	ET "github.com/IBM/fp-go/v2/either"
	"github.com/IBM/fp-go/v2/function"
	IOE "github.com/IBM/fp-go/v2/ioeither"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/simplifiedchinese"

	"github.com/Qubut/IP-Claim/packages/alipay_bill/internal/models"
)

var ErrUnsafePath = errors.New("archive entry escapes destination")

type RecordLister interface {
	ListByDate(ctx context.Context, date string) ([]models.BillURL, error)
}

type BlobReader interface {
	Read(ctx context.Context, key string) ([]byte, error)
}

// Result counts what one extraction pass did.
type Result struct {
	Archives int
	Files    int
	Failed   int
}

func (r Result) add(o Result) Result {
	return Result{Archives: r.Archives + o.Archives, Files: r.Files + o.Files, Failed: r.Failed + o.Failed}
}

// Extractor unpacks stored bill archives into <app id>/<bill type>/ below its output fs.
type Extractor struct {
	records         RecordLister
	blobs           BlobReader
	out             afero.Fs
	progress        io.Writer
	Logger          *zap.SugaredLogger
	Tracer          trace.Tracer
	Meter           metric.Meter
	sessionDuration metric.Int64Histogram
	filesTotal      metric.Int64Counter
	zipsTotal       metric.Int64Counter
	zipsFailed      metric.Int64Counter
	bytesTotal      metric.Int64Counter
}

func NewExtractor(
	records RecordLister,
	blobs BlobReader,
	out afero.Fs,
	progress io.Writer,
	tracer trace.Tracer,
	logger *zap.SugaredLogger,
	meter metric.Meter,
) (*Extractor, error) {
	e := &Extractor{
		records:  records,
		blobs:    blobs,
		out:      out,
		progress: progress,
		Logger:   logger,
		Tracer:   tracer,
		Meter:    meter,
	}

	var err error
	e.sessionDuration, err = meter.Int64Histogram(
		"extraction.session.duration",
		metric.WithDescription("Duration of the full extraction session"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	e.filesTotal, err = meter.Int64Counter(
		"extraction.files.total",
		metric.WithDescription("Total number of files extracted"),
	)
	if err != nil {
		return nil, err
	}

	e.zipsTotal, err = meter.Int64Counter(
		"extraction.zips.total",
		metric.WithDescription("Number of bill archives processed"),
	)
	if err != nil {
		return nil, err
	}

	e.zipsFailed, err = meter.Int64Counter(
		"extraction.zips.failed",
		metric.WithDescription("Number of bill archives that failed to extract"),
	)
	if err != nil {
		return nil, err
	}

	e.bytesTotal, err = meter.Int64Counter(
		"extraction.bytes.total",
		metric.WithDescription("Total bytes extracted"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return e, nil
}

// NewDirFs roots extraction output at dir on the local disk.
func NewDirFs(dir string) (afero.Fs, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create extract directory: %w", err)
	}
	return afero.NewBasePathFs(afero.NewOsFs(), dir), nil
}

// ExtractDate unpacks every stored archive of date. A broken archive is
// logged and counted; it does not stop the others.
func (e *Extractor) ExtractDate(ctx context.Context, date string) IOE.IOEither[error, Result] {
	return func() ET.Either[error, Result] {
		ctx, span := e.Tracer.Start(ctx, "extraction.session", trace.WithAttributes(
			attribute.String("bill.date", date),
		))
		defer span.End()
		return e.extractDate(ctx, date)()
	}
}

func (e *Extractor) extractDate(ctx context.Context, date string) IOE.IOEither[error, Result] {
	startTime := time.Now()
	e.Logger.Infow("Starting extraction", "date", date)

	var bar *progressbar.ProgressBar
	return function.Pipe2(
		IOE.TryCatchError(func() ([]models.BillURL, error) {
			records, err := e.records.ListByDate(ctx, date)
			if err != nil {
				return nil, err
			}
			return array.Filter(func(r models.BillURL) bool { return r.Stored() })(records), nil
		}),
		IOE.Chain(func(records []models.BillURL) IOE.IOEither[error, []Result] {
			e.zipsTotal.Add(ctx, int64(len(records)))
			if len(records) == 0 {
				e.Logger.Infow("No stored bills for date", "date", date)
				return IOE.Right[error]([]Result{})
			}
			if e.progress != nil {
				bar = progressbar.NewOptions(len(records),
					progressbar.OptionSetWriter(e.progress),
					progressbar.OptionSetWidth(40),
					progressbar.OptionSetDescription("Extracting bills"),
					progressbar.OptionShowCount(),
					progressbar.OptionSetRenderBlankState(true),
				)
			}
			return IOE.TraverseArray(func(record models.BillURL) IOE.IOEither[error, Result] {
				select {
				case <-ctx.Done():
					return IOE.Left[Result](ctx.Err())
				default:
				}
				result := e.extractRecord(ctx, record)
				if bar != nil {
					_ = bar.Add(1)
				}
				return IOE.Right[error](result)
			})(records)
		}),
		IOE.Map[error](func(results []Result) Result {
			total := array.Reduce(Result.add, Result{})(results)
			if bar != nil {
				_ = bar.Finish()
			}
			status := "success"
			if total.Failed > 0 {
				status = "partial"
			}
			e.sessionDuration.Record(ctx, time.Since(startTime).Milliseconds(),
				metric.WithAttributes(attribute.String("status", status)),
			)
			e.Logger.Infow("Extraction completed",
				"date", date,
				"archives", total.Archives,
				"files", total.Files,
				"failed", total.Failed,
			)
			return total
		}),
	)
}

func (e *Extractor) extractRecord(ctx context.Context, record models.BillURL) Result {
	appID := fmt.Sprintf("account-%d", record.AccountID)
	if record.Account != nil {
		appID = record.Account.AppID
	}
	destDir := path.Join(appID, record.Type.String())
	log := e.Logger.With("app_id", appID, "bill_type", record.Type.String(), "key", *record.LocalFile)

	ctx, span := e.Tracer.Start(ctx, "process.zip", trace.WithAttributes(
		attribute.String("key", *record.LocalFile),
		attribute.String("dest", destDir),
	))
	defer span.End()

	data, err := e.blobs.Read(ctx, *record.LocalFile)
	if err == nil {
		var files int
		files, err = e.extractZip(ctx, data, destDir)
		if err == nil {
			log.Infow("Bill archive extracted", "dest", destDir, "files", files)
			return Result{Archives: 1, Files: files}
		}
	}
	span.RecordError(err)
	e.zipsFailed.Add(ctx, 1)
	log.Errorw("Bill archive extraction failed", "error", err)
	return Result{Failed: 1}
}

func (e *Extractor) extractZip(ctx context.Context, data []byte, destDir string) (int, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("open archive: %w", err)
	}
	if err := e.out.MkdirAll(destDir, 0o755); err != nil {
		return 0, fmt.Errorf("create %s: %w", destDir, err)
	}

	files := 0
	for _, f := range r.File {
		name, err := entryName(f)
		if err != nil {
			return files, err
		}
		destPath := path.Join(destDir, name)

		if f.FileInfo().IsDir() {
			if err := e.out.MkdirAll(destPath, 0o755); err != nil {
				return files, fmt.Errorf("create directory %s: %w", destPath, err)
			}
			continue
		}
		if err := e.out.MkdirAll(path.Dir(destPath), 0o755); err != nil {
			return files, fmt.Errorf("create parent directory for %s: %w", destPath, err)
		}

		n, err := e.copyEntry(f, destPath)
		if err != nil {
			return files, err
		}
		e.filesTotal.Add(ctx, 1)
		e.bytesTotal.Add(ctx, n)
		files++
		e.Logger.Debugw("File extracted", "file", name, "dest", destPath, "bytes", n)
	}
	return files, nil
}

func (e *Extractor) copyEntry(f *zip.File, destPath string) (int64, error) {
	rc, err := f.Open()
	if err != nil {
		return 0, fmt.Errorf("open %s in archive: %w", f.Name, err)
	}
	defer rc.Close()

	dest, err := e.out.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", destPath, err)
	}
	n, err := io.Copy(dest, rc)
	if closeErr := dest.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return n, fmt.Errorf("copy %s: %w", f.Name, err)
	}
	return n, nil
}

// entryName decodes GB18030 names, which the provider uses for its CSV files,
// and rejects names that leave the destination.
func entryName(f *zip.File) (string, error) {
	name := f.Name
	if f.NonUTF8 {
		decoded, err := simplifiedchinese.GB18030.NewDecoder().String(name)
		if err == nil {
			name = decoded
		}
	}
	if !filepath.IsLocal(filepath.FromSlash(name)) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	return filepath.ToSlash(name), nil
}
