package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/Qubut/IP-Claim/packages/alipay_bill/internal/config"
	"github.com/Qubut/IP-Claim/packages/alipay_bill/internal/models"
)

// Store keeps bill archives under slash-separated keys.
type Store struct {
	fs afero.Fs
}

func New(fs afero.Fs) *Store {
	return &Store{fs: fs}
}

// NewDirStore roots a store at the configured directory on the local disk.
func NewDirStore(cfg config.Storage) (*Store, error) {
	if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return New(afero.NewBasePathFs(afero.NewOsFs(), cfg.Directory)), nil
}

func (s *Store) Write(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name, err := clean(key)
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(path.Dir(name), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", key, err)
	}
	if err := afero.WriteFile(s.fs, name, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (s *Store) Read(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, err := clean(key)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

func (s *Store) Exists(key string) (bool, error) {
	name, err := clean(key)
	if err != nil {
		return false, err
	}
	return afero.Exists(s.fs, name)
}

func clean(key string) (string, error) {
	name := path.Clean("/" + key)
	if key == "" || name == "/" || strings.HasSuffix(key, "/") {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return name, nil
}

// KeyGenerator names archives as <namespace>/<yyyy>/<mm>/<dd>/<bill type>-<uuid>.zip.
type KeyGenerator struct {
	namespace string
	newID     func() string
}

func NewKeyGenerator(namespace string) *KeyGenerator {
	return &KeyGenerator{
		namespace: strings.Trim(namespace, "/"),
		newID:     func() string { return uuid.NewString() },
	}
}

func (g *KeyGenerator) Key(date time.Time, billType models.BillType) string {
	return path.Join(
		g.namespace,
		date.Format("2006/01/02"),
		fmt.Sprintf("%s-%s.zip", billType, g.newID()),
	)
}
