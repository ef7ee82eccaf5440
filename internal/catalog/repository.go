package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/daniel-lucas-silva/xcoin/internal/domain"
)

// Repository persists catalog snapshots keyed by venue, so a process restart
// can resume without a network round trip. Concurrent sessions must use
// distinct directories to avoid corrupting each other's snapshots.
type Repository interface {
	Load(venue string) ([]domain.Instrument, error)
	Save(venue string, products []domain.Instrument) error
}

const defaultCatalogDir = "./data/exchanges"

// FileRepository stores one JSON array per venue, rewritten wholesale on
// every successful forced refresh.
type FileRepository struct {
	dir string
}

// NewFileRepository creates a repository rooted at dir (default
// ./data/exchanges). The directory is created on first Save; Load treats a
// missing directory as an empty catalog.
func NewFileRepository(dir string) *FileRepository {
	if dir == "" {
		dir = defaultCatalogDir
	}
	return &FileRepository{dir: dir}
}

// Load reads the venue snapshot. A missing file yields an empty catalog, not
// an error.
func (r *FileRepository) Load(venue string) ([]domain.Instrument, error) {
	payload, err := os.ReadFile(r.path(venue))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read catalog snapshot")
	}
	if len(payload) == 0 {
		return nil, nil
	}

	var products []domain.Instrument
	if err := json.Unmarshal(payload, &products); err != nil {
		return nil, errors.Wrap(err, "decode catalog snapshot")
	}
	return products, nil
}

// Save rewrites the venue snapshot atomically via temp file.
func (r *FileRepository) Save(venue string, products []domain.Instrument) error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return errors.Wrap(err, "create catalog dir")
	}

	payload, err := json.MarshalIndent(products, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode catalog snapshot")
	}

	target := r.path(venue)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(err, "write catalog snapshot temp file")
	}
	if err := os.Rename(tmp, target); err != nil {
		return errors.Wrap(err, "persist catalog snapshot")
	}
	return nil
}

func (r *FileRepository) path(venue string) string {
	name := strings.ToLower(strings.TrimSpace(venue))
	return filepath.Join(r.dir, name+"_products.json")
}
