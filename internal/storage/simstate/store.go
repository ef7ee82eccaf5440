// Package simstate persists simulator balances per product so a paper
// session restart resumes with the books it left off with.
package simstate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/daniel-lucas-silva/xcoin/internal/domain"
)

const defaultStateDir = "./data/simulate"

// Store persists the simulator state of one product.
type Store struct {
	path string
}

// NewStore creates a state store under dir (default ./data/simulate), one
// file per product.
func NewStore(dir, productID string) (*Store, error) {
	if dir == "" {
		dir = defaultStateDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create simulate state dir")
	}
	name := strings.ToLower(strings.ReplaceAll(productID, "/", "-")) + ".json"
	return &Store{path: filepath.Join(dir, name)}, nil
}

// State is the persisted balance snapshot of one product.
type State struct {
	ProductID  string `json:"product_id"`
	Currency   string `json:"currency"`
	Asset      string `json:"asset"`
	EntryPrice string `json:"entry_price,omitempty"`
	Leverage   int    `json:"leverage,omitempty"`
	Isolated   bool   `json:"isolated,omitempty"`
}

// NewState snapshots a balance. Holds are omitted: they are recomputed from
// the open-order set, which does not survive a restart.
func NewState(productID string, bal domain.Balance, entryPrice decimal.Decimal) State {
	st := State{
		ProductID: productID,
		Currency:  bal.Currency.String(),
		Asset:     bal.Asset.String(),
		Leverage:  bal.Leverage,
		Isolated:  bal.Isolated,
	}
	if entryPrice.IsPositive() {
		st.EntryPrice = entryPrice.String()
	}
	return st
}

// Balances decodes the stored free amounts.
func (st State) Balances() (currency, asset decimal.Decimal, err error) {
	if currency, err = decimal.NewFromString(st.Currency); err != nil {
		return decimal.Zero, decimal.Zero, errors.Wrap(err, "decode currency")
	}
	if asset, err = decimal.NewFromString(st.Asset); err != nil {
		return decimal.Zero, decimal.Zero, errors.Wrap(err, "decode asset")
	}
	return currency, asset, nil
}

// Load reads the state from disk. A missing or empty file yields (nil, nil).
func (s *Store) Load() (*State, error) {
	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read simulate state")
	}
	if len(payload) == 0 {
		return nil, nil
	}

	var state State
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, errors.Wrap(err, "decode simulate state")
	}
	return &state, nil
}

// Save writes the state atomically via a temp file.
func (s *Store) Save(state State) error {
	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode simulate state")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(err, "write simulate state temp file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "persist simulate state")
	}
	return nil
}
