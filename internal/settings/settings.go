// Package settings provides the per-request configuration snapshot consumed by the engine.
package settings

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/greenpass/greenpass/internal/money"
	"github.com/greenpass/greenpass/internal/shared"
)

// Setting keys stored in the settings table.
const (
	KeyCurrency        = "currency"
	KeyGSTEnabled      = "gst_enabled"
	KeyGSTRate         = "gst_rate"
	KeyDefaultFee      = "default_fee"
	KeyVoucherValidity = "voucher_validity_days"
	KeyInvoiceDueDays  = "invoice_due_days"
)

// Snapshot is read once per operation and passed explicitly into the engine.
type Snapshot struct {
	Currency        string
	GSTEnabled      bool
	GSTRate         money.Rate
	DefaultFee      money.Amount
	VoucherValidity time.Duration
	InvoiceDueDays  int
}

// Defaults returns the built-in settings.
func Defaults() Snapshot {
	return Snapshot{
		Currency:        "PGK",
		GSTEnabled:      false,
		GSTRate:         money.Percent(10),
		DefaultFee:      money.FromMajor(50),
		VoucherValidity: 365 * 24 * time.Hour,
		InvoiceDueDays:  30,
	}
}

// GST returns the tax due on a net amount, zero when GST is disabled.
func (s Snapshot) GST(net money.Amount) money.Amount {
	if !s.GSTEnabled {
		return 0
	}
	return net.Percentage(s.GSTRate)
}

// EffectiveGSTRate returns the rate applied to new documents.
func (s Snapshot) EffectiveGSTRate() money.Rate {
	if !s.GSTEnabled {
		return 0
	}
	return s.GSTRate
}

// Validate checks the snapshot for values the engine cannot work with.
func (s Snapshot) Validate() error {
	switch {
	case !money.ValidCurrency(s.Currency):
		return shared.Invalid("settings: unknown currency %q", s.Currency)
	case !s.GSTRate.Valid():
		return shared.Invalid("settings: gst rate %s out of range", s.GSTRate)
	case s.DefaultFee <= 0:
		return shared.Invalid("settings: default fee must be positive")
	case s.VoucherValidity <= 0:
		return shared.Invalid("settings: voucher validity must be positive")
	case s.InvoiceDueDays < 0:
		return shared.Invalid("settings: invoice due days must not be negative")
	}
	return nil
}

// Apply overlays stored key/value pairs on top of base.
func Apply(base Snapshot, values map[string]string) (Snapshot, error) {
	out := base
	for key, raw := range values {
		raw = strings.TrimSpace(raw)
		switch key {
		case KeyCurrency:
			out.Currency = strings.ToUpper(raw)
		case KeyGSTEnabled:
			v, err := strconv.ParseBool(raw)
			if err != nil {
				return base, shared.Invalid("settings: %s: %v", key, err)
			}
			out.GSTEnabled = v
		case KeyGSTRate:
			v, err := money.ParseRate(raw)
			if err != nil {
				return base, shared.Invalid("settings: %s: %v", key, err)
			}
			out.GSTRate = v
		case KeyDefaultFee:
			v, err := money.Parse(raw)
			if err != nil {
				return base, shared.Invalid("settings: %s: %v", key, err)
			}
			out.DefaultFee = v
		case KeyVoucherValidity:
			days, err := strconv.Atoi(raw)
			if err != nil {
				return base, shared.Invalid("settings: %s: %v", key, err)
			}
			out.VoucherValidity = time.Duration(days) * 24 * time.Hour
		case KeyInvoiceDueDays:
			days, err := strconv.Atoi(raw)
			if err != nil {
				return base, shared.Invalid("settings: %s: %v", key, err)
			}
			out.InvoiceDueDays = days
		}
	}
	if err := out.Validate(); err != nil {
		return base, err
	}
	return out, nil
}

// Source yields a settings snapshot.
type Source interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// Static always returns the same snapshot.
type Static Snapshot

// Snapshot implements Source.
func (s Static) Snapshot(context.Context) (Snapshot, error) { return Snapshot(s), nil }

// Store reads overrides from the settings table on top of configured defaults.
type Store struct {
	pool     *pgxpool.Pool
	defaults Snapshot
	logger   *slog.Logger
}

// NewStore constructs Store.
func NewStore(pool *pgxpool.Pool, defaults Snapshot, logger *slog.Logger) *Store {
	return &Store{pool: pool, defaults: defaults, logger: logger}
}

// Snapshot loads the current settings.
func (s *Store) Snapshot(ctx context.Context) (Snapshot, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return Snapshot{}, shared.Storage("settings snapshot", err)
	}
	defer rows.Close()
	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Snapshot{}, shared.Storage("settings snapshot", err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, shared.Storage("settings snapshot", err)
	}
	snap, err := Apply(s.defaults, values)
	if err != nil {
		// Invalid overrides fall back to the configured defaults.
		s.logger.Warn("settings overrides rejected", slog.Any("error", err))
		return s.defaults, nil
	}
	return snap, nil
}

// Set upserts a single setting after validating it against the current snapshot.
func (s *Store) Set(ctx context.Context, key, value string) error {
	current, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}
	if _, err := Apply(current, map[string]string{key: value}); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, `INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, NOW())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`, key, value); err != nil {
		return shared.Storage(fmt.Sprintf("settings set %s", key), err)
	}
	return nil
}
