// Command seed applies the schema and stores the configured settings rows.
package main

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/greenpass/greenpass/internal/app"
	"github.com/greenpass/greenpass/internal/platform/db"
	"github.com/greenpass/greenpass/internal/settings"
	"github.com/greenpass/greenpass/migrations"
)

func main() {
	ctx := context.Background()
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.Database())
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	fmt.Println("→ Applying migrations...")
	applied, err := migrations.Apply(ctx, pool)
	if err != nil {
		log.Fatalf("migrate: %v", err)
	}
	for _, name := range applied {
		fmt.Println("  ", name)
	}

	fmt.Println("→ Seeding settings...")
	snap, err := cfg.Settings()
	if err != nil {
		log.Fatalf("settings: %v", err)
	}
	store := settings.NewStore(pool, snap, logger)
	for key, value := range map[string]string{
		settings.KeyCurrency:        snap.Currency,
		settings.KeyGSTEnabled:      strconv.FormatBool(snap.GSTEnabled),
		settings.KeyGSTRate:         cfg.GSTRate,
		settings.KeyDefaultFee:      snap.DefaultFee.String(),
		settings.KeyVoucherValidity: strconv.Itoa(cfg.VoucherValidity),
		settings.KeyInvoiceDueDays:  strconv.Itoa(snap.InvoiceDueDays),
	} {
		if err := store.Set(ctx, key, value); err != nil {
			log.Fatalf("seed %s: %v", key, err)
		}
	}
	fmt.Println("✓ Seed complete")
}
