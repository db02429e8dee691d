// Package migration creates the cache schema on startup so the bridge
// is usable out of the box for local and self-hosted environments.
package migration

import (
	"github.com/smallbiznis/fapiaolink/internal/invoice/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migration",
	fx.Invoke(Run),
)

func Run(db *gorm.DB, log *zap.Logger) error {
	err := db.AutoMigrate(
		&domain.InvoiceRecord{},
		&domain.InvoiceLineItem{},
	)
	if err != nil {
		return err
	}
	log.Info("schema migration complete")
	return nil
}
