package migration

import (
	"strings"

	"github.com/envisionerapp/envisioner-discovery-sub000/internal/config"
	creditdomain "github.com/envisionerapp/envisioner-discovery-sub000/internal/credit/domain"
	identitydomain "github.com/envisionerapp/envisioner-discovery-sub000/internal/identity/domain"
	queuedomain "github.com/envisionerapp/envisioner-discovery-sub000/internal/syncqueue/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// The versioned SQL path is postgres-only; sqlite dev databases get
		// the schema straight from the models.
		if !strings.EqualFold(cfg.DBType, "postgres") {
			return conn.AutoMigrate(
				&identitydomain.CreatorIdentity{},
				&queuedomain.SyncQueueItem{},
				&creditdomain.ProviderUsageRecord{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
