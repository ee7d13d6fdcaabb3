package dedup

import (
	"github.com/envisionerapp/envisioner-discovery-sub000/internal/clock"
	"github.com/envisionerapp/envisioner-discovery-sub000/internal/config"
	identitydomain "github.com/envisionerapp/envisioner-discovery-sub000/internal/identity/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func ProvideIndex(db *gorm.DB, repo identitydomain.Repository, log *zap.Logger, clk clock.Clock, cfg config.Config) *Index {
	return New(db, repo, log, clk, cfg.Worker.DedupRefreshInterval)
}

var Module = fx.Module("dedup",
	fx.Provide(ProvideIndex),
)
