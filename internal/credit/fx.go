package credit

import (
	"github.com/bwmarrin/snowflake"
	"github.com/envisionerapp/envisioner-discovery-sub000/internal/clock"
	"github.com/envisionerapp/envisioner-discovery-sub000/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func ProvideTracker(db *gorm.DB, node *snowflake.Node, clk clock.Clock, log *zap.Logger, cfg config.Config) *Tracker {
	return NewTracker(db, node, clk, log, cfg.Credit)
}

var Module = fx.Module("credit",
	fx.Provide(ProvideTracker),
)
