package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/envisionerapp/envisioner-discovery-sub000/internal/admin"
	"github.com/envisionerapp/envisioner-discovery-sub000/internal/clock"
	"github.com/envisionerapp/envisioner-discovery-sub000/internal/config"
	"github.com/envisionerapp/envisioner-discovery-sub000/internal/credit"
	"github.com/envisionerapp/envisioner-discovery-sub000/internal/dedup"
	"github.com/envisionerapp/envisioner-discovery-sub000/internal/identity"
	"github.com/envisionerapp/envisioner-discovery-sub000/internal/logger"
	"github.com/envisionerapp/envisioner-discovery-sub000/internal/migration"
	obsmetrics "github.com/envisionerapp/envisioner-discovery-sub000/internal/observability/metrics"
	"github.com/envisionerapp/envisioner-discovery-sub000/internal/provider"
	"github.com/envisionerapp/envisioner-discovery-sub000/internal/ratelimit"
	"github.com/envisionerapp/envisioner-discovery-sub000/internal/syncqueue"
	"github.com/envisionerapp/envisioner-discovery-sub000/internal/syncworker"
	"github.com/envisionerapp/envisioner-discovery-sub000/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		identity.Module,
		syncqueue.Module,
		dedup.Module,
		credit.Module,
		provider.Module,
		ratelimit.Module,
		syncworker.Module,
		admin.Module,

		fx.Invoke(initMetrics),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

func initMetrics(cfg config.Config) {
	obsmetrics.SyncWithConfig(obsmetrics.Config{
		ServiceName: cfg.AppName,
		Environment: cfg.Environment,
	})
}
