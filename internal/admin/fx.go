package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/envisionerapp/envisioner-discovery-sub000/internal/config"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("admin",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger, _ *Server) {
	srv := &http.Server{
		Addr:    cfg.AdminAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("admin.listen.failed", zap.Error(err))
				}
			}()
			log.Info("admin.listening", zap.String("addr", cfg.AdminAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
