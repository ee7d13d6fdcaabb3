package ratelimit

import (
	"strings"

	"github.com/envisionerapp/envisioner-discovery-sub000/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

// ProvideClient returns nil when no redis address is configured; every
// consumer in this package tolerates a nil client.
func ProvideClient(cfg config.Config) *redis.Client {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr})
}

func ProvidePacer(client *redis.Client, cfg config.Config) *Pacer {
	return NewPacer(client, cfg.Worker.CallDelay)
}

var Module = fx.Module("rate.limit",
	fx.Provide(ProvideClient),
	fx.Provide(ProvidePacer),
	fx.Provide(NewLocker),
)
