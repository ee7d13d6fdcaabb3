package syncworker

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("syncworker",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(StartWorker),
)

// StartWorker runs the worker loop for the lifetime of the application.
func StartWorker(lc fx.Lifecycle, worker *Worker) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go worker.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
