package syncengine

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("syncengine",
	fx.Provide(New),
	fx.Invoke(Run),
)

func Run(lc fx.Lifecycle, engine *Engine) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go engine.RunForever(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
