package submit

import (
	"go.uber.org/fx"
)

var Module = fx.Module("submit",
	fx.Provide(New),
)
