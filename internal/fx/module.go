package fx

import "go.uber.org/fx"

// AppModule wires the whole API process.
var AppModule = fx.Options(
	ConfigModule,
	InfrastructureModule,
	DomainModule,
	MiddlewareModule,
	RoutesModule,
	ServerModule,
	WorkerModule,
)
