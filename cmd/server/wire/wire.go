//go:build wireinject
// +build wireinject

package wire

import (
	"watchcache/internal/controller"
	"watchcache/internal/handler"
	"watchcache/internal/repository"
	"watchcache/internal/router"
	"watchcache/internal/server"
	"watchcache/internal/service"
	"watchcache/pkg/app"
	"watchcache/pkg/log"
	"watchcache/pkg/server/http"
	"watchcache/pkg/sid"

	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
)

var repositorySet = wire.NewSet(
	repository.NewDB,
	repository.NewRepository,
	repository.NewTransaction,
	repository.NewResourceRecordRepository,
)

var controllerSet = wire.NewSet(
	controller.NewMirrorController,
	wire.Bind(new(service.InformerRegistry), new(*controller.MirrorController)),
)

var serviceSet = wire.NewSet(
	service.NewService,
	service.NewInformerService,
	service.NewRecordService,
)

var handlerSet = wire.NewSet(
	handler.NewHandler,
	handler.NewInformerHandler,
	handler.NewRecordHandler,
)

var metricsSet = wire.NewSet(
	wire.InterfaceValue(new(prometheus.Registerer), prometheus.DefaultRegisterer),
	wire.InterfaceValue(new(prometheus.Gatherer), prometheus.DefaultGatherer),
)

var serverSet = wire.NewSet(
	server.NewHTTPServer,
	server.NewControllerServer,
)

// build App
func newApp(
	httpServer *http.Server,
	controllerServer *server.ControllerServer,
) *app.App {
	return app.NewApp(
		app.WithServer(httpServer, controllerServer),
		app.WithName("watchcache-server"),
	)
}

func NewWire(*viper.Viper, *log.Logger) (*app.App, func(), error) {
	panic(wire.Build(
		repositorySet,
		controllerSet,
		serviceSet,
		handlerSet,
		metricsSet,
		serverSet,
		wire.Struct(new(router.RouterDeps), "*"),
		sid.NewSid,
		newApp,
	))
}
