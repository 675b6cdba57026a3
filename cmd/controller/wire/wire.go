//go:build wireinject
// +build wireinject

package wire

import (
	"watchcache/internal/controller"
	"watchcache/internal/repository"
	"watchcache/internal/server"
	"watchcache/pkg/app"
	"watchcache/pkg/log"

	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
)

var repositorySet = wire.NewSet(
	repository.NewDB,
	repository.NewRepository,
	repository.NewResourceRecordRepository,
)

var controllerSet = wire.NewSet(
	controller.NewMirrorController,
	wire.InterfaceValue(new(prometheus.Registerer), prometheus.DefaultRegisterer),
)

var serverSet = wire.NewSet(
	server.NewControllerServer,
)

func newApp(
	controllerServer *server.ControllerServer,
) *app.App {
	return app.NewApp(
		app.WithServer(controllerServer),
		app.WithName("watchcache-controller"),
	)
}

func NewWire(*viper.Viper, *log.Logger) (*app.App, func(), error) {
	panic(wire.Build(
		repositorySet,
		controllerSet,
		serverSet,
		newApp,
	))
}
