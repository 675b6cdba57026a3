package server

import (
	"context"

	"watchcache/internal/controller"
	"watchcache/pkg/log"
)

type ControllerServer struct {
	controller *controller.MirrorController
	log        *log.Logger
}

func NewControllerServer(
	log *log.Logger,
	mirrorController *controller.MirrorController,
) *ControllerServer {
	return &ControllerServer{
		controller: mirrorController,
		log:        log,
	}
}

func (s *ControllerServer) Start(ctx context.Context) error {
	s.log.Info("starting controller server")
	return s.controller.Start(ctx)
}

func (s *ControllerServer) Stop(ctx context.Context) error {
	s.log.Info("stopping controller server")
	return s.controller.Stop(ctx)
}
