package system

import "context"

// NoopService is a convenient Service implementation for modules that have
// no background loop of their own (request-scoped services registered only
// so the lifecycle manager can enumerate them).
type NoopService struct {
	ServiceName string
}

func (n NoopService) Name() string { return n.ServiceName }

func (NoopService) Start(context.Context) error { return nil }

func (NoopService) Stop(context.Context) error { return nil }
