//go:build windows

// Package service runs the console under the Windows service control manager.
// A stop or shutdown request cancels the run context, which closes the live
// channels and drains the dashboard API; the service reports stopped once
// that finishes or the grace period runs out.
package service

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sys/windows/svc"
	"go.uber.org/zap"
)

const (
	serviceName = "VitalisConsole"

	// stopGrace bounds how long a stop request waits for the console to
	// close its channels and shut the API down.
	stopGrace = 5 * time.Second
)

// ConsoleService implements the Windows service interface (svc.Handler).
type ConsoleService struct {
	logger  *zap.Logger
	startFn func(ctx context.Context)
}

// New creates a new Windows service wrapper.
// The startFn is called with a cancellable context when the service starts.
func New(logger *zap.Logger, startFn func(ctx context.Context)) *ConsoleService {
	return &ConsoleService{
		logger:  logger,
		startFn: startFn,
	}
}

// IsWindowsService checks if the process is running as a Windows service.
func IsWindowsService() bool {
	isService, err := svc.IsWindowsService()
	if err != nil {
		return false
	}
	return isService
}

// Run starts the Windows service control loop.
func (s *ConsoleService) Run() error {
	return svc.Run(serviceName, s)
}

// Execute implements the svc.Handler interface for Windows SCM integration.
// It manages the service lifecycle: start, running, stop/shutdown.
func (s *ConsoleService) Execute(args []string, r <-chan svc.ChangeRequest, changes chan<- svc.Status) (ssec bool, errno uint32) {
	changes <- svc.Status{State: svc.StartPending}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Run the console until the context is cancelled
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.startFn(ctx)
	}()

	changes <- svc.Status{
		State:   svc.Running,
		Accepts: svc.AcceptStop | svc.AcceptShutdown,
	}
	s.logger.Info("Windows service started")

	for {
		c := <-r
		switch c.Cmd {
		case svc.Interrogate:
			changes <- c.CurrentStatus
		case svc.Stop, svc.Shutdown:
			s.logger.Info("Windows service stopping")
			changes <- svc.Status{State: svc.StopPending}
			cancel()
			select {
			case <-done:
				s.logger.Info("Console stopped cleanly")
			case <-time.After(stopGrace):
				s.logger.Warn("Console did not stop within grace period",
					zap.Duration("grace", stopGrace))
			}
			return false, 0
		default:
			s.logger.Warn("Unexpected service control request",
				zap.Uint32("cmd", uint32(c.Cmd)))
		}
	}
}

// Install provides instructions for installing the service.
// In production, use golang.org/x/sys/windows/svc/mgr for programmatic installation.
func Install(exePath string) error {
	return fmt.Errorf("use 'sc create %s binPath= \"%s\"' to install", serviceName, exePath)
}
