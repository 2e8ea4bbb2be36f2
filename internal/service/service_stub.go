//go:build !windows

// Package service provides a stub implementation for non-Windows platforms.
// On macOS and Linux the console runs as a foreground process; the Windows
// service wrapper is not needed.
package service

import (
	"context"

	"go.uber.org/zap"
)

// ConsoleService is a no-op service wrapper for non-Windows platforms.
type ConsoleService struct {
	logger  *zap.Logger
	startFn func(ctx context.Context)
}

// New creates a stub service wrapper for non-Windows platforms.
func New(logger *zap.Logger, startFn func(ctx context.Context)) *ConsoleService {
	return &ConsoleService{
		logger:  logger,
		startFn: startFn,
	}
}

// IsWindowsService always returns false on non-Windows platforms.
func IsWindowsService() bool {
	return false
}

// Run executes the console directly (no service wrapper needed on non-Windows).
func (s *ConsoleService) Run() error {
	ctx := context.Background()
	s.startFn(ctx)
	return nil
}
