/*
connectivity.go - Forcible connectivity wrapper

PURPOSE:
  Wraps the real reachability probe with a manual override so demos and
  tests can simulate going offline without unplugging anything. In auto
  mode every call falls through to the probe; a forced mode answers
  without touching the network.
*/
package api

import (
	"context"
	"sync"

	"github.com/soffoalbert/buzo-sync/syncer"
)

// ConnectivitySwitch implements syncer.Connectivity over an inner probe
// with an optional forced answer.
type ConnectivitySwitch struct {
	mu     sync.Mutex
	forced *bool
	probe  syncer.Connectivity
}

// NewConnectivitySwitch wraps a probe in auto mode.
func NewConnectivitySwitch(probe syncer.Connectivity) *ConnectivitySwitch {
	return &ConnectivitySwitch{probe: probe}
}

// Online answers forced state when set, otherwise asks the probe.
func (s *ConnectivitySwitch) Online(ctx context.Context) bool {
	s.mu.Lock()
	forced := s.forced
	s.mu.Unlock()

	if forced != nil {
		return *forced
	}
	return s.probe.Online(ctx)
}

// Force pins the answer until Clear.
func (s *ConnectivitySwitch) Force(online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forced = &online
}

// Clear restores probing.
func (s *ConnectivitySwitch) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forced = nil
}

// Mode reports "online", "offline", or "auto".
func (s *ConnectivitySwitch) Mode() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.forced == nil:
		return "auto"
	case *s.forced:
		return "online"
	default:
		return "offline"
	}
}

var _ syncer.Connectivity = (*ConnectivitySwitch)(nil)
