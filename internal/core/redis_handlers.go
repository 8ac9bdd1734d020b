package core

import (
	"fmt"
	"strings"
	"time"

	"show-controller/internal/config"
	"show-controller/internal/messaging"
	"show-controller/internal/showmgr"
	"show-controller/internal/types"
)

// handleAuthorize handles show authorization from ground control
func (s *ShowSystem) handleAuthorize(authorized bool) error {
	s.logger.Debugf("Handling authorization: %v", authorized)
	s.manager.Authorize(authorized)
	return nil
}

// handleCancel raises or clears the cancel request
func (s *ShowSystem) handleCancel(cancel bool) error {
	s.manager.Cancel(cancel)
	return nil
}

// handleTakeoff requests a test takeoff. The mode is not thread safe, so the
// request runs on the control loop.
func (s *ShowSystem) handleTakeoff(altitude float64) error {
	return s.post(func() {
		if !s.mode.UserTakeoff(altitude) {
			s.link.SendText(types.SeverityWarning, "Takeoff refused")
		}
	})
}

// handleModeRequest enters or leaves show mode on the control loop
func (s *ShowSystem) handleModeRequest(enter bool) error {
	if enter {
		s.manager.RequestSwitchToShowMode()
		return nil
	}
	return s.post(s.exitMode)
}

func (s *ShowSystem) handleStartTime(t time.Time) error {
	if !t.IsZero() && t.Before(s.manager.Now()) {
		return fmt.Errorf("start time %s is in the past", t.UTC().Format(time.RFC3339))
	}
	s.manager.SetStartTime(t)
	return nil
}

// handleTrajectory loads the trajectory at path, or the configured one when
// path is empty.
func (s *ShowSystem) handleTrajectory(path string) error {
	if path == "" {
		path = s.cfg.Trajectory.Path
	}
	if path == "" {
		return fmt.Errorf("no trajectory path configured")
	}
	t, err := showmgr.LoadTrajectory(path)
	if err != nil {
		return fmt.Errorf("failed to load trajectory: %w", err)
	}
	return s.manager.LoadTrajectory(t)
}

// handleSettingsUpdate applies one setting from the settings hash
func (s *ShowSystem) handleSettingsUpdate(key string) error {
	if !strings.HasPrefix(key, "show.") {
		return nil
	}
	value, err := s.redis.GetHashField(messaging.KeySettingsHash, key)
	if err != nil {
		return err
	}
	if value == "" {
		return nil
	}
	if err := s.params.Update(func(p *config.Params) error {
		return p.Apply(key, value)
	}); err != nil {
		return fmt.Errorf("rejected setting %s=%s: %w", key, value, err)
	}
	s.logger.Infof("Applied setting %s=%s", key, value)
	return nil
}

// loadSettings applies the persisted settings on startup
func (s *ShowSystem) loadSettings() {
	for _, key := range config.ParamKeys {
		if err := s.handleSettingsUpdate(key); err != nil {
			s.logger.Warnf("Failed to load setting %s: %v", key, err)
		}
	}
}

// handleAbortSwitch mirrors the local abort switch into the cancel signal
func (s *ShowSystem) handleAbortSwitch(channel string, pressed bool) error {
	s.manager.SetAbortSwitch(pressed)
	return nil
}
