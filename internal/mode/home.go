package mode

// tryToUpdateHomePosition keeps home pinned to the current position while the
// vehicle sits on the ground. Home is re-anchored every HomeResetInterval and
// one final time when the motor start window opens; after that home is left
// alone until the next entry into WaitForStartTime.
func (m *ModeDroneShow) tryToUpdateHomePosition() bool {
	if m.homePositionSet {
		return false
	}
	if !m.vehicle.Landed() || m.vehicle.Armed() {
		return false
	}

	final := m.preparedToTakeOff()
	if !final && m.elapsedSinceLastHomePositionResetAttempt() < m.p.HomeResetInterval {
		return false
	}
	m.lastHomePositionResetAttemptAt = m.now

	loc, ok := m.manager.CurrentLocation()
	if !ok {
		m.logger.Warnf("No position estimate, home not updated")
		return false
	}
	if !m.vehicle.SetHome(loc) {
		m.logger.Warnf("Vehicle refused home position update")
		return false
	}

	if final {
		m.homePositionSet = true
		m.logger.Infof("Home anchored to takeoff position %.7f, %.7f, %.2f m", loc.Lat, loc.Lng, loc.Alt)
	} else {
		m.logger.Debugf("Home re-anchored to %.7f, %.7f, %.2f m", loc.Lat, loc.Lng, loc.Alt)
	}
	return true
}
