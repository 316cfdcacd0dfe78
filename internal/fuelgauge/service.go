/*
tc2-fuel-gauge - State of charge estimation for the tc2 fuel gauge
Copyright (C) 2025, The Cacophony Project

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package fuelgauge

import (
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/TheCacophonyProject/tc2-fuel-gauge/gauge"
	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"
)

const (
	dbusName = "org.cacophony.FuelGauge"
	dbusPath = "/org/cacophony/FuelGauge"
)

type service struct {
	engine  *gauge.Engine
	monitor *monitor
}

func startService(engine *gauge.Engine, m *monitor) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	reply, err := conn.RequestName(dbusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return errors.New("name already taken")
	}

	s := &service{
		engine:  engine,
		monitor: m,
	}
	conn.Export(s, dbusPath, dbusName)
	conn.Export(genIntrospectable(s), dbusPath, "org.freedesktop.DBus.Introspectable")
	return nil
}

func genIntrospectable(v interface{}) introspect.Introspectable {
	node := &introspect.Node{
		Interfaces: []introspect.Interface{{
			Name:    dbusName,
			Methods: introspect.Methods(v),
		}},
	}
	return introspect.NewIntrospectable(node)
}

// GetCapacity returns the reported capacity in percent, or the raw SOC in
// permille when raw is set.
func (s *service) GetCapacity(raw bool) (int32, *dbus.Error) {
	return int32(s.engine.GetCapacity(raw)), nil
}

// GetStatus returns the engine status as JSON.
func (s *service) GetStatus() (string, *dbus.Error) {
	data, err := json.Marshal(s.engine.Status())
	if err != nil {
		return "", dbusErr(err)
	}
	return string(data), nil
}

// GetIOCV returns the initial OCV estimate from the last programming as JSON.
func (s *service) GetIOCV() (string, *dbus.Error) {
	est := s.engine.LastIOCV()
	if est == nil {
		return "", dbusErr(gauge.ErrNoSamples)
	}
	data, err := json.Marshal(est)
	if err != nil {
		return "", dbusErr(err)
	}
	return string(data), nil
}

func (s *service) SetCharging(charging bool) *dbus.Error {
	if s.monitor.chargingFromCurrent() {
		return dbusErr(fmt.Errorf("charging state follows the measured current"))
	}
	s.engine.SetCharging(charging)
	return nil
}

// SetBoardTemperature sets the board temperature in tenths of a degree.
func (s *service) SetBoardTemperature(deciCelsius int32) *dbus.Error {
	s.engine.SetBoardTemperature(int(deciCelsius))
	return nil
}

func (s *service) ResetCapacity() *dbus.Error {
	s.engine.ResetCapacity()
	s.monitor.saveState()
	return nil
}

func (s *service) CalculateDynamicScale(target int32) (int32, *dbus.Error) {
	if target < 0 || target > 100 {
		return 0, dbusErr(fmt.Errorf("target %d out of range", target))
	}
	capMax := s.engine.CalculateDynamicScale(int(target))
	s.monitor.saveState()
	return int32(capMax), nil
}

func (s *service) Reinit(isSurge bool) *dbus.Error {
	if err := s.engine.Reinit(isSurge); err != nil {
		log.Errorf("Reinitialising fuel gauge: %v", err)
		return dbusErr(err)
	}
	return nil
}

// ClearAlert reads and clears the interrupt register, returning the alerts
// found as JSON.
func (s *service) ClearAlert() (string, *dbus.Error) {
	flags, err := s.engine.ClearAlert()
	if err != nil {
		return "", dbusErr(err)
	}
	data, err := json.Marshal(flags)
	if err != nil {
		return "", dbusErr(err)
	}
	return string(data), nil
}

func dbusErr(err error) *dbus.Error {
	if err == nil {
		return nil
	}
	return &dbus.Error{
		Name: dbusName + "." + getCallerName(),
		Body: []interface{}{err.Error()},
	}
}

func getCallerName() string {
	fpcs := make([]uintptr, 1)
	n := runtime.Callers(3, fpcs)
	if n == 0 {
		return ""
	}
	caller := runtime.FuncForPC(fpcs[0] - 1)
	if caller == nil {
		return ""
	}
	funcNames := strings.Split(caller.Name(), ".")
	return funcNames[len(funcNames)-1]
}
