package fuelgauge

import (
	"time"

	"github.com/TheCacophonyProject/event-reporter/v3/eventclient"
	"github.com/TheCacophonyProject/tc2-fuel-gauge/gauge"
	"github.com/godbus/dbus"
)

func reportAbnormalReset(r gauge.Reading) {
	event := eventclient.Event{
		Timestamp: time.Now(),
		Type:      "fuelGaugeReset",
		Details: map[string]interface{}{
			eventclient.SeverityKey: eventclient.SeverityError,
			"capacity":              r.Capacity,
			"voltage":               r.Sample.Voltage,
			"ocv":                   r.Sample.OCV,
			"deviceID":              r.DeviceID,
		},
	}
	if err := eventclient.AddEvent(event); err != nil {
		log.Error("Error sending fuel gauge reset event:", err)
	}
}

func reportLowCapacity(r gauge.Reading) {
	event := eventclient.Event{
		Timestamp: time.Now(),
		Type:      "lowBattery",
		Details: map[string]interface{}{
			"capacity": r.Capacity,
			"voltage":  r.Sample.Voltage,
			"vEmpty":   r.Tracker.SWVEmpty.String(),
		},
	}
	if err := eventclient.AddEvent(event); err != nil {
		log.Error("Error sending low battery event:", err)
	} else {
		log.Infof("Low battery event: capacity=%d%%, voltage=%dmV", r.Capacity, r.Sample.Voltage)
	}
}

// sendBatterySignal emits the capacity and voltage on the fuel gauge path.
func sendBatterySignal(r gauge.Reading) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	sig := &dbus.Signal{
		Path: dbus.ObjectPath(dbusPath),
		Name: dbusName + ".Battery",
		Body: []interface{}{int32(r.Capacity), int32(r.Sample.Voltage), r.Tracker.Charging},
	}
	return conn.Emit(sig.Path, sig.Name, sig.Body...)
}
