package fuelgauge

import (
	"context"
	"fmt"
	"time"

	"github.com/TheCacophonyProject/tc2-fuel-gauge/gauge"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

const alertEdgeTimeout = time.Second

// watchAlertPin clears the gauge interrupt every time the active low alert
// pin falls. Alerts found are passed to onAlert.
func watchAlertPin(ctx context.Context, pinName string, engine *gauge.Engine, onAlert func(gauge.AlertFlags)) error {
	if _, err := host.Init(); err != nil {
		return err
	}
	log.Debugf("Initializing alert pin '%s'", pinName)
	pin := gpioreg.ByName(pinName)
	if pin == nil {
		return fmt.Errorf("GPIO pin %s not found", pinName)
	}
	if err := pin.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return err
	}

	go func() {
		defer pin.In(gpio.Float, gpio.NoEdge)
		// The pin may already be low from an alert raised before startup.
		if pin.Read() == gpio.Low {
			handleAlert(engine, onAlert)
		}
		for ctx.Err() == nil {
			if !pin.WaitForEdge(alertEdgeTimeout) {
				continue
			}
			handleAlert(engine, onAlert)
		}
	}()
	return nil
}

func handleAlert(engine *gauge.Engine, onAlert func(gauge.AlertFlags)) {
	flags, err := engine.ClearAlert()
	if err != nil {
		log.Errorf("Clearing fuel gauge alert: %v", err)
		return
	}
	log.Infof("Fuel gauge alert 0x%04x: low voltage %t, low SOC %t, low temp %t, high temp %t",
		flags.Raw, flags.LowVoltage, flags.LowSOC, flags.LowTemp, flags.HighTemp)
	if onAlert != nil {
		onAlert(flags)
	}
}
