package fuelgauge

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/TheCacophonyProject/tc2-fuel-gauge/gauge"
)

const (
	truncateInterval      = 24 * time.Hour
	lowCapacityHysteresis = 5
)

type monitor struct {
	engine *gauge.Engine
	conf   ServiceConfig
	sinks  []sink

	emitSignal    func(gauge.Reading) error
	onReset       func(gauge.Reading)
	onLowCapacity func(gauge.Reading)
	boardTemp     func() (int, error)

	stateMu      sync.Mutex
	lastCapacity int
	lowReported  bool
	alerts       chan struct{}
}

func newMonitor(engine *gauge.Engine, conf ServiceConfig, sinks []sink) *monitor {
	m := &monitor{
		engine:        engine,
		conf:          conf,
		sinks:         sinks,
		emitSignal:    sendBatterySignal,
		onReset:       reportAbnormalReset,
		onLowCapacity: reportLowCapacity,
		lastCapacity:  -1,
		alerts:        make(chan struct{}, 1),
	}
	if conf.BoardSensor {
		m.boardTemp = readBoardTemperature
	}
	return m
}

func (m *monitor) chargingFromCurrent() bool {
	return m.conf.ChargingSource == chargingFromCurrent
}

// restoreState loads the tracker saved by a previous run into the engine.
func (m *monitor) restoreState() {
	state, err := loadState(m.conf.StateFile)
	if err != nil {
		log.Warnf("Could not load fuel gauge state: %v", err)
		return
	}
	if state == nil {
		log.Info("No saved fuel gauge state")
		return
	}
	log.Infof("Restoring fuel gauge state from %s", state.LastUpdated.Format(time.RFC3339))
	m.engine.RestoreTracker(state.Tracker)
}

func (m *monitor) saveState() {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	if err := saveState(m.conf.StateFile, m.engine.Status().Tracker); err != nil {
		log.Errorf("Failed to save fuel gauge state: %v", err)
	}
}

// onAlert asks the loop to poll straight away so alert state is reported
// without waiting for the next tick.
func (m *monitor) onAlert(flags gauge.AlertFlags) {
	if !flags.LowVoltage && !flags.LowSOC {
		return
	}
	select {
	case m.alerts <- struct{}{}:
	default:
	}
}

func (m *monitor) tick(ctx context.Context, now time.Time) {
	if m.boardTemp != nil {
		if dc, err := m.boardTemp(); err != nil {
			log.Warnf("Reading board temperature: %v", err)
		} else {
			m.engine.SetBoardTemperature(dc)
		}
	}
	r, err := m.engine.Poll()
	abnormal := errors.Is(err, gauge.ErrAbnormalReset)
	if err != nil && !abnormal {
		log.Errorf("Polling fuel gauge: %v", err)
		return
	}
	if abnormal {
		log.Error("Fuel gauge lost its configuration and was reprogrammed")
		m.onReset(r)
	}
	if m.chargingFromCurrent() {
		m.engine.SetCharging(r.Sample.AvgCurrent > m.conf.ChargingCurrentMA)
	}
	log.Debugf("Voltage %dmV, current %dmA, OCV %dmV, SOC %d, capacity %d%%",
		r.Sample.Voltage, r.Sample.Current, r.Sample.OCV, r.RawSOC, r.Capacity)

	if m.conf.ReadingsFile != "" {
		if err := logReadingToFile(m.conf.ReadingsFile, now, r); err != nil {
			log.Errorf("Failed to log reading: %v", err)
		}
	}

	if r.Capacity != m.lastCapacity {
		if err := m.emitSignal(r); err != nil {
			log.Errorf("Failed to send battery signal: %v", err)
		}
		m.lastCapacity = r.Capacity
		m.saveState()
	}

	if r.Capacity <= m.conf.LowCapacity && !r.Tracker.Charging {
		if !m.lowReported {
			m.onLowCapacity(r)
			m.lowReported = true
		}
	} else if r.Capacity > m.conf.LowCapacity+lowCapacityHysteresis {
		m.lowReported = false
	}

	for _, s := range m.sinks {
		if err := s.Publish(ctx, now, r); err != nil {
			log.Warnf("Failed to publish reading: %v", err)
		}
	}
}

func (m *monitor) run(ctx context.Context) {
	ticker := time.NewTicker(m.conf.PollInterval)
	defer ticker.Stop()
	truncate := time.NewTicker(truncateInterval)
	defer truncate.Stop()

	m.tick(ctx, time.Now())
	for {
		select {
		case <-ctx.Done():
			m.saveState()
			return
		case t := <-ticker.C:
			m.tick(ctx, t)
		case <-m.alerts:
			m.tick(ctx, time.Now())
		case <-truncate.C:
			if err := keepLastLines(m.conf.ReadingsFile, m.conf.MaxReadings); err != nil {
				log.Errorf("Failed to truncate readings file: %v", err)
			}
		}
	}
}

func (m *monitor) close() {
	for _, s := range m.sinks {
		s.Close()
	}
}

func runService(conf *config) error {
	log.Info("Starting fuel gauge service")
	p, err := openPort(conf.Service)
	if err != nil {
		return err
	}
	defer p.Close()

	engine := gauge.NewEngine(p, log)
	if err := engine.Init(&conf.Gauge); err != nil {
		return err
	}

	m := newMonitor(engine, conf.Service, openSinks(conf.Service))
	defer m.close()
	m.restoreState()

	if err := startService(engine, m); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if conf.Service.AlertPin != "" {
		if err := watchAlertPin(ctx, conf.Service.AlertPin, engine, m.onAlert); err != nil {
			log.Warnf("Not watching the alert pin: %v", err)
		}
	}

	m.run(ctx)
	log.Info("Fuel gauge service stopped")
	return nil
}
