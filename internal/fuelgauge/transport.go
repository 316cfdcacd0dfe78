package fuelgauge

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/TheCacophonyProject/tc2-fuel-gauge/gauge"
	"github.com/TheCacophonyProject/tc2-fuel-gauge/i2crequest"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

const (
	maxTxAttempts   = 3
	txRetryInterval = 20 * time.Millisecond
	dbusTxTimeout   = 1000
)

var sleepFn = time.Sleep

// i2cPort talks to the gauge directly on a local bus.
type i2cPort struct {
	mu     sync.Mutex
	dev    *i2c.Dev
	closer io.Closer
}

func openI2CPort(busName string, address uint16) (*i2cPort, error) {
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, err
	}
	return &i2cPort{
		dev:    &i2c.Dev{Bus: bus, Addr: address},
		closer: bus,
	}, nil
}

func (p *i2cPort) tx(write, read []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	attempts := 0
	for {
		err := p.dev.Tx(write, read)
		if err == nil {
			return nil
		}
		attempts++
		if attempts >= maxTxAttempts {
			return fmt.Errorf("i2c tx failed after %d attempts: %w", attempts, err)
		}
		log.Debugf("I2C tx failed, retrying: %v", err)
		sleepFn(txRetryInterval)
	}
}

func (p *i2cPort) ReadWord(reg gauge.Register) (uint16, error) {
	read := make([]byte, 2)
	if err := p.tx([]byte{byte(reg)}, read); err != nil {
		return 0, err
	}
	return uint16(read[0]) | uint16(read[1])<<8, nil
}

func (p *i2cPort) WriteWord(reg gauge.Register, val uint16) error {
	return p.tx([]byte{byte(reg), byte(val), byte(val >> 8)}, nil)
}

func (p *i2cPort) Close() error {
	return p.closer.Close()
}

// dbusPort shares the bus with the other hat services through the i2c service.
type dbusPort struct {
	address byte
}

func (p *dbusPort) ReadWord(reg gauge.Register) (uint16, error) {
	return i2crequest.ReadWord(p.address, byte(reg), dbusTxTimeout)
}

func (p *dbusPort) WriteWord(reg gauge.Register, val uint16) error {
	return i2crequest.WriteWord(p.address, byte(reg), val, dbusTxTimeout)
}

func (p *dbusPort) Close() error {
	return nil
}

type port interface {
	gauge.RegisterPort
	io.Closer
}

func openPort(conf ServiceConfig) (port, error) {
	if conf.Transport == transportDirect {
		log.Infof("Using I2C bus '%s' directly, address 0x%02x", conf.Bus, conf.Address)
		return openI2CPort(conf.Bus, conf.Address)
	}
	log.Infof("Using the i2c service, address 0x%02x", conf.Address)
	if err := i2crequest.CheckAddress(byte(conf.Address), dbusTxTimeout); err != nil {
		return nil, fmt.Errorf("fuel gauge not found at 0x%02x: %w", conf.Address, err)
	}
	return &dbusPort{address: byte(conf.Address)}, nil
}
