package fuelgauge

import (
	"encoding/json"
	"fmt"

	"github.com/TheCacophonyProject/tc2-fuel-gauge/gauge"
)

// readOnce initialises the gauge and prints a single reading.
func readOnce(conf *config) error {
	p, err := openPort(conf.Service)
	if err != nil {
		return err
	}
	defer p.Close()

	engine := gauge.NewEngine(p, log)
	if err := engine.Init(&conf.Gauge); err != nil {
		return err
	}
	r, err := engine.Poll()
	if err != nil {
		log.Warnf("Reading fuel gauge: %v", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func dumpRegisters(conf *config) error {
	p, err := openPort(conf.Service)
	if err != nil {
		return err
	}
	defer p.Close()

	for _, reg := range gauge.Registers() {
		val, err := p.ReadWord(reg)
		if err != nil {
			fmt.Printf("0x%02x: error: %v\n", uint8(reg), err)
			continue
		}
		fmt.Printf("0x%02x: 0x%04x\n", uint8(reg), val)
	}
	return nil
}

// estimateIOCV runs the initial OCV estimate against the live buffers
// without writing anything to the device.
func estimateIOCV(conf *config) error {
	p, err := openPort(conf.Service)
	if err != nil {
		return err
	}
	defer p.Close()

	snapshot, err := gauge.ReadIOCVSnapshot(p)
	if err != nil {
		return err
	}
	est, err := gauge.EstimateIOCV(snapshot)
	if err != nil {
		return err
	}
	fmt.Println(est.String())
	return nil
}
