package gauge

import "fmt"

// Capacity calculation flags.
const (
	CapacityScale        uint8 = 1 << 0
	CapacityDynamicScale uint8 = 1 << 1
	CapacityAtomic       uint8 = 1 << 2
	CapacitySkipAbnormal uint8 = 1 << 3
)

// Config is the battery profile programmed into the gauge. It is read from the
// [fuel-gauge] table of the profile file.
type Config struct {
	DataVersion    uint16   `mapstructure:"data-version"`
	DischargeTable []uint16 `mapstructure:"discharge-table"`
	QTable         []uint16 `mapstructure:"q-table"`
	RCE            []uint16 `mapstructure:"rce"`
	DTCD           uint16   `mapstructure:"dtcd"`
	VITPeriod      uint16   `mapstructure:"vit-period"`
	Misc           uint16   `mapstructure:"misc"`
	ControlValue   uint16   `mapstructure:"control-value"`

	Resistance     ResistanceConfig `mapstructure:"resistance"`
	Mix            MixConfig        `mapstructure:"mix"`
	DeviceCapacity DeviceCapacity   `mapstructure:"device-capacity"`
	TopOff         TopOffConfig     `mapstructure:"top-off"`

	VoltageCal    uint16       `mapstructure:"voltage-cal"`
	CurrentOffset uint16       `mapstructure:"current-offset"`
	CurrentSlope  uint16       `mapstructure:"current-slope"`
	Alg           []ChannelCal `mapstructure:"alg"`
	DP            []ChannelCal `mapstructure:"dp"`

	TempStd          int                 `mapstructure:"temp-std"`
	TempCompensation TempCompensation    `mapstructure:"temp-compensation"`
	VOffsetCancel    VOffsetCancelConfig `mapstructure:"v-offset-cancel"`
	Cycle            CycleConfig         `mapstructure:"cycle"`
	AutoRS           []uint16            `mapstructure:"auto-rs"`
	PowerOff         PowerOffConfig      `mapstructure:"power-off"`
	Capacity         CapacityConfig      `mapstructure:"capacity"`
	Alert            AlertConfig         `mapstructure:"alert"`
	Features         Features            `mapstructure:"features"`
}

type ResistanceConfig struct {
	Manual             uint16 `mapstructure:"manual"`
	MixFactorCharge    uint16 `mapstructure:"mix-factor-charge"`
	MixFactorDischarge uint16 `mapstructure:"mix-factor-discharge"`
	Max                uint16 `mapstructure:"max"`
	Min                uint16 `mapstructure:"min"`
	// Discharge current (mA, negative) below which the charge mix factor is used.
	MixFactorCurrentLimit int `mapstructure:"mix-factor-current-limit"`
}

type MixConfig struct {
	Rate      uint16 `mapstructure:"rate"`
	InitBlank uint16 `mapstructure:"init-blank"`
}

type DeviceCapacity struct {
	Min uint16 `mapstructure:"min"`
	Cap uint16 `mapstructure:"cap"`
}

type TopOffConfig struct {
	SOC     uint16 `mapstructure:"soc"`
	Enable  bool   `mapstructure:"enable"`
	Current int    `mapstructure:"current"`
}

// ChannelCal is the offset and slope word for one current sense channel.
type ChannelCal struct {
	Offset uint16 `mapstructure:"offset"`
	Slope  uint16 `mapstructure:"slope"`
}

// Coefficient is a temperature compensation term: (gap / Denom) * Factor.
type Coefficient struct {
	Enabled bool `mapstructure:"enabled"`
	Denom   int  `mapstructure:"denom"`
	Factor  int  `mapstructure:"factor"`
}

func (c Coefficient) delta(gap int) int {
	if !c.Enabled || c.Denom == 0 {
		return 0
	}
	return gap / c.Denom * c.Factor
}

// SlopeCoefficient holds separate terms for the positive and negative gain bytes.
type SlopeCoefficient struct {
	Positive Coefficient `mapstructure:"positive"`
	Negative Coefficient `mapstructure:"negative"`
}

type TempCompensation struct {
	VoltageSlope   Coefficient      `mapstructure:"voltage-slope"`
	OffsetHigh     Coefficient      `mapstructure:"offset-high"`
	OffsetLow      Coefficient      `mapstructure:"offset-low"`
	DieSlopeHigh   SlopeCoefficient `mapstructure:"die-slope-high"`
	DieSlopeLow    SlopeCoefficient `mapstructure:"die-slope-low"`
	BoardSlopeHigh SlopeCoefficient `mapstructure:"board-slope-high"`
	BoardSlopeLow  SlopeCoefficient `mapstructure:"board-slope-low"`
}

type VOffsetCancelConfig struct {
	EnableCharging    bool `mapstructure:"enable-charging"`
	EnableDischarging bool `mapstructure:"enable-discharging"`
	// Current magnitude (mA) that must be exceeded before cancelling.
	Level int `mapstructure:"level"`
	MOhm  int `mapstructure:"mohm"`
}

type CycleConfig struct {
	HighLimit    uint16 `mapstructure:"high-limit"`
	LowLimit     uint16 `mapstructure:"low-limit"`
	LimitControl uint16 `mapstructure:"limit-control"`
}

// word packs the cycle configuration register.
func (c CycleConfig) word() uint16 {
	return (c.HighLimit&0x0F)<<12 | (c.LowLimit&0x0F)<<8 | c.LimitControl&0xFF
}

// PowerOffLevel is a voltage threshold (mV) and the extra margin below it at
// which the manual resistance is halved.
type PowerOffLevel struct {
	Threshold int `mapstructure:"threshold"`
	Offset    int `mapstructure:"offset"`
}

type PowerOffConfig struct {
	Normal PowerOffLevel `mapstructure:"normal"`
	Low    PowerOffLevel `mapstructure:"low"`
}

type CapacityConfig struct {
	CalculationType uint8 `mapstructure:"calculation-type"`
	Min             int   `mapstructure:"min"`
	Max             int   `mapstructure:"max"`
	MaxMargin       int   `mapstructure:"max-margin"`
}

type AlertConfig struct {
	VoltageMV     int    `mapstructure:"voltage"`
	SOC           int    `mapstructure:"soc"`
	TempHigh      int    `mapstructure:"temp-high"`
	TempLow       int    `mapstructure:"temp-low"`
	InterruptMask uint16 `mapstructure:"interrupt-mask"`
	// RecoveryMV is the voltage at which a software v-empty starts recovering.
	RecoveryMV int `mapstructure:"recovery-voltage"`
	// UseHardwareVEmpty leaves v-empty handling to the device.
	UseHardwareVEmpty bool `mapstructure:"use-hardware-v-empty"`
}

// Features toggles behaviour that differs between board revisions.
type Features struct {
	FullOffsetAdaptation     bool `mapstructure:"full-offset-adaptation"`
	LegacyDischargeSignCheck bool `mapstructure:"legacy-discharge-sign-check"`
}

// DefaultConfig returns the settings that don't depend on the cell. The
// tables, RCE and calibration words must come from the battery profile.
func DefaultConfig() Config {
	return Config{
		DataVersion: 1,
		Resistance: ResistanceConfig{
			MixFactorCurrentLimit: -2000,
		},
		TopOff: TopOffConfig{
			Current: 300,
		},
		TempStd: 25,
		PowerOff: PowerOffConfig{
			Normal: PowerOffLevel{Threshold: 3400, Offset: 50},
			Low:    PowerOffLevel{Threshold: 3300, Offset: 50},
		},
		Capacity: CapacityConfig{
			Min:       0,
			Max:       1000,
			MaxMargin: 30,
		},
		Alert: AlertConfig{
			VoltageMV:  3400,
			SOC:        1,
			TempHigh:   600,
			TempLow:    -200,
			RecoveryMV: 3480,
		},
	}
}

// Validate reports the first missing or malformed field.
func (c *Config) Validate() error {
	missing := func(field string) error {
		return fmt.Errorf("%w: %s", ErrConfigMissing, field)
	}
	switch {
	case len(c.DischargeTable) != tableLen+1:
		return missing(fmt.Sprintf("discharge-table needs %d entries, has %d", tableLen+1, len(c.DischargeTable)))
	case len(c.QTable) != tableLen+1:
		return missing(fmt.Sprintf("q-table needs %d entries, has %d", tableLen+1, len(c.QTable)))
	case len(c.RCE) != 3:
		return missing("rce")
	case len(c.Alg) != currentChannels:
		return missing("alg")
	case len(c.DP) != currentChannels:
		return missing("dp")
	case len(c.AutoRS) != 4:
		return missing("auto-rs")
	case c.Resistance.Manual == 0:
		return missing("resistance.manual")
	case c.Capacity.Max <= c.Capacity.Min:
		return missing("capacity.max")
	case (c.VOffsetCancel.EnableCharging || c.VOffsetCancel.EnableDischarging) && c.VOffsetCancel.MOhm <= 0:
		return missing("v-offset-cancel.mohm")
	}
	return nil
}

// autoRSWord packs the four auto resistance nibbles, first entry highest.
func (c *Config) autoRSWord() uint16 {
	var w uint16
	for _, v := range c.AutoRS {
		w = w<<4 | v&0x0F
	}
	return w
}
