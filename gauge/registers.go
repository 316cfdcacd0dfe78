package gauge

// Register is an 8 bit address in the fuel gauge word register space.
type Register uint8

const (
	regDeviceID      Register = 0x00
	regControl       Register = 0x01
	regInterrupt     Register = 0x02
	regInterruptMask Register = 0x04
	regVoltageAlarm  Register = 0x0C
	regTempAlarm     Register = 0x0D
	regSOCAlarm      Register = 0x0E
	regReset         Register = 0x0F
	regOpStatus      Register = 0x10
	regTopOffSOC     Register = 0x12
	regParamCtrl     Register = 0x13
	regParamRunUpd   Register = 0x14
	regCycleConfig   Register = 0x15
	regVITPeriod     Register = 0x1A
	regMixRate       Register = 0x1B
	regMixInitBlank  Register = 0x1C
	regDataVersion   Register = 0x1F
)

// Resistance compensation parameters.
const (
	regRCE0        Register = 0x20
	regDTCD        Register = 0x23
	regAutoRSMan   Register = 0x24
	regRSMixFactor Register = 0x25
	regRSMax       Register = 0x26
	regRSMin       Register = 0x27
	regRSManual    Register = 0x29
	regCapacityMin Register = 0x2A
	regCapacityCap Register = 0x2B
	regCurrentCal  Register = 0x2C
	regMisc        Register = 0x2D
	regIOCVManual  Register = 0x2E
	regIOCVStatus  Register = 0x2F
)

// Calibration words. Each current sense channel has an offset and a slope
// register, first for the algorithm path and then for the duplicate path.
const (
	regVoltageCal    Register = 0x50
	regCurrentOffset Register = 0x51
	regAlgOffset0    Register = 0x54
	regAlgSlope0     Register = 0x57
	regDPOffset0     Register = 0x5A
	regDPSlope0      Register = 0x5D
)

// Measurement registers.
const (
	regSOC         Register = 0x80
	regOCV         Register = 0x81
	regVoltage     Register = 0x82
	regCurrent     Register = 0x83
	regTemperature Register = 0x84
	regCycle       Register = 0x85
)

// IOCV snapshot buffers, six slots each.
const (
	regLBVoltage Register = 0x90
	regCBVoltage Register = 0x96
	regLBCurrent Register = 0xA0
	regCBCurrent Register = 0xA6
)

// Battery tables are 32 registers apart.
const (
	regTableStart   Register = 0xC0
	tableStride              = 0x20
	tableLen                 = 16
	batteryTables            = 2
	currentChannels          = 3
)

const (
	paramUnlockCode = 0x3700
	paramLockCode   = 0x0000

	initMark        = 0xA000
	resetMarkerMask = 0xF000
	softResetCode   = 0x00A6

	initCheckMask = 0x0010
	disableReInit = 0x0010

	busIdle = 0xFFFF
)

// Control register bits.
const (
	ctrlDefault     = 0x2008
	ctrlMixMode     = 1 << 15
	ctrlTempMeasure = 1 << 14
	ctrlTopOffSOC   = 1 << 13
	ctrlManualOCV   = 1 << 11
	ctrlRSManual    = 1 << 10

	// Bits set by the engine rather than taken from the register.
	ctrlForced = ctrlMixMode | ctrlTempMeasure | ctrlTopOffSOC | ctrlManualOCV | ctrlRSManual
)

// Interrupt flag bits.
const (
	intLowSOC     = 1 << 0
	intLowVoltage = 1 << 1
	intLowTemp    = 1 << 2
	intHighTemp   = 1 << 3
)

// Registers returns the addresses worth including in a register dump.
func Registers() []Register {
	regs := []Register{
		regDeviceID, regControl, regInterrupt, regInterruptMask,
		regVoltageAlarm, regTempAlarm, regSOCAlarm, regReset, regOpStatus,
		regTopOffSOC, regParamCtrl, regCycleConfig, regVITPeriod, regMixRate,
		regMixInitBlank, regDataVersion, regDTCD, regAutoRSMan,
		regRSMixFactor, regRSMax, regRSMin, regRSManual, regCapacityMin,
		regCapacityCap, regCurrentCal, regMisc, regIOCVManual, regIOCVStatus,
		regVoltageCal, regCurrentOffset,
		regSOC, regOCV, regVoltage, regCurrent, regTemperature, regCycle,
	}
	for i := Register(0); i < currentChannels; i++ {
		regs = append(regs, regRCE0+i, regAlgOffset0+i, regAlgSlope0+i, regDPOffset0+i, regDPSlope0+i)
	}
	return regs
}
