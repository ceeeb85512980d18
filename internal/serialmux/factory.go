package serialmux

import (
	"go.bug.st/serial"
)

// RealSerialPortFactory opens hardware ports through go.bug.st/serial.
type RealSerialPortFactory struct{}

// NewRealSerialPortFactory returns a factory for real serial ports.
func NewRealSerialPortFactory() *RealSerialPortFactory {
	return &RealSerialPortFactory{}
}

// Open opens the port at path. A nil mode uses DefaultSerialPortMode.
func (RealSerialPortFactory) Open(path string, mode *SerialPortMode) (SerialPorter, error) {
	if mode == nil {
		mode = DefaultSerialPortMode()
	}
	port, err := serial.Open(path, toSerialMode(mode))
	if err != nil {
		return nil, err
	}
	return port, nil
}

// NewRealSerialMux creates a SerialMux that connects to the real serial port at
// the given path using the provided serial options. The port is not opened
// until Connect is called.
func NewRealSerialMux(path string, opts PortOptions) (*SerialMux, error) {
	mode, err := opts.PortMode()
	if err != nil {
		return nil, err
	}
	return NewSerialMux(NewRealSerialPortFactory(), path, mode), nil
}

func toSerialMode(mode *SerialPortMode) *serial.Mode {
	m := &serial.Mode{
		BaudRate: mode.BaudRate,
		DataBits: mode.DataBits,
		Parity:   convertParity(mode.Parity),
		StopBits: serial.OneStopBit,
	}
	if mode.StopBits == TwoStopBits {
		m.StopBits = serial.TwoStopBits
	}
	return m
}

func convertParity(p Parity) serial.Parity {
	switch p {
	case OddParity:
		return serial.OddParity
	case EvenParity:
		return serial.EvenParity
	default:
		return serial.NoParity
	}
}
