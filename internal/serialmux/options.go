package serialmux

import (
	"fmt"
	"strings"
)

// PortOptions describes the serial connection parameters used when opening the
// drive link. cmd/conepilot fills it from the link_* fields of the tuning
// config; zero values select 115200 8N1.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

var parityNames = map[string]string{
	"": "N", "N": "N", "NONE": "N",
	"E": "E", "EVEN": "E",
	"O": "O", "ODD": "O",
}

var parityModes = map[string]Parity{"N": NoParity, "E": EvenParity, "O": OddParity}

// Normalize fills defaults and canonicalises parity to N, E or O.
func (o PortOptions) Normalize() (PortOptions, error) {
	if o.BaudRate <= 0 {
		o.BaudRate = 115200
	}
	if o.DataBits == 0 {
		o.DataBits = 8
	}
	if o.StopBits == 0 {
		o.StopBits = 1
	}
	if o.DataBits < 5 || o.DataBits > 8 {
		return o, fmt.Errorf("invalid data bits %d: must be between 5 and 8", o.DataBits)
	}
	if o.StopBits != 1 && o.StopBits != 2 {
		return o, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", o.StopBits)
	}
	p, ok := parityNames[strings.ToUpper(strings.TrimSpace(o.Parity))]
	if !ok {
		return o, fmt.Errorf("unsupported parity %q: expected N, E, or O", o.Parity)
	}
	o.Parity = p
	return o, nil
}

// PortMode converts the options into the SerialPortMode handed to a
// SerialPortFactory.
func (o PortOptions) PortMode() (*SerialPortMode, error) {
	n, err := o.Normalize()
	if err != nil {
		return nil, err
	}
	mode := &SerialPortMode{
		BaudRate: n.BaudRate,
		DataBits: n.DataBits,
		Parity:   parityModes[n.Parity],
		StopBits: OneStopBit,
	}
	if n.StopBits == 2 {
		mode.StopBits = TwoStopBits
	}
	return mode, nil
}
