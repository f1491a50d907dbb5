package board

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"

	"github.com/cjeanneret/joystage/internal/debug"
)

// ValidBaudRates lists the rates accepted in configuration.
var ValidBaudRates = []int{2400, 4800, 9600, 19200, 38400, 57600, 115200}

// ackPollInterval bounds each serial read when an ack deadline is set.
const ackPollInterval = 100 * time.Millisecond

// PortConfig describes the serial link to the board.
type PortConfig struct {
	Path       string
	BaudRate   int
	AckTimeout time.Duration // 0 = wait forever for acks
}

// Open opens a serial device. It's a variable so tests can swap it.
var Open = func(path string, baudRate int, readTimeout time.Duration) (io.ReadWriteCloser, error) {
	port, err := serial.Open(path, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	if readTimeout > 0 {
		if err := port.SetReadTimeout(readTimeout); err != nil {
			_ = port.Close()
			return nil, err
		}
	}
	return port, nil
}

// OpenPort opens the configured tty and returns a Channel over it.
func OpenPort(cfg PortConfig) (*Channel, error) {
	baud := cfg.BaudRate
	if baud <= 0 {
		baud = 9600
	}

	var readTimeout time.Duration
	if cfg.AckTimeout > 0 {
		readTimeout = min(cfg.AckTimeout, ackPollInterval)
	}

	debug.Verbose("Board: opening %s at %d baud (ack timeout %v)", cfg.Path, baud, cfg.AckTimeout)
	port, err := Open(cfg.Path, baud, readTimeout)
	if err != nil {
		return nil, errors.Wrapf(err, "open board port %s", cfg.Path)
	}
	return NewChannel(port, cfg.AckTimeout), nil
}
