//go:build rp2040

package uartchan

import (
	"machine"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"drivercore-go/errcode"
)

// NewRP2 constructs a channel driver over one of the RP2040 hardware UARTs.
// Pins and baud follow the uartx defaults when zero.
func NewRP2(id string, baud uint32, tx, rx machine.Pin, cfg Config) (*Driver, error) {
	var hw *uartx.UART
	switch id {
	case "uart0":
		hw = uartx.UART0
	case "uart1":
		hw = uartx.UART1
	default:
		return nil, &errcode.E{C: errcode.Error, Op: "uartchan.newrp2", Msg: "unknown uart id " + id}
	}
	_ = hw.Configure(uartx.UARTConfig{
		BaudRate: baud,
		TX:       tx,
		RX:       rx,
	})
	return New(hw, cfg), nil
}
