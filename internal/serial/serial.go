// internal/serial/serial.go

// Package serial otwiera porty szeregowe opisane w konfiguracji hosta.
package serial

import (
	"fmt"
	"strings"

	apperr "github.com/nonomal/termora-sub000/internal/error"
	"github.com/nonomal/termora-sub000/internal/models"
	"go.bug.st/serial"
)

const (
	DefaultBaudRate = 9600
	DefaultDataBits = 8
)

// ModeFor tłumaczy ustawienia hosta na tryb portu
func ModeFor(comm models.SerialComm) (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: comm.BaudRate,
		DataBits: comm.DataBits,
	}
	if mode.BaudRate <= 0 {
		mode.BaudRate = DefaultBaudRate
	}
	if mode.DataBits <= 0 {
		mode.DataBits = DefaultDataBits
	}
	if mode.DataBits < 5 || mode.DataBits > 8 {
		return nil, apperr.New(apperr.ValidationError, fmt.Sprintf("invalid data bits %d", comm.DataBits), nil)
	}

	switch strings.ToLower(comm.Parity) {
	case "", "none":
		mode.Parity = serial.NoParity
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	case "mark":
		mode.Parity = serial.MarkParity
	case "space":
		mode.Parity = serial.SpaceParity
	default:
		return nil, apperr.New(apperr.ValidationError, fmt.Sprintf("invalid parity %q", comm.Parity), nil)
	}

	switch comm.StopBits {
	case "", "1":
		mode.StopBits = serial.OneStopBit
	case "1.5":
		mode.StopBits = serial.OnePointFiveStopBits
	case "2":
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, apperr.New(apperr.ValidationError, fmt.Sprintf("invalid stop bits %q", comm.StopBits), nil)
	}

	switch strings.ToUpper(comm.FlowControl) {
	case "", "NONE":
	case "RTS_CTS":
		// Biblioteka nie steruje sprzętowym flow control; podnosimy RTS/DTR
		mode.InitialStatusBits = &serial.ModemOutputBits{RTS: true, DTR: true}
	case "XON_XOFF":
		return nil, apperr.New(apperr.ValidationError, "XON/XOFF flow control is not supported", nil)
	default:
		return nil, apperr.New(apperr.ValidationError, fmt.Sprintf("invalid flow control %q", comm.FlowControl), nil)
	}

	return mode, nil
}

// Open otwiera port szeregowy hosta
func Open(comm models.SerialComm) (serial.Port, error) {
	if comm.Port == "" {
		return nil, apperr.New(apperr.ConfigError, "serial port is not configured", nil)
	}
	mode, err := ModeFor(comm)
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(comm.Port, mode)
	if err != nil {
		return nil, apperr.New(apperr.ConnectionError, fmt.Sprintf("Open serial port [%s] failed", comm.Port), err)
	}
	return port, nil
}

// Ports zwraca listę dostępnych portów
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %v", err)
	}
	return ports, nil
}
