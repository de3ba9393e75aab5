package serial

import (
	"testing"

	apperr "github.com/nonomal/termora-sub000/internal/error"
	"github.com/nonomal/termora-sub000/internal/models"
	"go.bug.st/serial"
)

func TestModeFor(t *testing.T) {
	mode, err := ModeFor(models.SerialComm{BaudRate: 115200, DataBits: 7, StopBits: "1.5", Parity: "Even", FlowControl: "RTS_CTS"})
	if err != nil {
		t.Fatal(err)
	}
	if mode.BaudRate != 115200 || mode.DataBits != 7 {
		t.Errorf("mode = %+v", mode)
	}
	if mode.Parity != serial.EvenParity || mode.StopBits != serial.OnePointFiveStopBits {
		t.Errorf("parity/stop bits = %v/%v", mode.Parity, mode.StopBits)
	}
	if mode.InitialStatusBits == nil || !mode.InitialStatusBits.RTS {
		t.Error("RTS not raised for RTS_CTS")
	}
}

func TestModeForDefaults(t *testing.T) {
	mode, err := ModeFor(models.SerialComm{})
	if err != nil {
		t.Fatal(err)
	}
	if mode.BaudRate != DefaultBaudRate || mode.DataBits != DefaultDataBits || mode.Parity != serial.NoParity || mode.StopBits != serial.OneStopBit {
		t.Errorf("defaults = %+v", mode)
	}
}

func TestModeForInvalid(t *testing.T) {
	for _, comm := range []models.SerialComm{
		{Parity: "weird"},
		{StopBits: "3"},
		{DataBits: 9},
		{FlowControl: "XON_XOFF"},
	} {
		if _, err := ModeFor(comm); !apperr.IsType(err, apperr.ValidationError) {
			t.Errorf("ModeFor(%+v) err = %v", comm, err)
		}
	}
}

func TestOpenWithoutPort(t *testing.T) {
	if _, err := Open(models.SerialComm{}); !apperr.IsType(err, apperr.ConfigError) {
		t.Errorf("err = %v", err)
	}
}
