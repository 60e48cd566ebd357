package protocol

import "testing"

func TestStatusByte(t *testing.T) {
	testCases := []struct {
		status Status
		b      byte
	}{
		{Status{}, 0x00},
		{Status{Full: true}, 0x01},
		{Status{DispatchError: true, State: StateError}, 0x0E},
		{Status{State: StateMoving}, 0x04},
		{Status{State: StateStopped, MemRead: true}, 0x18},
		{Status{Full: true, DispatchError: true, MemRead: true, State: StateError}, 0x1F},
	}

	for _, tc := range testCases {
		if got := tc.status.Byte(); got != tc.b {
			t.Errorf("%v: Byte() = 0x%02X, want 0x%02X", tc.status, got, tc.b)
		}
		if got := DecodeStatus(tc.b); got != tc.status {
			t.Errorf("DecodeStatus(0x%02X) = %+v, want %+v", tc.b, got, tc.status)
		}
	}
}

func TestCommandName(t *testing.T) {
	if CommandName(CmdWrite) != "WRITE" {
		t.Errorf("Expected WRITE, got %s", CommandName(CmdWrite))
	}
	if CommandName(250) != "INVALID" {
		t.Errorf("Expected INVALID, got %s", CommandName(250))
	}
	if ValidCommand(5) {
		t.Error("Command 5 should be invalid")
	}
}
