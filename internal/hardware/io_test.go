package hardware

import (
	"encoding/binary"
	"testing"

	"show-controller/internal/config"
	"show-controller/internal/logger"
)

func TestDecodeInputEvent(t *testing.T) {
	b := make([]byte, 24)
	binary.LittleEndian.PutUint64(b[0:8], 1700000000)
	binary.LittleEndian.PutUint64(b[8:16], 250000)
	binary.LittleEndian.PutUint16(b[16:18], evKey)
	binary.LittleEndian.PutUint16(b[18:20], 30)
	binary.LittleEndian.PutUint32(b[20:24], 1)

	ev := decodeInputEvent(b, 16)
	if ev.Sec != 1700000000 || ev.Usec != 250000 || ev.Type != evKey || ev.Code != 30 || ev.Value != 1 {
		t.Errorf("unexpected event %+v", ev)
	}

	b32 := make([]byte, 16)
	binary.LittleEndian.PutUint32(b32[0:4], 42)
	binary.LittleEndian.PutUint16(b32[8:10], evKey)
	binary.LittleEndian.PutUint16(b32[10:12], 48)
	ev = decodeInputEvent(b32, 8)
	if ev.Sec != 42 || ev.Code != 48 || ev.Value != 0 {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestKeyPressed(t *testing.T) {
	bitmap := make([]byte, keyBitmapSize)
	bitmap[30/8] |= 1 << (30 % 8)

	if !keyPressed(bitmap, 30) {
		t.Error("expected key 30 pressed")
	}
	if keyPressed(bitmap, 31) {
		t.Error("expected key 31 released")
	}
	if keyPressed(bitmap, 2000) {
		t.Error("codes past the bitmap must read as released")
	}
}

func TestHandleKeyEventRoutesAbortSwitch(t *testing.T) {
	cfg := config.Default().Hardware
	io := NewLinuxHardwareIO(cfg, logger.NewLogger(nil, logger.LogLevelNone))

	var got []bool
	io.RegisterInputCallback(ChannelAbortSwitch, func(channel string, value bool) error {
		got = append(got, value)
		return nil
	})

	code := uint16(cfg.AbortKey)
	io.handleKeyEvent(&InputEvent{Type: evKey, Code: code, Value: 1})
	io.handleKeyEvent(&InputEvent{Type: evKey, Code: code, Value: 2}) // autorepeat
	io.handleKeyEvent(&InputEvent{Type: evKey, Code: 99, Value: 1})
	io.handleKeyEvent(&InputEvent{Type: evKey, Code: code, Value: 0})

	if len(got) != 2 || !got[0] || got[1] {
		t.Errorf("unexpected callbacks %v", got)
	}

	pressed, err := io.ReadDigitalInput(ChannelAbortSwitch)
	if err != nil || pressed {
		t.Errorf("expected released from cached state, got %v (%v)", pressed, err)
	}
	if _, err := io.ReadDigitalInput("unknown"); err == nil {
		t.Error("expected an error for an unknown channel")
	}
	if err := io.WriteDigitalOutput("unknown", true); err == nil {
		t.Error("expected an error for an unknown output")
	}
}
