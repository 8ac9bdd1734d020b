package hardware

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"
	"unsafe"

	"github.com/warthog618/go-gpiocdev"
	"golang.org/x/sys/unix"

	"show-controller/internal/config"
	"show-controller/internal/logger"
)

type InputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

// size of struct input_event on this platform
var inputEventSize = int(unsafe.Sizeof(unix.Timeval{})) + 8

type InputCallback func(channel string, value bool) error

// OutputMapping locates a GPIO output line.
type OutputMapping struct {
	Chip int
	Line int
}

type LinuxHardwareIO struct {
	logger          *logger.Logger
	inputDevicePath string
	inputFile       *os.File
	inputKeys       map[uint16]string
	outputs         map[string]OutputMapping
	chips           map[int]*gpiocdev.Chip
	lines           map[string]*gpiocdev.Line
	inputCallbacks  map[string]InputCallback
	mu              sync.RWMutex
	stopChan        chan struct{}
	activeKeys      map[uint16]bool
}

func NewLinuxHardwareIO(cfg config.HardwareConfig, l *logger.Logger) *LinuxHardwareIO {
	return &LinuxHardwareIO{
		logger:          l.WithTag("io"),
		inputDevicePath: cfg.InputDevice,
		inputKeys:       map[uint16]string{uint16(cfg.AbortKey): ChannelAbortSwitch},
		outputs: map[string]OutputMapping{
			ChannelStatus: {Chip: cfg.StatusChip, Line: cfg.StatusLine},
		},
		chips:          make(map[int]*gpiocdev.Chip),
		lines:          make(map[string]*gpiocdev.Line),
		inputCallbacks: make(map[string]InputCallback),
		stopChan:       make(chan struct{}),
		activeKeys:     make(map[uint16]bool),
	}
}

func (io *LinuxHardwareIO) Initialize() error {
	io.logger.Infof("Initializing hardware IO")

	for name, mapping := range io.outputs {
		chip, ok := io.chips[mapping.Chip]
		if !ok {
			var err error
			chip, err = gpiocdev.NewChip(fmt.Sprintf("gpiochip%d", mapping.Chip))
			if err != nil {
				return fmt.Errorf("failed to open GPIO chip %d: %w", mapping.Chip, err)
			}
			io.chips[mapping.Chip] = chip
		}

		line, err := chip.RequestLine(mapping.Line,
			gpiocdev.AsOutput(0),
			gpiocdev.WithConsumer(consumer))
		if err != nil {
			return fmt.Errorf("failed to request GPIO line %d: %w", mapping.Line, err)
		}

		io.lines[name] = line
		io.logger.Infof("Configured DO %s: chip=%d, line=%d", name, mapping.Chip, mapping.Line)
	}

	io.logger.Infof("Opening input device: %s", io.inputDevicePath)
	var err error
	io.inputFile, err = os.OpenFile(io.inputDevicePath, os.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("failed to open input device %s: %w", io.inputDevicePath, err)
	}

	if err := io.readInitialState(); err != nil {
		io.logger.Warnf("Failed to read initial input states: %v", err)
	}

	go io.monitorInputs()

	return nil
}

func (io *LinuxHardwareIO) keyBitmap() ([]byte, error) {
	buffer := make([]byte, keyBitmapSize)
	_, _, errno := unix.Syscall(
		unix.SYS_IOCTL,
		io.inputFile.Fd(),
		uintptr(eviocgkey),
		uintptr(unsafe.Pointer(&buffer[0])),
	)
	if errno != 0 {
		return nil, fmt.Errorf("EVIOCGKEY ioctl failed: %w", errno)
	}
	return buffer, nil
}

func keyPressed(bitmap []byte, code uint16) bool {
	byteOffset := int(code / 8)
	if byteOffset >= len(bitmap) {
		return false
	}
	return bitmap[byteOffset]&(1<<(code%8)) != 0
}

// readInitialState seeds the key states and reports pressed keys to their
// callbacks, so a switch already in the abort position is not missed.
func (io *LinuxHardwareIO) readInitialState() error {
	bitmap, err := io.keyBitmap()
	if err != nil {
		return err
	}

	var pressed []uint16
	io.mu.Lock()
	for code, channel := range io.inputKeys {
		if keyPressed(bitmap, code) {
			io.activeKeys[code] = true
			pressed = append(pressed, code)
			io.logger.Infof("Initial state: %s (code %d) is pressed", channel, code)
		}
	}
	io.mu.Unlock()

	for _, code := range pressed {
		io.handleKeyEvent(&InputEvent{Type: evKey, Code: code, Value: 1})
	}
	return nil
}

func (io *LinuxHardwareIO) monitorInputs() {
	defer io.inputFile.Close()

	buffer := make([]byte, inputEventSize)
	tv := inputEventSize - 8

	for {
		select {
		case <-io.stopChan:
			io.logger.Infof("Stopping input monitoring")
			return
		default:
			n, err := io.inputFile.Read(buffer)
			if err != nil {
				io.logger.Warnf("Error reading input: %v", err)
				time.Sleep(100 * time.Millisecond)
				continue
			}
			if n != len(buffer) {
				io.logger.Warnf("Incomplete read: got %d bytes, expected %d", n, len(buffer))
				continue
			}

			ev := decodeInputEvent(buffer, tv)
			if ev.Type == evKey {
				io.handleKeyEvent(&ev)
			}
		}
	}
}

// decodeInputEvent parses a struct input_event whose timeval occupies the
// first tv bytes.
func decodeInputEvent(b []byte, tv int) InputEvent {
	ev := InputEvent{
		Type:  binary.LittleEndian.Uint16(b[tv : tv+2]),
		Code:  binary.LittleEndian.Uint16(b[tv+2 : tv+4]),
		Value: int32(binary.LittleEndian.Uint32(b[tv+4 : tv+8])),
	}
	if tv == 16 {
		ev.Sec = int64(binary.LittleEndian.Uint64(b[0:8]))
		ev.Usec = int64(binary.LittleEndian.Uint64(b[8:16]))
	} else {
		ev.Sec = int64(int32(binary.LittleEndian.Uint32(b[0:4])))
		ev.Usec = int64(int32(binary.LittleEndian.Uint32(b[4:8])))
	}
	return ev
}

func (io *LinuxHardwareIO) handleKeyEvent(event *InputEvent) {
	// press (1) and release (0) only
	if event.Value > 1 {
		return
	}

	io.mu.Lock()
	channel := io.inputKeys[event.Code]
	if event.Value == 0 {
		delete(io.activeKeys, event.Code)
	} else {
		io.activeKeys[event.Code] = true
	}
	callback, exists := io.inputCallbacks[channel]
	io.mu.Unlock()

	if channel == "" {
		io.logger.Debugf("Unmapped key code: %d", event.Code)
		return
	}
	io.logger.Debugf("Key event: code=%d channel=%q value=%d", event.Code, channel, event.Value)

	if !exists {
		io.logger.Debugf("No callback registered for channel: %s", channel)
		return
	}
	if err := callback(channel, event.Value == 1); err != nil {
		io.logger.Warnf("Error in callback for %s: %v", channel, err)
	}
}

func (io *LinuxHardwareIO) ReadDigitalInput(channel string) (bool, error) {
	io.mu.RLock()
	defer io.mu.RUnlock()

	var keycode uint16
	found := false
	for code, ch := range io.inputKeys {
		if ch == channel {
			keycode, found = code, true
			break
		}
	}
	if !found {
		return false, fmt.Errorf("unknown input channel: %s", channel)
	}

	if io.inputFile != nil {
		if bitmap, err := io.keyBitmap(); err == nil {
			return keyPressed(bitmap, keycode), nil
		}
	}
	return io.activeKeys[keycode], nil
}

func (io *LinuxHardwareIO) RegisterInputCallback(channel string, callback InputCallback) {
	io.mu.Lock()
	defer io.mu.Unlock()
	io.inputCallbacks[channel] = callback
	io.logger.Debugf("Registered callback for channel: %s", channel)
}

func (io *LinuxHardwareIO) WriteDigitalOutput(channel string, value bool) error {
	io.mu.RLock()
	line, ok := io.lines[channel]
	io.mu.RUnlock()

	if !ok {
		return fmt.Errorf("unknown digital output channel: %s", channel)
	}

	val := 0
	if value {
		val = 1
	}
	if err := line.SetValue(val); err != nil {
		return fmt.Errorf("failed to set DO %s=%v: %w", channel, value, err)
	}

	io.logger.Debugf("Set DO %s=%v", channel, value)
	return nil
}

func (io *LinuxHardwareIO) Cleanup() {
	close(io.stopChan)

	io.mu.Lock()
	defer io.mu.Unlock()

	io.logger.Infof("Cleaning up hardware resources")

	if io.inputFile != nil {
		io.inputFile.Close()
	}
	for _, line := range io.lines {
		line.Close()
	}
	for _, chip := range io.chips {
		chip.Close()
	}

	io.logger.Infof("Hardware cleanup complete")
}
