//go:build windows

package bluetooth

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/bluetray/bluetray/internal/device"
	"github.com/bluetray/bluetray/internal/infrastructure/config"
)

var (
	modBluetoothAPIs = windows.NewLazySystemDLL("BluetoothApis.dll")

	procFindFirstRadio  = modBluetoothAPIs.NewProc("BluetoothFindFirstRadio")
	procFindRadioClose  = modBluetoothAPIs.NewProc("BluetoothFindRadioClose")
	procFindFirstDevice = modBluetoothAPIs.NewProc("BluetoothFindFirstDevice")
	procFindNextDevice  = modBluetoothAPIs.NewProc("BluetoothFindNextDevice")
	procFindDeviceClose = modBluetoothAPIs.NewProc("BluetoothFindDeviceClose")
	procGetDeviceInfo   = modBluetoothAPIs.NewProc("BluetoothGetDeviceInfo")
	procSetServiceState = modBluetoothAPIs.NewProc("BluetoothSetServiceState")
)

const (
	serviceDisable = 0x00
	serviceEnable  = 0x01

	// connectionCheckInterval is how often the connected flag is re-read
	// while waiting for the stack to finish an operation.
	connectionCheckInterval = 250 * time.Millisecond
)

// Audio sink, handsfree and headset profiles cover the headphones and
// speakers most users toggle from the tray.
var defaultServices = []string{
	"{0000110B-0000-1000-8000-00805F9B34FB}", // AudioSink
	"{0000111E-0000-1000-8000-00805F9B34FB}", // Handsfree
	"{00001108-0000-1000-8000-00805F9B34FB}", // Headset
}

// BLUETOOTH_FIND_RADIO_PARAMS
type findRadioParams struct {
	size uint32
}

// BLUETOOTH_DEVICE_SEARCH_PARAMS
type deviceSearchParams struct {
	size                uint32
	returnAuthenticated int32
	returnRemembered    int32
	returnUnknown       int32
	returnConnected     int32
	issueInquiry        int32
	timeoutMultiplier   uint8
	radio               windows.Handle
}

// BLUETOOTH_DEVICE_INFO
type deviceInfo struct {
	size          uint32
	_             uint32 // BLUETOOTH_ADDRESS is 8-byte aligned
	address       uint64
	classOfDevice uint32
	connected     int32
	remembered    int32
	authenticated int32
	lastSeen      windows.Systemtime
	lastUsed      windows.Systemtime
	name          [248]uint16
}

// windowsGateway drives the classic Bluetooth stack through
// BluetoothApis.dll. Connection is established by enabling the device's
// audio/handsfree service, and torn down by disabling it.
type windowsGateway struct {
	radio    windows.Handle
	services []windows.GUID
	poller   *Poller
	cancel   context.CancelFunc
	done     chan struct{}
	logger   Logger
}

func openWindows(ctx context.Context, cfg config.BluetoothConfig, logger Logger) (Gateway, error) {
	if err := modBluetoothAPIs.Load(); err != nil {
		return nil, fmt.Errorf("%w: loading BluetoothApis.dll: %v", ErrBluetoothUnavailable, err)
	}

	radio, err := findFirstRadio()
	if err != nil {
		return nil, err
	}

	names := cfg.Services
	if len(names) == 0 {
		names = defaultServices
	}
	services := make([]windows.GUID, 0, len(names))
	for _, name := range names {
		guid, err := windows.GUIDFromString(name)
		if err != nil {
			windows.CloseHandle(radio) //nolint:errcheck // already returning an error
			return nil, fmt.Errorf("parsing service GUID %q: %w", name, err)
		}
		services = append(services, guid)
	}

	g := &windowsGateway{
		radio:    radio,
		services: services,
		done:     make(chan struct{}),
		logger:   logger,
	}

	g.poller = NewPoller(g.ListPairedDevices, cfg.PollInterval)
	g.poller.SetLogger(logger)

	initial, err := g.ListPairedDevices(ctx)
	if err != nil {
		windows.CloseHandle(radio) //nolint:errcheck // already returning an error
		return nil, fmt.Errorf("initial device listing: %w", err)
	}
	g.poller.Seed(initial)

	pollCtx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel
	go func() {
		defer close(g.done)
		g.poller.Run(pollCtx)
	}()

	logger.Info("windows bluetooth gateway opened", "services", len(services), "paired", len(initial))
	return g, nil
}

func findFirstRadio() (windows.Handle, error) {
	params := findRadioParams{size: uint32(unsafe.Sizeof(findRadioParams{}))}
	var radio windows.Handle

	find, _, callErr := procFindFirstRadio.Call(
		uintptr(unsafe.Pointer(&params)),
		uintptr(unsafe.Pointer(&radio)),
	)
	if find == 0 {
		return 0, fmt.Errorf("%w: no bluetooth radio found: %v", ErrBluetoothUnavailable, callErr)
	}
	procFindRadioClose.Call(find) //nolint:errcheck // close of a find handle
	return radio, nil
}

// ListPairedDevices enumerates authenticated or remembered devices.
func (g *windowsGateway) ListPairedDevices(ctx context.Context) ([]device.Device, error) {
	var (
		devices []device.Device
		listErr error
	)
	err := callBlocking(ctx, func() {
		devices, listErr = g.enumerate()
	})
	if err != nil {
		return nil, err
	}
	return devices, listErr
}

func (g *windowsGateway) enumerate() ([]device.Device, error) {
	params := deviceSearchParams{
		size:                uint32(unsafe.Sizeof(deviceSearchParams{})),
		returnAuthenticated: 1,
		returnRemembered:    1,
		returnConnected:     1,
		radio:               g.radio,
	}
	info := deviceInfo{size: uint32(unsafe.Sizeof(deviceInfo{}))}

	find, _, callErr := procFindFirstDevice.Call(
		uintptr(unsafe.Pointer(&params)),
		uintptr(unsafe.Pointer(&info)),
	)
	if find == 0 {
		if errors.Is(callErr, windows.ERROR_NO_MORE_ITEMS) {
			return nil, nil
		}
		return nil, osError("BluetoothFindFirstDevice", callErr)
	}
	defer procFindDeviceClose.Call(find) //nolint:errcheck // close of a find handle

	now := time.Now()
	var devices []device.Device
	for {
		if info.authenticated != 0 || info.remembered != 0 {
			devices = append(devices, info.toDevice(now))
		}

		info = deviceInfo{size: uint32(unsafe.Sizeof(deviceInfo{}))}
		ok, _, _ := procFindNextDevice.Call(find, uintptr(unsafe.Pointer(&info)))
		if ok == 0 {
			break
		}
	}
	return devices, nil
}

func (info *deviceInfo) toDevice(now time.Time) device.Device {
	state := device.Disconnected()
	if info.connected != 0 {
		state = device.Connected()
	}
	return device.Device{
		Address:       device.AddressFromUint64(info.address),
		Name:          windows.UTF16ToString(info.name[:]),
		State:         state,
		LastSeen:      now,
		Class:         info.classOfDevice,
		Authenticated: info.authenticated != 0,
		Remembered:    info.remembered != 0,
		LastUsed:      systemtimeToTime(info.lastUsed),
	}
}

// Connect enables the configured services on the device and waits for
// the stack to report it connected.
func (g *windowsGateway) Connect(ctx context.Context, address device.Address) error {
	return g.setServices(ctx, address, serviceEnable, true)
}

// Disconnect disables the configured services on the device and waits
// for the stack to report it disconnected.
func (g *windowsGateway) Disconnect(ctx context.Context, address device.Address) error {
	return g.setServices(ctx, address, serviceDisable, false)
}

func (g *windowsGateway) setServices(ctx context.Context, address device.Address, flag uintptr, wantConnected bool) error {
	info, err := g.deviceInfo(ctx, address)
	if err != nil {
		return err
	}

	var (
		applied int
		lastErr error
	)
	for i := range g.services {
		guid := g.services[i]
		var ret uintptr
		if err := callBlocking(ctx, func() {
			ret, _, _ = procSetServiceState.Call(
				uintptr(g.radio),
				uintptr(unsafe.Pointer(info)),
				uintptr(unsafe.Pointer(&guid)),
				flag,
			)
		}); err != nil {
			return err
		}

		switch syscall.Errno(ret) {
		case 0:
			applied++
		case windows.ERROR_SERVICE_DOES_NOT_EXIST:
			// Device does not offer this profile.
		default:
			lastErr = osError("BluetoothSetServiceState", syscall.Errno(ret))
			g.logger.Debug("service state change failed", "address", address, "service", guid.String(), "error", lastErr)
		}
	}

	if applied == 0 {
		if lastErr != nil {
			return lastErr
		}
		return &OSError{Op: "BluetoothSetServiceState", Reason: "no supported audio profile"}
	}

	return g.waitConnected(ctx, address, wantConnected)
}

func (g *windowsGateway) deviceInfo(ctx context.Context, address device.Address) (*deviceInfo, error) {
	info := &deviceInfo{
		size:    uint32(unsafe.Sizeof(deviceInfo{})),
		address: address.Uint64(),
	}
	var ret uintptr
	if err := callBlocking(ctx, func() {
		ret, _, _ = procGetDeviceInfo.Call(uintptr(g.radio), uintptr(unsafe.Pointer(info)))
	}); err != nil {
		return nil, err
	}
	if ret != 0 {
		return nil, osError("BluetoothGetDeviceInfo", syscall.Errno(ret))
	}
	return info, nil
}

func (g *windowsGateway) waitConnected(ctx context.Context, address device.Address, want bool) error {
	ticker := time.NewTicker(connectionCheckInterval)
	defer ticker.Stop()

	for {
		info, err := g.deviceInfo(ctx, address)
		if err != nil {
			return err
		}
		if (info.connected != 0) == want {
			return nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ErrTimeout
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Events returns poll-derived out-of-band events.
func (g *windowsGateway) Events() <-chan Event {
	return g.poller.Events()
}

// Close stops polling and releases the radio handle.
func (g *windowsGateway) Close() error {
	g.cancel()
	<-g.done
	if err := windows.CloseHandle(g.radio); err != nil {
		return fmt.Errorf("closing radio handle: %w", err)
	}
	return nil
}

// callBlocking runs a blocking OS call while honouring ctx. If ctx ends
// first the call is abandoned and finishes in the background.
func callBlocking(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ctx.Err()
	}
}

func osError(op string, err error) error {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return &OSError{Op: op, Reason: err.Error()}
	}

	e := &OSError{Op: op, Code: uint32(errno)}
	switch errno {
	case windows.ERROR_NOT_FOUND:
		e.Reason, e.Err = "device not paired", ErrDeviceNotPaired
	case windows.ERROR_GEN_FAILURE, windows.ERROR_DEVICE_NOT_CONNECTED:
		e.Reason, e.Err = "device unreachable", ErrDeviceUnreachable
	case windows.ERROR_TIMEOUT, windows.ERROR_SEM_TIMEOUT:
		e.Reason, e.Err = "timeout", ErrTimeout
	case windows.ERROR_INVALID_PARAMETER:
		e.Reason = "invalid request"
	default:
		e.Reason = errno.Error()
	}
	return e
}

func systemtimeToTime(st windows.Systemtime) time.Time {
	if st.Year == 0 {
		return time.Time{}
	}
	return time.Date(int(st.Year), time.Month(st.Month), int(st.Day),
		int(st.Hour), int(st.Minute), int(st.Second), int(st.Milliseconds)*int(time.Millisecond), time.UTC)
}
