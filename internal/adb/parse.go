package adb

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/nerrad567/tapline/internal/device"
)

// ParseDevices parses "adb devices -l" output.
//
// Example input:
//
//	List of devices attached
//	R58M123ABC             device usb:1-1 product:beyond1 model:SM_G973F device:beyond1 transport_id:3
//	emulator-5554          offline transport_id:1
//
// Header lines, daemon start notices and blank lines are skipped.
func ParseDevices(output string) []device.Info {
	var out []device.Info

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "List of devices") || strings.HasPrefix(line, "*") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		info := device.Info{
			Serial: fields[0],
			State:  device.ParseState(fields[1]),
		}
		for _, f := range fields[2:] {
			key, value, ok := strings.Cut(f, ":")
			if !ok {
				continue
			}
			switch key {
			case "model":
				info.Model = value
			case "product":
				info.Product = value
			case "device":
				info.Device = value
			case "transport_id":
				info.TransportID = value
			}
		}
		out = append(out, info)
	}
	return out
}

var sizePattern = regexp.MustCompile(`(Physical|Override) size:\s*(\d+)x(\d+)`)

// ParseScreenSize parses "wm size" output. An override size, when present,
// wins over the physical size because input coordinates follow it.
func ParseScreenSize(output string) (device.Screen, error) {
	var physical, override device.Screen

	for _, m := range sizePattern.FindAllStringSubmatch(output, -1) {
		w, errW := strconv.Atoi(m[2])
		h, errH := strconv.Atoi(m[3])
		if errW != nil || errH != nil {
			continue
		}
		if m[1] == "Override" {
			override = device.Screen{Width: w, Height: h}
		} else {
			physical = device.Screen{Width: w, Height: h}
		}
	}

	switch {
	case override.Valid():
		return override, nil
	case physical.Valid():
		return physical, nil
	default:
		return device.Screen{}, fmt.Errorf("%w: %q", ErrScreenSize, strings.TrimSpace(output))
	}
}

// SelectDevice picks the device to connect to. With a serial, only that
// device matches. Otherwise the first online device wins, falling back to
// the first listed one so an unauthorized device fails its handshake with
// a useful error instead of looking absent.
func SelectDevice(devices []device.Info, serial string) (device.Info, bool) {
	if serial != "" {
		for _, d := range devices {
			if d.Serial == serial {
				return d, true
			}
		}
		return device.Info{}, false
	}

	for _, d := range devices {
		if d.State.Online() {
			return d, true
		}
	}
	for _, d := range devices {
		if d.State != device.StateOffline {
			return d, true
		}
	}
	return device.Info{}, false
}
