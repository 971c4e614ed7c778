package device

import "fmt"

// State is the link state adb reports for a device.
type State string

// Device states as printed by "adb devices".
const (
	StateDevice       State = "device"
	StateOffline      State = "offline"
	StateUnauthorized State = "unauthorized"
	StateRecovery     State = "recovery"
	StateSideload     State = "sideload"
	StateBootloader   State = "bootloader"
	StateNoPermission State = "no permissions"
	StateUnknown      State = "unknown"
)

// ParseState maps an adb state column to a State.
func ParseState(s string) State {
	switch State(s) {
	case StateDevice, StateOffline, StateUnauthorized, StateRecovery,
		StateSideload, StateBootloader:
		return State(s)
	}
	if s == "no" {
		// "no permissions (...)" splits on whitespace.
		return StateNoPermission
	}
	return StateUnknown
}

// Online reports whether commands can be sent in this state.
func (s State) Online() bool {
	return s == StateDevice
}

// Info identifies one device.
type Info struct {
	Serial      string `json:"serial"`
	State       State  `json:"state"`
	Model       string `json:"model,omitempty"`
	Product     string `json:"product,omitempty"`
	Device      string `json:"device,omitempty"`
	TransportID string `json:"transport_id,omitempty"`
	Screen      Screen `json:"screen"`
}

// Label returns a short human-readable name for status text.
func (i Info) Label() string {
	if i.Model != "" {
		return fmt.Sprintf("%s (%s)", i.Model, i.Serial)
	}
	return i.Serial
}

// Screen is the display size in pixels, in the coordinate space used by
// "input tap".
type Screen struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Valid reports whether both dimensions are positive.
func (s Screen) Valid() bool {
	return s.Width > 0 && s.Height > 0
}

// Contains reports whether (x, y) is on screen. The edge pixel is accepted.
func (s Screen) Contains(x, y int) bool {
	return x >= 0 && y >= 0 && x <= s.Width && y <= s.Height
}

// String formats the size as WIDTHxHEIGHT.
func (s Screen) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}
