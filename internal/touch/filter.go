package touch

import "strings"

// touchTokens mark touchscreen events in "getevent -l" output.
var touchTokens = []string{
	"ABS_MT_",
	"BTN_TOUCH",
	"BTN_TOOL_FINGER",
	"ABS_X",
	"ABS_Y",
}

// IsTouchLine reports whether a getevent line is a touchscreen event.
//
// Both labelled (-l) and raw output are understood. Hardware keys
// (KEY_VOLUMEUP, KEY_POWER, ...) and sync reports are not touches.
func IsTouchLine(line string) bool {
	if line == "" {
		return false
	}
	if strings.Contains(line, "EV_KEY") && strings.Contains(line, "KEY_") && !strings.Contains(line, "BTN_") {
		return false
	}
	for _, tok := range touchTokens {
		if strings.Contains(line, tok) {
			return true
		}
	}
	return isRawTouch(line)
}

// isRawTouch matches unlabelled "0003 0035 ..." / "0003 0036 ..." events:
// EV_ABS with ABS_MT_POSITION_X or _Y.
func isRawTouch(line string) bool {
	fields := strings.Fields(line)
	for i := 0; i+1 < len(fields); i++ {
		if fields[i] == "0003" && (fields[i+1] == "0035" || fields[i+1] == "0036") {
			return true
		}
	}
	return false
}
