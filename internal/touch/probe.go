package touch

import (
	"errors"
	"strings"
)

// ErrNoTouchDevice is returned when "getevent -p" lists no touchscreen.
var ErrNoTouchDevice = errors.New("touch: no touch-capable input device found")

// Candidate is one input device from "getevent -p".
type Candidate struct {
	Path  string
	Name  string
	Score int
}

var nameScores = []struct {
	token string
	score int
}{
	{"synaptics", 100},
	{"atmel", 90},
	{"goodix", 90},
	{"focaltech", 90},
	{"ilitek", 90},
	{"cypress", 80},
	{"elan", 80},
	{"touch", 50},
	{"screen", 40},
	{"panel", 30},
	{"ts", 20},
	{"button", -50},
	{"key", -30},
	{"jack", -50},
	{"audio", -50},
	{"gpio", -30},
}

// ScoreName rates how likely a device name is to be the touchscreen.
func ScoreName(name string) int {
	lower := strings.ToLower(name)
	score := 0
	for _, ns := range nameScores {
		if strings.Contains(lower, ns.token) {
			score += ns.score
		}
	}
	return score
}

// Candidates parses "getevent -p" output and returns every device that
// reports multi-touch position axes, in listing order.
func Candidates(output string) []Candidate {
	var (
		out      []Candidate
		cur      *Candidate
		hasTouch bool
	)
	flush := func() {
		if cur != nil && hasTouch {
			cur.Score = ScoreName(cur.Name)
			out = append(out, *cur)
		}
	}

	for _, raw := range strings.Split(output, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case strings.HasPrefix(line, "add device") && strings.Contains(line, "/dev/input/event"):
			flush()
			idx := strings.Index(line, "/dev/input/event")
			cur = &Candidate{Path: strings.TrimSpace(line[idx:])}
			hasTouch = false
		case strings.HasPrefix(line, "name:"):
			if cur == nil {
				continue
			}
			first := strings.Index(line, `"`)
			last := strings.LastIndex(line, `"`)
			if first >= 0 && last > first {
				cur.Name = line[first+1 : last]
			}
		case strings.Contains(line, "0035") || strings.Contains(line, "0036") ||
			strings.Contains(line, "ABS_MT_POSITION"):
			hasTouch = true
		}
	}
	flush()
	return out
}

// SelectDevice picks the touchscreen from "getevent -p" output: the
// highest-scoring candidate, or the first one when none scores above zero.
func SelectDevice(output string) (Candidate, error) {
	cands := Candidates(output)
	if len(cands) == 0 {
		return Candidate{}, ErrNoTouchDevice
	}
	best := cands[0]
	for _, c := range cands[1:] {
		if c.Score > best.Score {
			best = c
		}
	}
	return best, nil
}
