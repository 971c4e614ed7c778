package device

import "testing"

func TestParseState(t *testing.T) {
	tests := []struct {
		in   string
		want State
	}{
		{"device", StateDevice},
		{"offline", StateOffline},
		{"unauthorized", StateUnauthorized},
		{"recovery", StateRecovery},
		{"no", StateNoPermission},
		{"host", StateUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseState(tt.in); got != tt.want {
				t.Errorf("ParseState(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestState_Online(t *testing.T) {
	if !StateDevice.Online() {
		t.Error("StateDevice.Online() = false")
	}
	if StateUnauthorized.Online() {
		t.Error("StateUnauthorized.Online() = true")
	}
}

func TestScreen_Contains(t *testing.T) {
	s := Screen{Width: 1080, Height: 2400}
	tests := []struct {
		name string
		x, y int
		want bool
	}{
		{"origin", 0, 0, true},
		{"centre", 540, 1200, true},
		{"edge", 1080, 2400, true},
		{"past width", 1081, 0, false},
		{"past height", 0, 2401, false},
		{"negative", -1, 5, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Contains(tt.x, tt.y); got != tt.want {
				t.Errorf("Contains(%d, %d) = %v, want %v", tt.x, tt.y, got, tt.want)
			}
		})
	}
	if s.String() != "1080x2400" {
		t.Errorf("String() = %q", s.String())
	}
}

func TestInfo_Label(t *testing.T) {
	if got := (Info{Serial: "abc", Model: "Pixel_7"}).Label(); got != "Pixel_7 (abc)" {
		t.Errorf("Label() = %q", got)
	}
	if got := (Info{Serial: "abc"}).Label(); got != "abc" {
		t.Errorf("Label() = %q", got)
	}
}
