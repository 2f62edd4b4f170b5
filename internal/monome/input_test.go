package monome

import (
	"testing"

	"github.com/wrenfield/monome-core/internal/osc"
)

func TestParseInput(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		msg    osc.Message
		want   InputEvent
		wantOK bool
	}{
		{
			name:   "grid key press",
			prefix: "/monome",
			msg:    osc.NewMessage("/monome/grid/key", osc.Int32(3), osc.Int32(5), osc.Int32(1)),
			want:   InputEvent{Type: InputKey, X: 3, Y: 5, State: 1},
			wantOK: true,
		},
		{
			name:   "grid key release",
			prefix: "/monome",
			msg:    osc.NewMessage("/monome/grid/key", osc.Int32(3), osc.Int32(5), osc.Int32(0)),
			want:   InputEvent{Type: InputKey, X: 3, Y: 5},
			wantOK: true,
		},
		{
			name:   "encoder delta negative",
			prefix: "/monome",
			msg:    osc.NewMessage("/monome/enc/delta", osc.Int32(2), osc.Int32(-7)),
			want:   InputEvent{Type: InputEncoderDelta, Encoder: 2, Delta: -7},
			wantOK: true,
		},
		{
			name:   "encoder key",
			prefix: "/monome",
			msg:    osc.NewMessage("/monome/enc/key", osc.Int32(1), osc.Int32(1)),
			want:   InputEvent{Type: InputEncoderKey, Encoder: 1, State: 1},
			wantOK: true,
		},
		{
			name:   "tilt",
			prefix: "/monome",
			msg:    osc.NewMessage("/monome/tilt", osc.Int32(0), osc.Int32(12), osc.Int32(-34), osc.Int32(56)),
			want:   InputEvent{Type: InputTilt, TiltX: 12, TiltY: -34, TiltZ: 56},
			wantOK: true,
		},
		{
			name:   "custom prefix",
			prefix: "/seq",
			msg:    osc.NewMessage("/seq/grid/key", osc.Int32(0), osc.Int32(0), osc.Int32(1)),
			want:   InputEvent{Type: InputKey, State: 1},
			wantOK: true,
		},
		{
			name:   "prefix without leading slash is normalized",
			prefix: "seq",
			msg:    osc.NewMessage("/seq/enc/delta", osc.Int32(0), osc.Int32(3)),
			want:   InputEvent{Type: InputEncoderDelta, Delta: 3},
			wantOK: true,
		},
		{
			name:   "wrong prefix",
			prefix: "/monome",
			msg:    osc.NewMessage("/other/grid/key", osc.Int32(0), osc.Int32(0), osc.Int32(1)),
			wantOK: false,
		},
		{
			name:   "system address",
			prefix: "/monome",
			msg:    osc.NewMessage("/sys/port", osc.Int32(9000)),
			wantOK: false,
		},
		{
			name:   "led output address is not input",
			prefix: "/monome",
			msg:    osc.NewMessage("/monome/grid/led/set", osc.Int32(0), osc.Int32(0), osc.Int32(1)),
			wantOK: false,
		},
		{
			name:   "key with missing argument",
			prefix: "/monome",
			msg:    osc.NewMessage("/monome/grid/key", osc.Int32(3), osc.Int32(5)),
			wantOK: false,
		},
		{
			name:   "key with extra argument",
			prefix: "/monome",
			msg:    osc.NewMessage("/monome/grid/key", osc.Int32(3), osc.Int32(5), osc.Int32(1), osc.Int32(9)),
			wantOK: false,
		},
		{
			name:   "key with string argument",
			prefix: "/monome",
			msg:    osc.NewMessage("/monome/grid/key", osc.String("3"), osc.Int32(5), osc.Int32(1)),
			wantOK: false,
		},
		{
			name:   "delta with float argument",
			prefix: "/monome",
			msg:    osc.NewMessage("/monome/enc/delta", osc.Int32(0), osc.Float32(1.5)),
			wantOK: false,
		},
		{
			name:   "tilt with missing axis",
			prefix: "/monome",
			msg:    osc.NewMessage("/monome/tilt", osc.Int32(0), osc.Int32(1), osc.Int32(2)),
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseInput(tt.prefix, tt.msg)
			if ok != tt.wantOK {
				t.Fatalf("ParseInput() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("ParseInput() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestInputTypeString(t *testing.T) {
	tests := []struct {
		typ  InputType
		want string
	}{
		{InputKey, "key"},
		{InputEncoderDelta, "delta"},
		{InputEncoderKey, "enc_key"},
		{InputTilt, "tilt"},
		{InputType(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.want {
			t.Errorf("InputType(%d).String() = %q, want %q", tt.typ, got, tt.want)
		}
	}
}
