package cap

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/jacobsoderblom/krypin/internal/contract"
	"github.com/jacobsoderblom/krypin/internal/model"
)

// envelopeToRaw renders a canonical envelope the way it arrives off
// the wire: through JSON.
func envelopeToRaw(t *testing.T, cs contract.CommandSet) map[string]any {
	t.Helper()
	b, err := json.Marshal(cs)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	return raw
}

func u32(v uint32) *uint32 { return &v }

func TestParseLightCommandBrightness(t *testing.T) {
	raw := map[string]any{
		"action": "set",
		"value":  map[string]any{"brightness": float64(80), "transition_ms": float64(500)},
	}
	cmd, err := ParseLightCommand(raw)
	if err != nil {
		t.Fatalf("ParseLightCommand: %v", err)
	}
	want := LightCommand{Kind: LightSetBrightness, Level: 80, TransitionMS: u32(500)}
	if !reflect.DeepEqual(cmd, want) {
		t.Errorf("got %+v, want %+v", cmd, want)
	}
}

func TestParseLightCommandLenient(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		want LightCommand
	}{
		{
			"missing action defaults to set",
			map[string]any{"value": map[string]any{"on": true}},
			LightCommand{Kind: LightSetPower, On: true},
		},
		{
			"bare boolean value",
			map[string]any{"action": "set", "value": false},
			LightCommand{Kind: LightSetPower, On: false},
		},
		{
			"top-level fields",
			map[string]any{"brightness": float64(40)},
			LightCommand{Kind: LightSetBrightness, Level: 40},
		},
		{
			"brightness clamped to 100",
			map[string]any{"value": map[string]any{"brightness": float64(250)}},
			LightCommand{Kind: LightSetBrightness, Level: 100},
		},
		{
			"toggle ignores value",
			map[string]any{"action": "toggle", "value": map[string]any{"on": true}},
			LightCommand{Kind: LightToggle},
		},
		{
			"mireds",
			map[string]any{"value": map[string]any{"mireds": float64(300)}},
			LightCommand{Kind: LightSetColorTemp, Mireds: 300},
		},
		{
			"rgb list",
			map[string]any{"value": map[string]any{"rgb": []any{float64(10), float64(20), float64(30)}}},
			LightCommand{Kind: LightSetRGB, RGB: RGB{10, 20, 30}},
		},
	}
	for _, tt := range tests {
		cmd, err := ParseLightCommand(tt.raw)
		if err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		if !reflect.DeepEqual(cmd, tt.want) {
			t.Errorf("%s: got %+v, want %+v", tt.name, cmd, tt.want)
		}
	}
}

func TestParseLightCommandRejectsGarbage(t *testing.T) {
	if _, err := ParseLightCommand(map[string]any{"value": map[string]any{"frobnicate": true}}); err == nil {
		t.Error("expected error for unrecognized payload")
	}
}

func TestLightCommandRoundTrip(t *testing.T) {
	commands := []LightCommand{
		{Kind: LightSetPower, On: true},
		{Kind: LightSetPower, On: false},
		{Kind: LightToggle},
		{Kind: LightSetBrightness, Level: 80, TransitionMS: u32(500)},
		{Kind: LightSetBrightness, Level: 0},
		{Kind: LightSetColorTemp, Mireds: 370, TransitionMS: u32(250)},
		{Kind: LightSetRGB, RGB: RGB{255, 0, 128}},
	}
	for _, c := range commands {
		raw := envelopeToRaw(t, c.Envelope())
		back, err := ParseLightCommand(raw)
		if err != nil {
			t.Errorf("%v: parse(serialize): %v", c.Kind, err)
			continue
		}
		if !reflect.DeepEqual(back, c) {
			t.Errorf("%v: round trip got %+v, want %+v", c.Kind, back, c)
		}
	}
}

func TestLightValidateFeatureBits(t *testing.T) {
	d := LightDescription{Features: LightOnOff}
	if err := d.Validate(LightCommand{Kind: LightSetPower, On: true}); err != nil {
		t.Errorf("SetPower on ONOFF light: %v", err)
	}
	if err := d.Validate(LightCommand{Kind: LightSetBrightness, Level: 50}); err == nil {
		t.Error("SetBrightness accepted without DIMMABLE")
	}
	if err := d.Validate(LightCommand{Kind: LightSetRGB}); err == nil {
		t.Error("SetRgb accepted without RGB")
	}
}

func TestLightValidateMiredsBounds(t *testing.T) {
	d := LightDescription{Features: LightOnOff | LightColorTemp, MinMireds: 153, MaxMireds: 500}
	if err := d.Validate(LightCommand{Kind: LightSetColorTemp, Mireds: 300}); err != nil {
		t.Errorf("in-bounds mireds: %v", err)
	}
	if err := d.Validate(LightCommand{Kind: LightSetColorTemp, Mireds: 100}); err == nil {
		t.Error("below-minimum mireds accepted")
	}
	if err := d.Validate(LightCommand{Kind: LightSetColorTemp, Mireds: 600}); err == nil {
		t.Error("above-maximum mireds accepted")
	}
}

func TestLightDescriptionFromEntity(t *testing.T) {
	e := &model.Entity{
		ID:     model.NewEntityID(),
		Domain: model.DomainLight,
		Attributes: map[string]any{
			"features":   float64(LightOnOff | LightDimmable | LightColorTemp),
			"min_mireds": float64(153),
			"max_mireds": float64(500),
		},
	}
	d, err := LightDescriptionFromEntity(e)
	if err != nil {
		t.Fatalf("LightDescriptionFromEntity: %v", err)
	}
	if !d.Features.Has(LightDimmable) || d.Features.Has(LightRGB) {
		t.Errorf("features = %b", d.Features)
	}
	if d.MinMireds != 153 || d.MaxMireds != 500 {
		t.Errorf("bounds = %d..%d", d.MinMireds, d.MaxMireds)
	}
}

func TestLightDescriptionFromEntityBooleanFlags(t *testing.T) {
	e := &model.Entity{
		ID:         model.NewEntityID(),
		Domain:     model.DomainLight,
		Attributes: map[string]any{"dimmable": true, "rgb": true},
	}
	d, err := LightDescriptionFromEntity(e)
	if err != nil {
		t.Fatalf("LightDescriptionFromEntity: %v", err)
	}
	want := LightOnOff | LightDimmable | LightRGB
	if d.Features != want {
		t.Errorf("features = %b, want %b", d.Features, want)
	}
}

func TestLightStateFrom(t *testing.T) {
	st := LightStateFrom("ON", map[string]any{"brightness": float64(255)})
	if !st.On {
		t.Error("string ON not lifted to on")
	}
	if st.Brightness == nil || *st.Brightness != 100 {
		t.Errorf("8-bit brightness 255 lifted to %v, want 100", st.Brightness)
	}

	st = LightStateFrom(true, map[string]any{"brightness": float64(60), "mireds": float64(320)})
	if st.Brightness == nil || *st.Brightness != 60 {
		t.Errorf("brightness = %v", st.Brightness)
	}
	if st.Color == nil || st.Color.Kind != ColorTemperature || st.Color.Mireds != 320 {
		t.Errorf("color = %+v", st.Color)
	}

	st = LightStateFrom("off", map[string]any{"rgb": []any{float64(1), float64(2), float64(3)}})
	if st.On {
		t.Error("off lifted to on")
	}
	if st.Color == nil || st.Color.Kind != ColorRGB || st.Color.RGB != (RGB{1, 2, 3}) {
		t.Errorf("color = %+v", st.Color)
	}
}
