package cap

import (
	"reflect"
	"testing"

	"github.com/jacobsoderblom/krypin/internal/model"
)

func TestParseSwitchCommandLenient(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		want SwitchCommand
	}{
		{"value object", map[string]any{"action": "set", "value": map[string]any{"on": true}}, SwitchCommand{Kind: SwitchSet, On: true}},
		{"top-level on", map[string]any{"on": false}, SwitchCommand{Kind: SwitchSet, On: false}},
		{"bare boolean value", map[string]any{"value": true}, SwitchCommand{Kind: SwitchSet, On: true}},
		{"toggle", map[string]any{"action": "toggle"}, SwitchCommand{Kind: SwitchToggle}},
		{"missing action defaults to set", map[string]any{"value": map[string]any{"on": true}}, SwitchCommand{Kind: SwitchSet, On: true}},
	}
	for _, tt := range tests {
		cmd, err := ParseSwitchCommand(tt.raw)
		if err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		if cmd != tt.want {
			t.Errorf("%s: got %+v, want %+v", tt.name, cmd, tt.want)
		}
	}

	if _, err := ParseSwitchCommand(map[string]any{"value": map[string]any{}}); err == nil {
		t.Error("expected error for empty payload")
	}
}

func TestSwitchCommandRoundTrip(t *testing.T) {
	for _, c := range []SwitchCommand{
		{Kind: SwitchSet, On: true},
		{Kind: SwitchSet, On: false},
		{Kind: SwitchToggle},
	} {
		back, err := ParseSwitchCommand(envelopeToRaw(t, c.Envelope()))
		if err != nil {
			t.Errorf("%v: parse(serialize): %v", c.Kind, err)
			continue
		}
		if back != c {
			t.Errorf("%v: round trip got %+v, want %+v", c.Kind, back, c)
		}
	}
}

func TestSwitchValidate(t *testing.T) {
	d := SwitchDescription{Features: SwitchOnOff}
	if err := d.Validate(SwitchCommand{Kind: SwitchSet, On: true}); err != nil {
		t.Errorf("Set on ONOFF switch: %v", err)
	}
	if err := d.Validate(SwitchCommand{Kind: SwitchToggle}); err == nil {
		t.Error("Toggle accepted without TOGGLE feature")
	}
}

func TestSwitchDescriptionFromEntity(t *testing.T) {
	e := &model.Entity{
		ID:         model.NewEntityID(),
		Domain:     model.DomainSwitch,
		Attributes: map[string]any{"toggle": true, "power_meter": true},
	}
	d, err := SwitchDescriptionFromEntity(e)
	if err != nil {
		t.Fatalf("SwitchDescriptionFromEntity: %v", err)
	}
	want := SwitchOnOff | SwitchToggleable | SwitchPowerMeter
	if d.Features != want {
		t.Errorf("features = %b, want %b", d.Features, want)
	}

	if _, err := SwitchDescriptionFromEntity(&model.Entity{Domain: model.DomainLight}); err == nil {
		t.Error("expected error for wrong domain")
	}
}

func TestSwitchStateFrom(t *testing.T) {
	st := SwitchStateFrom("On", map[string]any{"power_w": 4.5})
	if !st.On {
		t.Error("string On not lifted")
	}
	if st.PowerW == nil || *st.PowerW != 4.5 {
		t.Errorf("power = %v", st.PowerW)
	}

	st = SwitchStateFrom(false, nil)
	if st.On || st.PowerW != nil {
		t.Errorf("got %+v", st)
	}

	want := SwitchState{On: true}
	if got := SwitchStateFrom(true, map[string]any{}); !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v", got)
	}
}
