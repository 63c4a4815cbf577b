package cap

import (
	"testing"

	"github.com/jacobsoderblom/krypin/internal/model"
)

func TestParseRobotVacCommand(t *testing.T) {
	tests := []struct {
		raw  map[string]any
		want RobotVacCommand
	}{
		{map[string]any{"action": "start"}, VacCmdStart},
		{map[string]any{"action": "pause"}, VacCmdPause},
		{map[string]any{"action": "stop"}, VacCmdStop},
		{map[string]any{"action": "dock"}, VacCmdDock},
		{map[string]any{"action": "locate"}, VacCmdLocate},
		{map[string]any{"action": "spot_clean"}, VacCmdSpotClean},
		{map[string]any{}, VacCmdStart}, // absent action defaults to start
	}
	for _, tt := range tests {
		cmd, err := ParseRobotVacCommand(tt.raw)
		if err != nil {
			t.Errorf("%v: %v", tt.raw, err)
			continue
		}
		if cmd != tt.want {
			t.Errorf("%v: got %q, want %q", tt.raw, cmd, tt.want)
		}
	}

	if _, err := ParseRobotVacCommand(map[string]any{"action": "fly"}); err == nil {
		t.Error("expected error for unknown action")
	}
}

func TestRobotVacCommandRoundTrip(t *testing.T) {
	for _, c := range []RobotVacCommand{
		VacCmdStart, VacCmdPause, VacCmdStop, VacCmdDock, VacCmdLocate, VacCmdSpotClean,
	} {
		back, err := ParseRobotVacCommand(envelopeToRaw(t, c.Envelope()))
		if err != nil {
			t.Errorf("%v: parse(serialize): %v", c, err)
			continue
		}
		if back != c {
			t.Errorf("round trip got %q, want %q", back, c)
		}
	}
}

func TestRobotVacValidate(t *testing.T) {
	d := RobotVacDescription{Features: VacStart | VacStop | VacDock}
	if err := d.Validate(VacCmdStart); err != nil {
		t.Errorf("Start: %v", err)
	}
	if err := d.Validate(VacCmdLocate); err == nil {
		t.Error("Locate accepted without LOCATE feature")
	}
	if err := d.Validate(VacCmdSpotClean); err == nil {
		t.Error("SpotClean accepted without SPOT feature")
	}
}

func TestRobotVacDescriptionFromEntity(t *testing.T) {
	e := &model.Entity{
		ID:         model.NewEntityID(),
		Domain:     model.DomainRobotVacuum,
		Attributes: map[string]any{"pause": true, "spot_clean": true},
	}
	d, err := RobotVacDescriptionFromEntity(e)
	if err != nil {
		t.Fatalf("RobotVacDescriptionFromEntity: %v", err)
	}
	want := VacStart | VacStop | VacDock | VacPause | VacSpot
	if d.Features != want {
		t.Errorf("features = %b, want %b", d.Features, want)
	}
}

func TestRobotVacStateFrom(t *testing.T) {
	st := RobotVacStateFrom("cleaning", map[string]any{"battery": float64(85), "fan_power": float64(2)})
	if st.Status != VacCleaning {
		t.Errorf("status = %q", st.Status)
	}
	if st.BatteryLevel == nil || *st.BatteryLevel != 85 {
		t.Errorf("battery = %v", st.BatteryLevel)
	}
	if st.FanPower == nil || *st.FanPower != 2 {
		t.Errorf("fan power = %v", st.FanPower)
	}

	if st := RobotVacStateFrom("hovering", nil); st.Status != VacIdle {
		t.Errorf("unknown status lifted to %q, want idle", st.Status)
	}
}
