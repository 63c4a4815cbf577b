package cap

import (
	"fmt"

	"github.com/jacobsoderblom/krypin/internal/contract"
	"github.com/jacobsoderblom/krypin/internal/model"
)

// HvacFeatures is the HVAC capability bitmask.
type HvacFeatures uint32

const (
	HvacOnOff             HvacFeatures = 1 << 0
	HvacTargetTemperature HvacFeatures = 1 << 1
	HvacFanModes          HvacFeatures = 1 << 2
	HvacModes             HvacFeatures = 1 << 3
)

// Has reports whether all bits in f are set.
func (h HvacFeatures) Has(f HvacFeatures) bool { return h&f == f }

// HvacMode is an operating mode.
type HvacMode string

const (
	HvacOff     HvacMode = "off"
	HvacHeat    HvacMode = "heat"
	HvacCool    HvacMode = "cool"
	HvacAuto    HvacMode = "auto"
	HvacDry     HvacMode = "dry"
	HvacFanOnly HvacMode = "fan_only"
)

// ParseHvacMode parses a mode string; empty result means unknown.
func ParseHvacMode(s string) (HvacMode, bool) {
	switch HvacMode(s) {
	case HvacOff, HvacHeat, HvacCool, HvacAuto, HvacDry, HvacFanOnly:
		return HvacMode(s), true
	}
	return "", false
}

// HvacFanMode is a fan speed setting.
type HvacFanMode string

const (
	FanAuto   HvacFanMode = "auto"
	FanLow    HvacFanMode = "low"
	FanMedium HvacFanMode = "medium"
	FanHigh   HvacFanMode = "high"
	FanTurbo  HvacFanMode = "turbo"
	FanQuiet  HvacFanMode = "quiet"
)

// ParseHvacFanMode parses a fan mode string.
func ParseHvacFanMode(s string) (HvacFanMode, bool) {
	switch HvacFanMode(s) {
	case FanAuto, FanLow, FanMedium, FanHigh, FanTurbo, FanQuiet:
		return HvacFanMode(s), true
	}
	return "", false
}

// HvacDescription is the static capability set of a climate entity.
// Nil temperature bounds mean unbounded.
type HvacDescription struct {
	EntityID model.EntityID
	Features HvacFeatures
	MinTemp  *float64
	MaxTemp  *float64
}

// HvacState is the typed runtime status of a climate entity.
type HvacState struct {
	Mode        HvacMode
	TargetTemp  *float64
	AmbientTemp *float64
	FanMode     *HvacFanMode
}

// HvacCommandKind discriminates the HvacCommand variant.
type HvacCommandKind string

const (
	HvacSetMode    HvacCommandKind = "set_mode"
	HvacSetTarget  HvacCommandKind = "set_temperature"
	HvacSetFanMode HvacCommandKind = "set_fan_mode"
)

// HvacCommand is a tagged variant of the climate operations.
type HvacCommand struct {
	Kind       HvacCommandKind
	Mode       HvacMode
	TargetTemp float64
	FanMode    HvacFanMode
}

// Validate rejects commands unsupported by the feature set or outside
// the declared temperature bounds.
func (d HvacDescription) Validate(c HvacCommand) error {
	switch c.Kind {
	case HvacSetMode:
		if !d.Features.Has(HvacModes) {
			return fmt.Errorf("hvac modes: %w", ErrUnsupported)
		}
		if c.Mode == HvacOff && !d.Features.Has(HvacOnOff) {
			return fmt.Errorf("hvac on/off: %w", ErrUnsupported)
		}
	case HvacSetTarget:
		if !d.Features.Has(HvacTargetTemperature) {
			return fmt.Errorf("hvac target temperature: %w", ErrUnsupported)
		}
		if d.MinTemp != nil && c.TargetTemp < *d.MinTemp {
			return fmt.Errorf("temperature below minimum: %w", ErrOutOfRange)
		}
		if d.MaxTemp != nil && c.TargetTemp > *d.MaxTemp {
			return fmt.Errorf("temperature above maximum: %w", ErrOutOfRange)
		}
	case HvacSetFanMode:
		if !d.Features.Has(HvacFanModes) {
			return fmt.Errorf("hvac fan modes: %w", ErrUnsupported)
		}
	default:
		return fmt.Errorf("hvac command %q: %w", c.Kind, ErrUnsupported)
	}
	return nil
}

// HvacDescriptionFromEntity lifts a climate entity's attributes into a
// description.
func HvacDescriptionFromEntity(e *model.Entity) (HvacDescription, error) {
	if e.Domain != model.DomainClimate {
		return HvacDescription{}, fmt.Errorf("entity %s is not a climate entity", e.ID)
	}
	features := HvacOnOff | HvacModes
	if bits, ok := getUint(e.Attributes, "features"); ok {
		features = HvacFeatures(bits)
	} else {
		if b, _ := getBool(e.Attributes, "fan_modes"); b {
			features |= HvacFanModes
		}
		if b, _ := getBool(e.Attributes, "target_temperature"); b {
			features |= HvacTargetTemperature
		}
	}
	d := HvacDescription{EntityID: e.ID, Features: features}
	if t, ok := getFloat(e.Attributes, "min_temp_c"); ok {
		d.MinTemp = &t
	}
	if t, ok := getFloat(e.Attributes, "max_temp_c"); ok {
		d.MaxTemp = &t
	}
	return d, nil
}

// ParseHvacCommand lifts an on-wire command envelope into a typed
// climate command. With an explicit action the matching fields are
// required; the default "set" action infers the command from whichever
// recognized field is present.
func ParseHvacCommand(raw map[string]any) (HvacCommand, error) {
	action, _ := getString(raw, "action")
	args := raw
	if obj, ok := asObject(raw["value"]); ok {
		args = obj
	}

	mode := func() (HvacMode, bool) {
		if s, ok := getString(args, "mode"); ok {
			return ParseHvacMode(s)
		}
		if s, ok := raw["value"].(string); ok {
			return ParseHvacMode(s)
		}
		return "", false
	}
	target := func() (float64, bool) {
		if t, ok := getFloat(args, "target_temperature_c"); ok {
			return t, true
		}
		return getFloat(args, "temperature")
	}
	fan := func() (HvacFanMode, bool) {
		if s, ok := getString(args, "fan_mode"); ok {
			return ParseHvacFanMode(s)
		}
		if s, ok := raw["value"].(string); ok {
			return ParseHvacFanMode(s)
		}
		return "", false
	}

	switch action {
	case "set_mode":
		m, ok := mode()
		if !ok {
			return HvacCommand{}, fmt.Errorf("hvac: missing mode: %w", ErrBadPayload)
		}
		return HvacCommand{Kind: HvacSetMode, Mode: m}, nil
	case "set_temperature":
		t, ok := target()
		if !ok {
			return HvacCommand{}, fmt.Errorf("hvac: missing target temperature: %w", ErrBadPayload)
		}
		return HvacCommand{Kind: HvacSetTarget, TargetTemp: t}, nil
	case "set_fan_mode":
		f, ok := fan()
		if !ok {
			return HvacCommand{}, fmt.Errorf("hvac: missing fan mode: %w", ErrBadPayload)
		}
		return HvacCommand{Kind: HvacSetFanMode, FanMode: f}, nil
	default:
		if m, ok := mode(); ok {
			return HvacCommand{Kind: HvacSetMode, Mode: m}, nil
		}
		if t, ok := target(); ok {
			return HvacCommand{Kind: HvacSetTarget, TargetTemp: t}, nil
		}
		if f, ok := fan(); ok {
			return HvacCommand{Kind: HvacSetFanMode, FanMode: f}, nil
		}
		return HvacCommand{}, fmt.Errorf("hvac: %w", ErrBadPayload)
	}
}

// Envelope serializes the command to its canonical wire form.
func (c HvacCommand) Envelope() contract.CommandSet {
	switch c.Kind {
	case HvacSetTarget:
		return contract.CommandSet{
			Action: "set_temperature",
			Value:  map[string]any{"target_temperature_c": c.TargetTemp},
		}
	case HvacSetFanMode:
		return contract.CommandSet{
			Action: "set_fan_mode",
			Value:  map[string]any{"fan_mode": string(c.FanMode)},
		}
	default:
		return contract.CommandSet{
			Action: "set_mode",
			Value:  map[string]any{"mode": string(c.Mode)},
		}
	}
}

// HvacStateFrom lifts a persisted entity state into a typed climate
// state. Unknown mode strings read as off.
func HvacStateFrom(value any, attrs map[string]any) HvacState {
	st := HvacState{Mode: HvacOff}
	if s, ok := value.(string); ok {
		if m, ok := ParseHvacMode(s); ok {
			st.Mode = m
		}
	}
	if t, ok := getFloat(attrs, "target_temperature_c"); ok {
		st.TargetTemp = &t
	}
	if t, ok := getFloat(attrs, "ambient_temperature_c"); ok {
		st.AmbientTemp = &t
	}
	if s, ok := getString(attrs, "fan_mode"); ok {
		if f, ok := ParseHvacFanMode(s); ok {
			st.FanMode = &f
		}
	}
	return st
}
