package cap

import (
	"fmt"

	"github.com/jacobsoderblom/krypin/internal/contract"
	"github.com/jacobsoderblom/krypin/internal/model"
)

// LightFeatures is the light capability bitmask.
type LightFeatures uint32

const (
	LightOnOff     LightFeatures = 1 << 0
	LightDimmable  LightFeatures = 1 << 1
	LightColorTemp LightFeatures = 1 << 2
	LightRGB       LightFeatures = 1 << 3
)

// Has reports whether all bits in f are set.
func (l LightFeatures) Has(f LightFeatures) bool { return l&f == f }

// RGB is an 8-bit-per-channel color.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// LightColorKind discriminates the LightColor variant.
type LightColorKind string

const (
	ColorTemperature LightColorKind = "temperature"
	ColorRGB         LightColorKind = "rgb"
)

// LightColor is either a color temperature in mireds or an RGB value.
type LightColor struct {
	Kind   LightColorKind `json:"kind"`
	Mireds uint16         `json:"mireds,omitempty"`
	RGB    RGB            `json:"rgb,omitempty"`
}

// LightDescription is the static capability set of a light entity.
// Mireds bounds of zero mean unbounded.
type LightDescription struct {
	EntityID  model.EntityID
	Features  LightFeatures
	MinMireds uint16
	MaxMireds uint16
}

// LightState is the typed runtime status of a light. Brightness is
// normalized 0-100; nil means unreported.
type LightState struct {
	On         bool
	Brightness *uint8
	Color      *LightColor
}

// LightCommandKind discriminates the LightCommand variant.
type LightCommandKind string

const (
	LightSetPower      LightCommandKind = "set_power"
	LightToggle        LightCommandKind = "toggle"
	LightSetBrightness LightCommandKind = "set_brightness"
	LightSetColorTemp  LightCommandKind = "set_color_temp"
	LightSetRGB        LightCommandKind = "set_rgb"
)

// LightCommand is a tagged variant of the light operations. Only the
// fields of the active Kind are meaningful.
type LightCommand struct {
	Kind         LightCommandKind
	On           bool
	Level        uint8
	Mireds       uint16
	RGB          RGB
	TransitionMS *uint32
}

// Validate rejects commands unsupported by the feature set or outside
// declared mireds bounds.
func (d LightDescription) Validate(c LightCommand) error {
	switch c.Kind {
	case LightSetPower, LightToggle:
		if !d.Features.Has(LightOnOff) {
			return fmt.Errorf("light on/off: %w", ErrUnsupported)
		}
	case LightSetBrightness:
		if !d.Features.Has(LightDimmable) {
			return fmt.Errorf("light dimming: %w", ErrUnsupported)
		}
	case LightSetColorTemp:
		if !d.Features.Has(LightColorTemp) {
			return fmt.Errorf("light color temperature: %w", ErrUnsupported)
		}
		if d.MinMireds != 0 && c.Mireds < d.MinMireds {
			return fmt.Errorf("mireds below minimum: %w", ErrOutOfRange)
		}
		if d.MaxMireds != 0 && c.Mireds > d.MaxMireds {
			return fmt.Errorf("mireds above maximum: %w", ErrOutOfRange)
		}
	case LightSetRGB:
		if !d.Features.Has(LightRGB) {
			return fmt.Errorf("light rgb: %w", ErrUnsupported)
		}
	default:
		return fmt.Errorf("light command %q: %w", c.Kind, ErrUnsupported)
	}
	return nil
}

// LightDescriptionFromEntity lifts a light entity's attributes into a
// description. A features bitmask attribute wins; otherwise individual
// boolean flags extend the implied on/off capability.
func LightDescriptionFromEntity(e *model.Entity) (LightDescription, error) {
	if e.Domain != model.DomainLight {
		return LightDescription{}, fmt.Errorf("entity %s is not a light", e.ID)
	}
	features := LightOnOff
	if bits, ok := getUint(e.Attributes, "features"); ok {
		features = LightFeatures(bits)
	} else {
		if b, _ := getBool(e.Attributes, "dimmable"); b {
			features |= LightDimmable
		}
		if b, _ := getBool(e.Attributes, "color_temp"); b {
			features |= LightColorTemp
		}
		if b, _ := getBool(e.Attributes, "rgb"); b {
			features |= LightRGB
		}
	}
	d := LightDescription{EntityID: e.ID, Features: features}
	if n, ok := getUint(e.Attributes, "min_mireds"); ok {
		d.MinMireds = uint16(n)
	}
	if n, ok := getUint(e.Attributes, "max_mireds"); ok {
		d.MaxMireds = uint16(n)
	}
	return d, nil
}

// ParseLightCommand lifts an on-wire command envelope into a typed
// light command. Absent action defaults to "set"; typed fields are
// read from the value object when present, otherwise from the top
// level; a bare boolean value sets power.
func ParseLightCommand(raw map[string]any) (LightCommand, error) {
	action, _ := getString(raw, "action")
	if action == "" {
		action = "set"
	}
	if action == "toggle" {
		return LightCommand{Kind: LightToggle}, nil
	}

	args := raw
	if obj, ok := asObject(raw["value"]); ok {
		args = obj
	}
	if on, ok := getBool(args, "on"); ok {
		return LightCommand{Kind: LightSetPower, On: on}, nil
	}
	if n, ok := getUint(args, "brightness"); ok {
		level := uint8(min(n, 100))
		return LightCommand{Kind: LightSetBrightness, Level: level, TransitionMS: transitionArg(args)}, nil
	}
	if n, ok := getUint(args, "mireds"); ok {
		return LightCommand{Kind: LightSetColorTemp, Mireds: uint16(n), TransitionMS: transitionArg(args)}, nil
	}
	if rgb, ok := parseRGBList(args["rgb"]); ok {
		return LightCommand{Kind: LightSetRGB, RGB: rgb, TransitionMS: transitionArg(args)}, nil
	}
	if on, ok := raw["value"].(bool); ok {
		return LightCommand{Kind: LightSetPower, On: on}, nil
	}
	return LightCommand{}, fmt.Errorf("light: %w", ErrBadPayload)
}

func parseRGBList(v any) (RGB, bool) {
	arr, ok := v.([]any)
	if !ok || len(arr) != 3 {
		return RGB{}, false
	}
	var ch [3]uint8
	for i, e := range arr {
		n, ok := asFloat(e)
		if !ok || n < 0 || n > 255 {
			return RGB{}, false
		}
		ch[i] = uint8(n)
	}
	return RGB{R: ch[0], G: ch[1], B: ch[2]}, true
}

// Envelope serializes the command to its canonical wire form.
func (c LightCommand) Envelope() contract.CommandSet {
	switch c.Kind {
	case LightToggle:
		return contract.CommandSet{Action: "toggle", Value: nil}
	case LightSetBrightness:
		v := map[string]any{"brightness": int(c.Level)}
		if c.TransitionMS != nil {
			v["transition_ms"] = int(*c.TransitionMS)
		}
		return contract.CommandSet{Action: "set", Value: v}
	case LightSetColorTemp:
		v := map[string]any{"mireds": int(c.Mireds)}
		if c.TransitionMS != nil {
			v["transition_ms"] = int(*c.TransitionMS)
		}
		return contract.CommandSet{Action: "set", Value: v}
	case LightSetRGB:
		v := map[string]any{"rgb": []any{int(c.RGB.R), int(c.RGB.G), int(c.RGB.B)}}
		if c.TransitionMS != nil {
			v["transition_ms"] = int(*c.TransitionMS)
		}
		return contract.CommandSet{Action: "set", Value: v}
	default:
		return contract.CommandSet{Action: "set", Value: map[string]any{"on": c.On}}
	}
}

// LightStateFrom lifts a persisted entity state into a typed light
// state. Brightness above 100 is treated as an 8-bit value and
// rescaled; "on"/"off" strings are accepted in any case.
func LightStateFrom(value any, attrs map[string]any) LightState {
	st := LightState{On: looseOn(value)}
	if n, ok := getUint(attrs, "brightness"); ok {
		pct := n
		if pct > 100 {
			pct = min(pct, 255) * 100 / 255
		}
		level := uint8(pct)
		st.Brightness = &level
	}
	if m, ok := getUint(attrs, "mireds"); ok {
		st.Color = &LightColor{Kind: ColorTemperature, Mireds: uint16(m)}
	} else if r, rok := getUint(attrs, "r"); rok {
		g, gok := getUint(attrs, "g")
		b, bok := getUint(attrs, "b")
		if gok && bok {
			st.Color = &LightColor{Kind: ColorRGB, RGB: RGB{R: uint8(r), G: uint8(g), B: uint8(b)}}
		}
	} else if rgb, ok := parseRGBList(attrs["rgb"]); ok {
		st.Color = &LightColor{Kind: ColorRGB, RGB: rgb}
	}
	return st
}
