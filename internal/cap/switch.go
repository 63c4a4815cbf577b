package cap

import (
	"fmt"

	"github.com/jacobsoderblom/krypin/internal/contract"
	"github.com/jacobsoderblom/krypin/internal/model"
)

// SwitchFeatures is the switch capability bitmask.
type SwitchFeatures uint32

const (
	SwitchOnOff      SwitchFeatures = 1 << 0
	SwitchToggleable SwitchFeatures = 1 << 1
	SwitchStateless  SwitchFeatures = 1 << 2
	SwitchPowerMeter SwitchFeatures = 1 << 3
)

// Has reports whether all bits in f are set.
func (s SwitchFeatures) Has(f SwitchFeatures) bool { return s&f == f }

// SwitchDescription is the static capability set of a switch entity.
type SwitchDescription struct {
	EntityID model.EntityID
	Features SwitchFeatures
}

// SwitchState is the typed runtime status of a switch. PowerW is the
// instantaneous power draw in watts; nil means unmetered.
type SwitchState struct {
	On     bool
	PowerW *float64
}

// SwitchCommandKind discriminates the SwitchCommand variant.
type SwitchCommandKind string

const (
	SwitchSet    SwitchCommandKind = "set"
	SwitchToggle SwitchCommandKind = "toggle"
)

// SwitchCommand is a tagged variant of the switch operations.
type SwitchCommand struct {
	Kind SwitchCommandKind
	On   bool
}

// Validate rejects commands unsupported by the feature set.
func (d SwitchDescription) Validate(c SwitchCommand) error {
	switch c.Kind {
	case SwitchSet:
		if !d.Features.Has(SwitchOnOff) {
			return fmt.Errorf("switch on/off: %w", ErrUnsupported)
		}
	case SwitchToggle:
		if !d.Features.Has(SwitchToggleable) {
			return fmt.Errorf("switch toggle: %w", ErrUnsupported)
		}
	default:
		return fmt.Errorf("switch command %q: %w", c.Kind, ErrUnsupported)
	}
	return nil
}

// SwitchDescriptionFromEntity lifts a switch entity's attributes into
// a description.
func SwitchDescriptionFromEntity(e *model.Entity) (SwitchDescription, error) {
	if e.Domain != model.DomainSwitch {
		return SwitchDescription{}, fmt.Errorf("entity %s is not a switch", e.ID)
	}
	features := SwitchOnOff
	if bits, ok := getUint(e.Attributes, "features"); ok {
		features = SwitchFeatures(bits)
	} else {
		if b, _ := getBool(e.Attributes, "toggle"); b {
			features |= SwitchToggleable
		}
		if b, _ := getBool(e.Attributes, "stateless"); b {
			features |= SwitchStateless
		}
		if b, _ := getBool(e.Attributes, "power_meter"); b {
			features |= SwitchPowerMeter
		}
	}
	return SwitchDescription{EntityID: e.ID, Features: features}, nil
}

// ParseSwitchCommand lifts an on-wire command envelope into a typed
// switch command. Power is accepted as value.on, a top-level on, or a
// bare boolean value.
func ParseSwitchCommand(raw map[string]any) (SwitchCommand, error) {
	action, _ := getString(raw, "action")
	if action == "toggle" {
		return SwitchCommand{Kind: SwitchToggle}, nil
	}
	if on, ok := getBool(raw, "on"); ok {
		return SwitchCommand{Kind: SwitchSet, On: on}, nil
	}
	if obj, ok := asObject(raw["value"]); ok {
		if on, ok := getBool(obj, "on"); ok {
			return SwitchCommand{Kind: SwitchSet, On: on}, nil
		}
	}
	if on, ok := raw["value"].(bool); ok {
		return SwitchCommand{Kind: SwitchSet, On: on}, nil
	}
	return SwitchCommand{}, fmt.Errorf("switch: %w", ErrBadPayload)
}

// Envelope serializes the command to its canonical wire form.
func (c SwitchCommand) Envelope() contract.CommandSet {
	if c.Kind == SwitchToggle {
		return contract.CommandSet{Action: "toggle", Value: nil}
	}
	return contract.CommandSet{Action: "set", Value: map[string]any{"on": c.On}}
}

// SwitchStateFrom lifts a persisted entity state into a typed switch
// state.
func SwitchStateFrom(value any, attrs map[string]any) SwitchState {
	st := SwitchState{On: looseOn(value)}
	if w, ok := getFloat(attrs, "power_w"); ok {
		st.PowerW = &w
	}
	return st
}
