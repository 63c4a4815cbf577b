package cap

import (
	"fmt"

	"github.com/jacobsoderblom/krypin/internal/contract"
	"github.com/jacobsoderblom/krypin/internal/model"
)

// RobotVacFeatures is the robot vacuum capability bitmask.
type RobotVacFeatures uint32

const (
	VacStart  RobotVacFeatures = 1 << 0
	VacPause  RobotVacFeatures = 1 << 1
	VacStop   RobotVacFeatures = 1 << 2
	VacDock   RobotVacFeatures = 1 << 3
	VacLocate RobotVacFeatures = 1 << 4
	VacSpot   RobotVacFeatures = 1 << 5
)

// Has reports whether all bits in f are set.
func (r RobotVacFeatures) Has(f RobotVacFeatures) bool { return r&f == f }

// RobotVacStatus is a vacuum's run state.
type RobotVacStatus string

const (
	VacIdle      RobotVacStatus = "idle"
	VacCleaning  RobotVacStatus = "cleaning"
	VacPaused    RobotVacStatus = "paused"
	VacReturning RobotVacStatus = "returning"
	VacDocked    RobotVacStatus = "docked"
	VacError     RobotVacStatus = "error"
)

// ParseRobotVacStatus parses a status string.
func ParseRobotVacStatus(s string) (RobotVacStatus, bool) {
	switch RobotVacStatus(s) {
	case VacIdle, VacCleaning, VacPaused, VacReturning, VacDocked, VacError:
		return RobotVacStatus(s), true
	}
	return "", false
}

// RobotVacDescription is the static capability set of a vacuum entity.
type RobotVacDescription struct {
	EntityID model.EntityID
	Features RobotVacFeatures
}

// RobotVacState is the typed runtime status of a vacuum.
type RobotVacState struct {
	Status       RobotVacStatus
	BatteryLevel *uint8
	FanPower     *uint8
}

// RobotVacCommand is one of the vacuum operations. The command carries
// no arguments, so the kind is the whole command.
type RobotVacCommand string

const (
	VacCmdStart     RobotVacCommand = "start"
	VacCmdPause     RobotVacCommand = "pause"
	VacCmdStop      RobotVacCommand = "stop"
	VacCmdDock      RobotVacCommand = "dock"
	VacCmdLocate    RobotVacCommand = "locate"
	VacCmdSpotClean RobotVacCommand = "spot_clean"
)

// Validate rejects commands unsupported by the feature set.
func (d RobotVacDescription) Validate(c RobotVacCommand) error {
	var requires RobotVacFeatures
	switch c {
	case VacCmdStart:
		requires = VacStart
	case VacCmdPause:
		requires = VacPause
	case VacCmdStop:
		requires = VacStop
	case VacCmdDock:
		requires = VacDock
	case VacCmdLocate:
		requires = VacLocate
	case VacCmdSpotClean:
		requires = VacSpot
	default:
		return fmt.Errorf("vacuum command %q: %w", c, ErrUnsupported)
	}
	if !d.Features.Has(requires) {
		return fmt.Errorf("vacuum %s: %w", c, ErrUnsupported)
	}
	return nil
}

// RobotVacDescriptionFromEntity lifts a vacuum entity's attributes
// into a description.
func RobotVacDescriptionFromEntity(e *model.Entity) (RobotVacDescription, error) {
	if e.Domain != model.DomainRobotVacuum {
		return RobotVacDescription{}, fmt.Errorf("entity %s is not a robot vacuum", e.ID)
	}
	features := VacStart | VacStop | VacDock
	if bits, ok := getUint(e.Attributes, "features"); ok {
		features = RobotVacFeatures(bits)
	} else {
		if b, _ := getBool(e.Attributes, "pause"); b {
			features |= VacPause
		}
		if b, _ := getBool(e.Attributes, "locate"); b {
			features |= VacLocate
		}
		if b, _ := getBool(e.Attributes, "spot_clean"); b {
			features |= VacSpot
		}
	}
	return RobotVacDescription{EntityID: e.ID, Features: features}, nil
}

// ParseRobotVacCommand lifts an on-wire command envelope into a typed
// vacuum command. An absent action defaults to "start".
func ParseRobotVacCommand(raw map[string]any) (RobotVacCommand, error) {
	action, _ := getString(raw, "action")
	if action == "" {
		action = "start"
	}
	switch RobotVacCommand(action) {
	case VacCmdStart, VacCmdPause, VacCmdStop, VacCmdDock, VacCmdLocate, VacCmdSpotClean:
		return RobotVacCommand(action), nil
	}
	return "", fmt.Errorf("vacuum action %q: %w", action, ErrBadPayload)
}

// Envelope serializes the command to its canonical wire form.
func (c RobotVacCommand) Envelope() contract.CommandSet {
	return contract.CommandSet{Action: string(c), Value: nil}
}

// RobotVacStateFrom lifts a persisted entity state into a typed vacuum
// state. Unknown status strings read as idle.
func RobotVacStateFrom(value any, attrs map[string]any) RobotVacState {
	st := RobotVacState{Status: VacIdle}
	if s, ok := value.(string); ok {
		if status, ok := ParseRobotVacStatus(s); ok {
			st.Status = status
		}
	}
	if n, ok := getUint(attrs, "battery"); ok {
		level := uint8(min(n, 100))
		st.BatteryLevel = &level
	}
	if n, ok := getUint(attrs, "fan_power"); ok {
		power := uint8(min(n, 255))
		st.FanPower = &power
	}
	return st
}
