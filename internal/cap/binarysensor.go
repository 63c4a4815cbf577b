package cap

import (
	"fmt"
	"strings"

	"github.com/jacobsoderblom/krypin/internal/model"
)

// BinarySensorClass is the device-class taxonomy for binary sensors.
type BinarySensorClass string

const (
	ClassDoor      BinarySensorClass = "door"
	ClassWindow    BinarySensorClass = "window"
	ClassMotion    BinarySensorClass = "motion"
	ClassOccupancy BinarySensorClass = "occupancy"
	ClassMoisture  BinarySensorClass = "moisture"
	ClassSmoke     BinarySensorClass = "smoke"
	ClassVibration BinarySensorClass = "vibration"
	ClassGeneric   BinarySensorClass = "generic"
)

// ParseBinarySensorClass parses a device class string.
func ParseBinarySensorClass(s string) (BinarySensorClass, bool) {
	switch BinarySensorClass(s) {
	case ClassDoor, ClassWindow, ClassMotion, ClassOccupancy,
		ClassMoisture, ClassSmoke, ClassVibration, ClassGeneric:
		return BinarySensorClass(s), true
	}
	return "", false
}

// BinarySensorDescription describes a binary sensor. If Inverted, the
// reported on is the logical negation of the raw driver value.
type BinarySensorDescription struct {
	EntityID    model.EntityID
	DeviceClass BinarySensorClass
	Inverted    bool
}

// BinarySensorState is the raw driver reading before inversion.
type BinarySensorState struct {
	On bool
}

// BinarySensorDescriptionFromEntity lifts a sensor entity's attributes
// into a description. Both sensor and binary_sensor domains qualify.
func BinarySensorDescriptionFromEntity(e *model.Entity) (BinarySensorDescription, error) {
	if e.Domain != model.DomainSensor && e.Domain != model.DomainBinarySensor {
		return BinarySensorDescription{}, fmt.Errorf("entity %s is not a binary sensor", e.ID)
	}
	d := BinarySensorDescription{EntityID: e.ID}
	if s, ok := getString(e.Attributes, "device_class"); ok {
		if class, ok := ParseBinarySensorClass(s); ok {
			d.DeviceClass = class
		}
	}
	if b, _ := getBool(e.Attributes, "inverted"); b {
		d.Inverted = true
	}
	return d, nil
}

// BinarySensorStateFrom lifts a persisted entity state into a typed
// binary sensor state. Besides booleans and "on"/"off" in any case,
// "open"/"closed" are accepted as synonyms for true/false. An explicit
// boolean on attribute overrides the value.
func BinarySensorStateFrom(value any, attrs map[string]any) BinarySensorState {
	var on bool
	switch v := value.(type) {
	case bool:
		on = v
	case string:
		on = strings.EqualFold(v, "on") || v == "open"
	}
	if b, ok := getBool(attrs, "on"); ok {
		on = b
	}
	return BinarySensorState{On: on}
}
