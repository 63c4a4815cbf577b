package automation

import "github.com/jacobsoderblom/krypin/internal/model"

// MotionLight builds an automation that turns a light on when a motion
// sensor reports true.
func MotionLight(motion, light model.EntityID) NewAutomation {
	return NewAutomation{
		Name:        "motion light",
		Description: "turn the light on when motion is detected",
		Trigger:     Trigger{Type: TriggerStateChange, EntityID: &motion},
		Conditions: []Condition{
			{Type: CondEntityStateEquals, EntityID: &motion, Value: true},
		},
		Actions: []Action{
			{Type: ActionSetEntityState, EntityID: &light, Value: "on"},
		},
	}
}

// ThermostatSchedule builds an automation that sets a thermostat to
// targetC when the given cron string fires.
func ThermostatSchedule(thermostat model.EntityID, targetC float64, cron string) NewAutomation {
	return NewAutomation{
		Name:        "thermostat schedule",
		Description: "scheduled thermostat setpoint",
		Trigger:     Trigger{Type: TriggerTime, Cron: cron},
		Actions: []Action{
			{
				Type:       ActionSetEntityState,
				EntityID:   &thermostat,
				Value:      targetC,
				Attributes: map[string]any{"unit": "C"},
			},
		},
	}
}
