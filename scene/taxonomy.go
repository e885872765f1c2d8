package scene

import (
	"fmt"
	"strings"
)

// Flag is a yes/no presence answer.
type Flag string

const (
	FlagYes Flag = "yes"
	FlagNo  Flag = "no"
)

// ParseFlag normalizes a raw answer to a Flag.
func ParseFlag(s string) (Flag, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes":
		return FlagYes, nil
	case "no":
		return FlagNo, nil
	default:
		return "", fmt.Errorf("invalid flag value %q", s)
	}
}

// Bool reports whether the flag is yes.
func (f Flag) Bool() bool {
	return f == FlagYes
}

// Scenarios classifies the road geometry the ego vehicle is in.
type Scenarios struct {
	Junction     Flag `json:"junction" schema:"required,enum:yes|no"`
	StraightRoad Flag `json:"straight_road" schema:"required,enum:yes|no"`
	RampEntrance Flag `json:"ramp_entrance" schema:"required,enum:yes|no"`
	RampExit     Flag `json:"ramp_exit" schema:"required,enum:yes|no"`
	Curve        Flag `json:"curve" schema:"required,enum:yes|no"`
}

// CriticalObjects flags the presence of objects that matter for the
// ego vehicle's future path.
type CriticalObjects struct {
	NearbyVehicle      Flag `json:"nearby_vehicle" schema:"required,enum:yes|no"`
	Pedestrian         Flag `json:"pedestrian" schema:"required,enum:yes|no"`
	Cyclist            Flag `json:"cyclist" schema:"required,enum:yes|no"`
	Construction       Flag `json:"construction" schema:"required,enum:yes|no"`
	TrafficElement     Flag `json:"traffic_element" schema:"required,enum:yes|no"`
	WeatherCondition   Flag `json:"weather_condition" schema:"required,enum:yes|no"`
	RoadHazard         Flag `json:"road_hazard" schema:"required,enum:yes|no"`
	EmergencyVehicle   Flag `json:"emergency_vehicle" schema:"required,enum:yes|no"`
	Animal             Flag `json:"animal" schema:"required,enum:yes|no"`
	SpecialVehicle     Flag `json:"special_vehicle" schema:"required,enum:yes|no"`
	ConflictingVehicle Flag `json:"conflicting_vehicle" schema:"required,enum:yes|no"`
	DoorOpeningVehicle Flag `json:"door_opening_vehicle" schema:"required,enum:yes|no"`
}

// Result is the full classification of one dashcam frame.
type Result struct {
	Scenarios       Scenarios       `json:"scenarios"`
	CriticalObjects CriticalObjects `json:"critical_objects"`
}

// Item is one taxonomy key with its answer.
type Item struct {
	Key   string
	Value Flag
}

// Items lists the scenario answers in schema order.
func (s Scenarios) Items() []Item {
	return []Item{
		{"junction", s.Junction},
		{"straight_road", s.StraightRoad},
		{"ramp_entrance", s.RampEntrance},
		{"ramp_exit", s.RampExit},
		{"curve", s.Curve},
	}
}

// Items lists the object answers in schema order.
func (c CriticalObjects) Items() []Item {
	return []Item{
		{"nearby_vehicle", c.NearbyVehicle},
		{"pedestrian", c.Pedestrian},
		{"cyclist", c.Cyclist},
		{"construction", c.Construction},
		{"traffic_element", c.TrafficElement},
		{"weather_condition", c.WeatherCondition},
		{"road_hazard", c.RoadHazard},
		{"emergency_vehicle", c.EmergencyVehicle},
		{"animal", c.Animal},
		{"special_vehicle", c.SpecialVehicle},
		{"conflicting_vehicle", c.ConflictingVehicle},
		{"door_opening_vehicle", c.DoorOpeningVehicle},
	}
}

// Positives returns the keys answered yes, scenarios first.
func (r *Result) Positives() []string {
	var keys []string
	for _, it := range r.Scenarios.Items() {
		if it.Value.Bool() {
			keys = append(keys, it.Key)
		}
	}
	for _, it := range r.CriticalObjects.Items() {
		if it.Value.Bool() {
			keys = append(keys, it.Key)
		}
	}
	return keys
}

// Summary renders a one-line human-readable digest of the result.
func (r *Result) Summary() string {
	var scenarios, objects []string
	for _, it := range r.Scenarios.Items() {
		if it.Value.Bool() {
			scenarios = append(scenarios, it.Key)
		}
	}
	for _, it := range r.CriticalObjects.Items() {
		if it.Value.Bool() {
			objects = append(objects, it.Key)
		}
	}
	if len(scenarios) == 0 {
		scenarios = []string{"none"}
	}
	if len(objects) == 0 {
		objects = []string{"none"}
	}
	return fmt.Sprintf("scenarios: %s · objects: %s",
		strings.Join(scenarios, ", "), strings.Join(objects, ", "))
}
