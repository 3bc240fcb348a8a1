// Package labels holds the traffic-scene label taxonomy: normalization of
// raw model labels, mapping to coarse categories, and canonicalization of
// vehicle state labels.
package labels

import "strings"

// categoryKeywords maps each category to the substrings that claim a label.
// Order matters: "traffic_cone" must land in construction via "cone" before
// traffic_sign can claim it via "traffic".
var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{"pedestrian", []string{"pedestrian", "person", "people", "child", "cyclist", "crowd"}},
	{"vehicle", []string{"car", "truck", "bus", "motorcycle", "bicycle", "van", "suv", "taxi", "vehicle"}},
	{"construction", []string{"cone", "construction", "barrier", "road_work", "detour"}},
	{"traffic_sign", []string{"sign", "speed", "limit", "no_", "traffic", "light", "stop", "give_way", "direction", "exit", "lane", "countdown"}},
}

var vehicleTypes = []string{"car", "truck", "bus", "van", "motorcycle", "bicycle", "taxi", "suv"}

var vehicleStates = []string{"_braking", "_double_flash", "_turning_left", "_turning_right"}

// displayCategories is the fixed ordering used in reports and summaries.
var displayCategories = []string{"pedestrian", "vehicle", "traffic_sign", "construction", "unknown"}

// Normalize lowercases a raw label and collapses spaces and hyphens to
// underscores.
func Normalize(label string) string {
	norm := strings.ToLower(strings.TrimSpace(label))
	norm = strings.ReplaceAll(norm, " ", "_")
	norm = strings.ReplaceAll(norm, "-", "_")
	return norm
}

// Category maps a label to its coarse category, or "unknown" when no
// keyword claims it.
func Category(label string) string {
	norm := Normalize(label)
	for _, entry := range categoryKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(norm, kw) {
				return entry.category
			}
		}
	}
	return "unknown"
}

// NormalizeVehicle canonicalizes vehicle labels to the "vehicle" family:
// a concrete type with a recognized state suffix becomes vehicle_<state>,
// a bare type becomes vehicle, and labels already in the vehicle family
// pass through. Non-vehicle labels come back normalized but otherwise
// unchanged.
func NormalizeVehicle(label string) string {
	norm := Normalize(label)
	if strings.HasPrefix(norm, "vehicle") {
		return norm
	}

	for _, vt := range vehicleTypes {
		if !strings.HasPrefix(norm, vt) {
			continue
		}

		suffix := norm[len(vt):]
		for _, state := range vehicleStates {
			if suffix == state {
				return "vehicle" + state
			}
		}

		switch {
		case strings.Contains(norm, "braking"), strings.Contains(norm, "brake"):
			return "vehicle_braking"
		case strings.Contains(norm, "double_flash"), strings.Contains(norm, "hazard"):
			return "vehicle_double_flash"
		case strings.Contains(norm, "turning_left"), strings.Contains(norm, "turn_left"), strings.Contains(norm, "left_turn"):
			return "vehicle_turning_left"
		case strings.Contains(norm, "turning_right"), strings.Contains(norm, "turn_right"), strings.Contains(norm, "right_turn"):
			return "vehicle_turning_right"
		}
		return "vehicle"
	}

	return norm
}

// Categories returns the category names in their display order, including
// the unknown bucket.
func Categories() []string {
	out := make([]string, len(displayCategories))
	copy(out, displayCategories)
	return out
}
