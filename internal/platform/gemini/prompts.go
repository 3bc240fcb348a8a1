// Package gemini provides implementations of the detection interfaces using Google's Gemini API.
package gemini

import (
	"fmt"
	"strings"

	"github.com/yizhengyuan/Traffic-AutoLabel/internal/domain"
)

// detectPrompt asks for the four annotation categories as a bare JSON array
// on the model's coordinate grid.
const detectPrompt = `Detect every object of the following 4 classes in this traffic-scene image and return JSON.

## Exclusion rule:
Never annotate the ego vehicle (handlebars, dashboard, mirrors or arms of the camera's own motorcycle, bicycle or car).

## Classes:

### 1. Pedestrians (pedestrian)
- pedestrian: an individual or a few people
- crowd: a dense group of people, boxed as one region

### 2. Vehicles (vehicle)
Always use the vehicle label, distinguished only by driving state.
Judge the state by the tail lights, in priority order:
1. Brake lights lit bright red -> vehicle_braking
2. Both turn signals flashing together -> vehicle_double_flash
3. Right turn signal lit (amber) or clearly turning right -> vehicle_turning_right
4. Left turn signal lit (amber) or clearly turning left -> vehicle_turning_left
5. Driving straight with no light signal -> vehicle

Note: a vehicle following a curved road without signaling is still vehicle.

### 3. Traffic signs (traffic_sign)
- traffic_sign (fine-grained classification happens in a later pass)

### 4. Construction (construction)
- traffic_cone, construction_barrier

## Output format example:
[
  {"label": "vehicle_braking", "bbox_2d": [100, 200, 300, 400]},
  {"label": "traffic_sign", "bbox_2d": [50, 50, 80, 80]}
]

Return [] if nothing is present.
Return ONLY the JSON array!`

// noIssuesMarker is the agreed pass answer for frame audits.
const noIssuesMarker = "NO_ISSUES"

// selectSignPrompt numbers the reference catalog and asks for the single
// best match for the cropped sign.
func selectSignPrompt(signs []string) string {
	var sb strings.Builder
	sb.WriteString("Look closely at this traffic sign and pick the best match from the catalog:\n\n")
	for i, name := range signs {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, name)
	}
	sb.WriteString(`
Rules:
1. Judge by the sign's color, shape, text and numbers
2. For a speed limit sign, pick "Speed_limit_(in_km_h)"
3. If nothing matches, return 0

Return ONLY the option number (e.g. 1, 2, 3), no explanation.`)
	return sb.String()
}

// auditPrompt lists the frame's annotations and asks for a completeness
// check. The model answers with noIssuesMarker when the frame is fine.
func auditPrompt(dets []domain.Detection) string {
	var sb strings.Builder
	sb.WriteString("Check whether this traffic-scene image is annotated completely and correctly.\n\nCurrent annotations:\n")
	if len(dets) == 0 {
		sb.WriteString("(none)\n")
	}
	for _, det := range dets {
		fmt.Fprintf(&sb, "- %s at [%d, %d, %d, %d]\n",
			det.Label, det.BBox[0], det.BBox[1], det.BBox[2], det.BBox[3])
	}
	fmt.Fprintf(&sb, `
Check:
1. Is any pedestrian, vehicle or traffic sign clearly missing?
2. Are the existing labels correct?

Describe any problem briefly. If everything is fine, reply "%s".`, noIssuesMarker)
	return sb.String()
}
