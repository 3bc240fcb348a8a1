package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yizhengyuan/Traffic-AutoLabel/internal/domain"
)

func TestEventMarshalShape(t *testing.T) {
	t.Parallel()

	ev := New(TypeFrameCompleted, "task-a", FrameCompletedPayload{
		Frame: domain.FrameResult{
			FrameID:   "cam01_000003",
			ImagePath: "frames/cam01_000003.jpg",
			Detections: []domain.Detection{
				{Label: "car", Category: "vehicle", BBox: domain.BBox{1, 2, 3, 4}},
			},
			ElapsedMS: 840,
		},
		Progress:  0.3,
		Completed: 3,
		Total:     10,
	})

	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, "frame_completed", decoded["type"])
	assert.Equal(t, "task-a", decoded["task_id"])
	assert.NotEmpty(t, decoded["id"])
	assert.NotEmpty(t, decoded["timestamp"])

	data, ok := decoded["data"].(map[string]any)
	require.True(t, ok, "payload must marshal under the data key")
	assert.Equal(t, 0.3, data["progress"])

	frame, ok := data["frame"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "cam01_000003", frame["frame_id"])

	dets, ok := frame["detections"].([]any)
	require.True(t, ok)
	require.Len(t, dets, 1)
	det := dets[0].(map[string]any)
	assert.Equal(t, []any{1.0, 2.0, 3.0, 4.0}, det["bbox"], "bbox marshals as a 4-tuple")
}

func TestEventUniqueIDs(t *testing.T) {
	t.Parallel()

	a := New(TypeStatsUpdate, "t", StatsUpdatePayload{})
	b := New(TypeStatsUpdate, "t", StatsUpdatePayload{})
	assert.NotEqual(t, a.ID, b.ID)
}
