package domain

// TaskStats accumulates per-category detection counts for a task, plus a
// breakdown by concrete label.
type TaskStats struct {
	Pedestrian   int            `json:"pedestrian"`
	Vehicle      int            `json:"vehicle"`
	TrafficSign  int            `json:"traffic_sign"`
	Construction int            `json:"construction"`
	Unknown      int            `json:"unknown"`
	Labels       map[string]int `json:"labels"`
}

// Increment records one detection. Categories outside the known set are
// counted as unknown; the concrete label is tallied either way.
func (s *TaskStats) Increment(category, label string) {
	switch category {
	case "pedestrian":
		s.Pedestrian++
	case "vehicle":
		s.Vehicle++
	case "traffic_sign":
		s.TrafficSign++
	case "construction":
		s.Construction++
	default:
		s.Unknown++
	}

	if s.Labels == nil {
		s.Labels = make(map[string]int)
	}
	s.Labels[label]++
}

// TotalObjects returns the number of detections recorded so far.
func (s TaskStats) TotalObjects() int {
	return s.Pedestrian + s.Vehicle + s.TrafficSign + s.Construction + s.Unknown
}

// Clone returns a deep copy, so snapshots do not alias the live label map.
func (s TaskStats) Clone() TaskStats {
	out := s
	if s.Labels != nil {
		out.Labels = make(map[string]int, len(s.Labels))
		for k, v := range s.Labels {
			out.Labels[k] = v
		}
	}
	return out
}
