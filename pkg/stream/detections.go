package stream

import "github.com/teslashibe/go-framestream/pkg/protocol"

// LabelSummary groups the detections of one label.
type LabelSummary struct {
	Label         string  `json:"label"`
	Count         int     `json:"count"`
	MaxConfidence float64 `json:"max_confidence"`
}

// Summarize groups detections by label in order of first appearance.
func Summarize(dets []protocol.Detection) []LabelSummary {
	if len(dets) == 0 {
		return nil
	}
	index := make(map[string]int, len(dets))
	var out []LabelSummary
	for _, d := range dets {
		i, ok := index[d.Label]
		if !ok {
			index[d.Label] = len(out)
			out = append(out, LabelSummary{Label: d.Label, Count: 1, MaxConfidence: d.Confidence})
			continue
		}
		out[i].Count++
		if d.Confidence > out[i].MaxConfidence {
			out[i].MaxConfidence = d.Confidence
		}
	}
	return out
}
