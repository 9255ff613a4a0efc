package anomaly

import (
	"fmt"

	"github.com/septivank/conso-metering/metering"
)

// Detector flags readings that are negative or spike above the running mean
type Detector struct {
	spikeThreshold            float64
	minDataPointsForDetection int
}

// Finding is an anomaly attached to one reading of a record
type Finding struct {
	Index  int
	Reason string
}

// NewDetector creates a new anomaly detector with the specified thresholds
func NewDetector(spikeThreshold float64, minDataPointsForDetection int) *Detector {
	return &Detector{
		spikeThreshold:            spikeThreshold,
		minDataPointsForDetection: minDataPointsForDetection,
	}
}

// DetectAnomaly checks value against the readings that came before it
func (d *Detector) DetectAnomaly(value int64, preceding []int64) (bool, string) {
	if value < 0 {
		return true, "negative value"
	}

	if len(preceding) < d.minDataPointsForDetection || len(preceding) == 0 {
		return false, ""
	}

	var sum int64
	for _, v := range preceding {
		sum += v
	}
	average := float64(sum) / float64(len(preceding))

	if average > 0 && float64(value) > d.spikeThreshold*average {
		return true, fmt.Sprintf("sudden spike detected: value %d exceeds %.1fx rolling average %.2f",
			value, d.spikeThreshold, average)
	}

	return false, ""
}

// Scan runs DetectAnomaly over every reading of a record, in order
func (d *Detector) Scan(data *metering.MeteringData) []Finding {
	readings := data.Readings()
	values := make([]int64, 0, len(readings))

	var findings []Finding
	for i, r := range readings {
		if isAnomaly, reason := d.DetectAnomaly(r.Value, values); isAnomaly {
			findings = append(findings, Finding{Index: i, Reason: reason})
		}
		values = append(values, r.Value)
	}
	return findings
}
