package history

import "time"

// LiveSample is one GPS/biometric reading. Time is seconds since start,
// Distance is cumulative meters.
type LiveSample struct {
	Time      int     `json:"time" validate:"gte=0"`
	Distance  float64 `json:"distance" validate:"gte=0"`
	Lat       float64 `json:"latitude" validate:"latitude"`
	Lng       float64 `json:"longitude" validate:"longitude"`
	HeartRate *int    `json:"heartRate,omitempty"`
}

type HikingRecord struct {
	ID           int64     `json:"recordId"`
	UserID       string    `json:"userId"`
	MountainID   int64     `json:"mountainId"`
	PathID       int64     `json:"pathId"`
	FootprintID  int64     `json:"-"`
	ElapsedTime  int       `json:"hikingTime"`
	AvgHeartRate float64   `json:"averageHeartRate"`
	MaxHeartRate int       `json:"maxHeartRate"`
	CreatedAt    time.Time `json:"date"`
}

// HeartRateStats averages the samples that carry a heart rate. Both values are
// zero when none do.
func HeartRateStats(samples []LiveSample) (avg float64, max int) {
	var sum, n int
	for _, s := range samples {
		if s.HeartRate == nil {
			continue
		}
		hr := *s.HeartRate
		sum += hr
		n++
		if hr > max {
			max = hr
		}
	}
	if n == 0 {
		return 0, 0
	}
	return float64(sum) / float64(n), max
}
