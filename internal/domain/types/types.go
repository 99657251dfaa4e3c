// Package types contains the wire shapes shared by the server and the viewer.
package types

// Entry is the registry projection of a session: no sample history.
type Entry struct {
	SessionID        string `json:"file-name"`
	StartTimeEpochMs int64  `json:"start-time"`
	SampleCount      int    `json:"data-points"`
}

// AverageStep is the resampled mean step curve of one session.
type AverageStep struct {
	Time  []float64 `json:"time"`
	Pitch []float64 `json:"pitch"`
	Roll  []float64 `json:"roll"`
}

// Features is the per-session gait summary produced by step analysis.
// Ranges are [max, min] in degrees.
type Features struct {
	StepCount           int         `json:"step_count"`
	StepTimeAverage     float64     `json:"step_time_average"`
	StepTimeStdDev      float64     `json:"step_time_std_dev"`
	FootDownTimeAverage float64     `json:"foot_down_time_average"`
	FootDownTimeStdDev  float64     `json:"foot_down_time_std_dev"`
	PercentTimeFootDown float64     `json:"percent_time_foot_down"`
	AveragePitchRange   [2]float64  `json:"average_pitch_range"`
	AverageRollRange    [2]float64  `json:"average_roll_range"`
	AverageStep         AverageStep `json:"average_step"`
}

// Detail is the GET /items/{id} payload: the registry entry plus features.
type Detail struct {
	Entry
	Features
}
