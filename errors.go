package nutrilog

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")

	// ErrInferenceUnavailable covers transport and service failures of the inference provider.
	ErrInferenceUnavailable = errors.New("inference unavailable")
	// ErrInferenceParse is returned when a response arrived but does not match the requested schema.
	ErrInferenceParse = errors.New("inference response did not match schema")

	ErrEstimationFailed    = errors.New("estimation failed")
	ErrCalibrationFailed   = errors.New("calibration failed")
	ErrPlanSynthesisFailed = errors.New("plan synthesis failed")
	ErrCoachUnavailable    = errors.New("coach unavailable")
)
