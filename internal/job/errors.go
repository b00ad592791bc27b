package job

import "errors"

var (
	// ErrNotReady is returned by Submit before the pool finished starting.
	ErrNotReady = errors.New("analysis pool not ready")
	// ErrBusy is returned by Submit while another job is active.
	ErrBusy = errors.New("analysis in progress")
	// ErrPreprocessFailed wraps decode, downmix and resample failures.
	ErrPreprocessFailed = errors.New("preprocessing failed")
	// ErrFeatureExtractionFailed wraps extractor errors and stalls.
	ErrFeatureExtractionFailed = errors.New("feature extraction failed")
	// ErrTonalEstimationFailed marks a missing tonal profile. It never fails
	// a job on its own.
	ErrTonalEstimationFailed = errors.New("tonal estimation failed")
	// ErrAggregationIncomplete is reported when the job deadline passed
	// before every dispatched classifier answered.
	ErrAggregationIncomplete = errors.New("aggregation incomplete")
)
