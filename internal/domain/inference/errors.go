package inference

import "errors"

// Sentinel errors for loading and scoring.
var (
	ErrArtifactMissing  = errors.New("model artifact or manifest missing")
	ErrManifestMismatch = errors.New("model and manifest do not match")
	ErrMalformedFeature = errors.New("malformed feature value")
	ErrPrediction       = errors.New("probability computation failed")
)
