package inference

import (
	"math"
	"time"

	"github.com/okian/slarisk/internal/domain/classifier"
	"github.com/okian/slarisk/internal/domain/features"
)

// Manifest is the ordered feature list a model was trained on.
type Manifest struct {
	ModelID   string          `json:"model_id"`
	CreatedAt time.Time       `json:"created_at"`
	Features  features.Schema `json:"features"`
}

// Artifact is a trained model with everything needed to score raw vectors.
// It is only valid together with the Manifest carrying the same ModelID.
type Artifact struct {
	ModelID        string                 `json:"model_id"`
	CreatedAt      time.Time              `json:"created_at"`
	FeatureCount   int                    `json:"feature_count"`
	Classifier     classifier.Model       `json:"classifier"`
	Encoders       map[string][]string    `json:"encoders"`
	Hyperparams    classifier.Hyperparams `json:"hyperparams"`
	PositiveWeight float64                `json:"positive_weight"`
	TrainRows      int                    `json:"train_rows"`
	ValidationRows int                    `json:"validation_rows"`
	// ValidationAUC is nil when the validation partition held a single class.
	ValidationAUC *float64 `json:"validation_auc,omitempty"`
}

// AUC returns the validation AUC, or NaN when it was undefined.
func (a *Artifact) AUC() float64 {
	if a.ValidationAUC == nil {
		return math.NaN()
	}
	return *a.ValidationAUC
}
