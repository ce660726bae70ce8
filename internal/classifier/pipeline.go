package classifier

import (
	"context"
	"fmt"

	"github.com/akshitverma317/diagnoai/internal/imaging"
)

// specialistThreshold is the secondary probability at which the Edema specialist confirms.
const specialistThreshold = 0.5

const (
	NoteNormal        = "No signs of disease detected based on the analysis."
	NoteConsult       = "Please consult a medical professional for an accurate diagnosis."
	NoteSecondOpinion = "A second opinion suggests this is likely not Edema."
)

// Opinion is the secondary model's view of an Edema prediction.
type Opinion struct {
	ClassName  string  `json:"className"`
	Confidence float64 `json:"confidence"`
}

type Prediction struct {
	ClassName     string             `json:"className"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities"`
	Secondary     *Opinion           `json:"secondaryOpinion,omitempty"`
	// Specialist is set when the reported confidence comes from the Edema model.
	Specialist bool   `json:"specialist"`
	Agrees     bool   `json:"agrees"`
	Note       string `json:"note"`
}

// Pipeline runs the primary model and, for Edema only, the binary Edema model.
type Pipeline struct {
	primary   Model
	secondary Model
	pool      *Pool
}

func NewPipeline(primary, secondary Model, pool *Pool) *Pipeline {
	if pool == nil {
		pool = NewPool(1, 0)
	}
	return &Pipeline{primary: primary, secondary: secondary, pool: pool}
}

func (p *Pipeline) Classify(ctx context.Context, img imaging.PixelImage) (Prediction, error) {
	input := NewTensor(img)

	probs, err := p.pool.Predict(ctx, p.primary, input)
	if err != nil {
		return Prediction{}, fmt.Errorf("primary model: %w", err)
	}
	if len(probs) != len(PrimaryClasses) {
		return Prediction{}, fmt.Errorf("primary model: %w: got %d probabilities, want %d",
			ErrClassifierFailure, len(probs), len(PrimaryClasses))
	}
	if err := validProbabilities(probs); err != nil {
		return Prediction{}, fmt.Errorf("primary model: %w", err)
	}

	best := 0
	for i, prob := range probs {
		if prob > probs[best] {
			best = i
		}
	}

	prediction := Prediction{
		ClassName:     PrimaryClasses[best],
		Confidence:    probs[best],
		Probabilities: make(map[string]float64, len(probs)),
		Agrees:        true,
	}
	for i, class := range PrimaryClasses {
		prediction.Probabilities[class] = probs[i]
	}

	switch prediction.ClassName {
	case ClassNormal:
		prediction.Note = NoteNormal
		return prediction, nil
	case ClassEdema:
	default:
		prediction.Note = NoteConsult
		return prediction, nil
	}

	out, err := p.pool.Predict(ctx, p.secondary, input)
	if err != nil {
		return Prediction{}, fmt.Errorf("edema model: %w", err)
	}
	if len(out) == 0 {
		return Prediction{}, fmt.Errorf("edema model: %w: empty output", ErrClassifierFailure)
	}
	if err := validProbabilities(out[:1]); err != nil {
		return Prediction{}, fmt.Errorf("edema model: %w", err)
	}
	edema := out[0]

	// The label stays Edema either way; a disagreeing specialist only annotates it.
	if edema >= specialistThreshold {
		prediction.Confidence = edema
		prediction.Specialist = true
		prediction.Secondary = &Opinion{ClassName: ClassEdema, Confidence: edema}
		prediction.Note = NoteConsult
	} else {
		prediction.Agrees = false
		prediction.Secondary = &Opinion{ClassName: ClassNotEdema, Confidence: 1 - edema}
		prediction.Note = NoteSecondOpinion
	}
	return prediction, nil
}
