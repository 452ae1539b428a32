package nlu

import (
	"context"
	"time"
)

// Provider is the interface for natural-language understanding services.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// ExtractIntent pulls job details out of a transcript. The prior
	// record, if any, gives the model context for partial corrections.
	ExtractIntent(ctx context.Context, transcript string, prior *IntentRecord) (*IntentRecord, error)

	// ExtractName pulls a person's name out of a transcript,
	// returning the name and a confidence in [0,1].
	ExtractName(ctx context.Context, transcript string) (string, float64, error)

	// ResolveTime resolves a spoken time expression relative to ref.
	ResolveTime(ctx context.Context, transcript string, ref time.Time) (*TimeResult, error)

	// Classify picks the best-matching label for the transcript,
	// returning the label and a confidence in [0,1].
	Classify(ctx context.Context, transcript string, labels []string) (string, float64, error)

	// Answer produces a short spoken answer to a factual question,
	// grounded on the supplied business facts.
	Answer(ctx context.Context, question string, facts map[string]string) (string, error)
}
