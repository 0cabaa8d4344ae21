package semantic

import "errors"

var (
	// ErrRetrievalUnavailable reports that query or document embedding
	// failed, so similarity search could not run.
	ErrRetrievalUnavailable = errors.New("embedding backend unavailable")

	// ErrGenerationUnavailable reports that answer generation failed after
	// retrieval had already succeeded.
	ErrGenerationUnavailable = errors.New("generation backend unavailable")
)
