package models

import "fmt"

// ValidationError marks a comment record that failed validation. Such
// records are skipped and counted, never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid comment: %s %s", e.Field, e.Reason)
}

// ValidateComment checks the fields ingestion requires before a comment
// may be stored.
func ValidateComment(c *Comment) error {
	switch {
	case c.SourcePlatform == "":
		return &ValidationError{Field: "source_platform", Reason: "is empty"}
	case c.NativeCommentID == "":
		return &ValidationError{Field: "native_comment_id", Reason: "is empty"}
	case c.Text == "":
		return &ValidationError{Field: "text", Reason: "is empty"}
	}
	return nil
}
