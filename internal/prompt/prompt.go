// internal/prompt/prompt.go
package prompt

import (
	"context"
	"errors"
)

var (
	// ErrDismissed is returned when the user closes a picker or prompt without answering.
	ErrDismissed = errors.New("prompt: dismissed by user")
	// ErrNoPrompter is returned when an operation needs the user but nobody can be asked.
	ErrNoPrompter = errors.New("prompt: no interactive session")
)

// PermissionRequest asks the user to allow access to a known location.
type PermissionRequest struct {
	HandleID string `json:"handle_id"`
	Name     string `json:"name"`
	Mode     string `json:"mode"`
}

// SaveRequest asks the user where to write a file.
type SaveRequest struct {
	SuggestedName string   `json:"suggested_name"`
	Description   string   `json:"description"`
	Extensions    []string `json:"extensions"`
	MIMEType      string   `json:"mime_type"`
}

// OpenRequest asks the user which file to read. Files lists the candidates
// currently in the workspace.
type OpenRequest struct {
	Description string   `json:"description"`
	Extensions  []string `json:"extensions,omitempty"`
	Files       []string `json:"files"`
}

// Prompter is whoever answers on behalf of the user. Each method may block
// until the user acts or ctx ends.
type Prompter interface {
	ConfirmPermission(ctx context.Context, req PermissionRequest) (bool, error)
	ChooseSaveTarget(ctx context.Context, req SaveRequest) (string, error)
	ChooseOpenTarget(ctx context.Context, req OpenRequest) (string, error)
}

type prompterKey struct{}

// WithPrompter attaches the prompter serving the current request.
func WithPrompter(ctx context.Context, p Prompter) context.Context {
	return context.WithValue(ctx, prompterKey{}, p)
}

// FromContext returns the request's prompter or ErrNoPrompter.
func FromContext(ctx context.Context) (Prompter, error) {
	p, ok := ctx.Value(prompterKey{}).(Prompter)
	if !ok || p == nil {
		return nil, ErrNoPrompter
	}
	return p, nil
}
