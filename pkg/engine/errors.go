package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind separates actionable user mistakes from internal failures.
type ErrorKind string

const (
	// ErrorKindUser indicates a misconfiguration the user can fix.
	// User errors carry a remediation hint.
	ErrorKindUser ErrorKind = "user"

	// ErrorKindSystem indicates an unexpected internal or plugin failure.
	ErrorKindSystem ErrorKind = "system"
)

// FxError is the classified error surfaced by the engine and its plugins.
type FxError struct {
	// Kind is the user/system classification.
	Kind ErrorKind `json:"kind"`

	// Code is the stable error code used for programmatic handling.
	Code string `json:"code"`

	// Source names the component or plugin that raised the error.
	Source string `json:"source,omitempty"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Hint is a remediation suggestion shown to the user.
	Hint string `json:"hint,omitempty"`

	// HelpLink points to documentation for the error.
	HelpLink string `json:"helpLink,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *FxError) Error() string {
	var b strings.Builder
	if e.Source != "" {
		fmt.Fprintf(&b, "[%s.%s] ", e.Source, e.Code)
	} else {
		fmt.Fprintf(&b, "[%s] ", e.Code)
	}
	b.WriteString(e.Message)
	if e.Err != nil && e.Err.Error() != e.Message {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *FxError) Unwrap() error {
	return e.Err
}

// Is matches on kind and code so sentinels work with errors.Is.
func (e *FxError) Is(target error) bool {
	t, ok := target.(*FxError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// NewUserError creates a new user error.
func NewUserError(source, code, message string) *FxError {
	return &FxError{
		Kind:    ErrorKindUser,
		Code:    code,
		Source:  source,
		Message: message,
	}
}

// NewSystemError creates a new system error.
func NewSystemError(source, code, message string) *FxError {
	return &FxError{
		Kind:    ErrorKindSystem,
		Code:    code,
		Source:  source,
		Message: message,
	}
}

// WithHint adds a remediation hint.
func (e *FxError) WithHint(hint string) *FxError {
	e.Hint = hint
	return e
}

// WithHelpLink adds a documentation link.
func (e *FxError) WithHelpLink(link string) *FxError {
	e.HelpLink = link
	return e
}

// WithCause sets the underlying error.
func (e *FxError) WithCause(err error) *FxError {
	e.Err = err
	return e
}

// WithSource sets the component that raised the error.
func (e *FxError) WithSource(source string) *FxError {
	e.Source = source
	return e
}

// WithDetail adds a detail field to the error context.
func (e *FxError) WithDetail(key string, value interface{}) *FxError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Error codes.
const (
	ErrCodePluginNotFound          = "PluginNotFound"
	ErrCodePluginRegistered        = "PluginAlreadyRegistered"
	ErrCodeResourceAlreadyAdded    = "ResourceAlreadyAddedError"
	ErrCodeTemplateConflict        = "TemplateConflict"
	ErrCodeTemplateKindMismatch    = "TemplateKindMismatch"
	ErrCodeInvalidInput            = "InvalidInput"
	ErrCodeCancelProvision         = "CancelProvision"
	ErrCodeUnhandled               = "UnhandledError"
	ErrCodePolicyViolation         = "PolicyViolation"
	ErrCodeIllegalTransition       = "IllegalStateTransition"
	ErrCodeTaskNotSupported        = "TaskNotSupported"
	ErrCodeEnvNotSpecified         = "EnvNotSpecified"
	ErrCodeEnvNotFound             = "EnvNotFound"
	ErrCodeEnvNotProvisioned       = "EnvNotProvisioned"
	ErrCodeInvalidEnvFile          = "InvalidEnvFile"
	ErrCodeInvalidProjectSettings  = "InvalidProjectSettings"
	ErrCodePathNotExist            = "PathNotExist"
	ErrCodeNotSupportedProjectType = "NotSupportedProjectType"
	ErrCodeWriteFile               = "WriteFileError"
	ErrCodeReadFile                = "ReadFileError"
)

// SourceCore is the error source for failures raised by the engine itself.
const SourceCore = "core"

// Sentinels for errors.Is. Only Kind and Code take part in matching.
var (
	ErrPluginNotFound          = &FxError{Kind: ErrorKindSystem, Code: ErrCodePluginNotFound}
	ErrResourceAlreadyAdded    = &FxError{Kind: ErrorKindUser, Code: ErrCodeResourceAlreadyAdded}
	ErrTemplateConflict        = &FxError{Kind: ErrorKindSystem, Code: ErrCodeTemplateConflict}
	ErrTemplateKindMismatch    = &FxError{Kind: ErrorKindSystem, Code: ErrCodeTemplateKindMismatch}
	ErrInvalidInput            = &FxError{Kind: ErrorKindUser, Code: ErrCodeInvalidInput}
	ErrProvisionCancelled      = &FxError{Kind: ErrorKindUser, Code: ErrCodeCancelProvision}
	ErrUnhandled               = &FxError{Kind: ErrorKindSystem, Code: ErrCodeUnhandled}
	ErrPolicyViolation         = &FxError{Kind: ErrorKindUser, Code: ErrCodePolicyViolation}
	ErrIllegalTransition       = &FxError{Kind: ErrorKindSystem, Code: ErrCodeIllegalTransition}
	ErrTaskNotSupported        = &FxError{Kind: ErrorKindUser, Code: ErrCodeTaskNotSupported}
	ErrEnvNotSpecified         = &FxError{Kind: ErrorKindUser, Code: ErrCodeEnvNotSpecified}
	ErrEnvNotFound             = &FxError{Kind: ErrorKindUser, Code: ErrCodeEnvNotFound}
	ErrEnvNotProvisioned       = &FxError{Kind: ErrorKindUser, Code: ErrCodeEnvNotProvisioned}
	ErrInvalidEnvFile          = &FxError{Kind: ErrorKindUser, Code: ErrCodeInvalidEnvFile}
	ErrInvalidProjectSettings  = &FxError{Kind: ErrorKindUser, Code: ErrCodeInvalidProjectSettings}
	ErrPathNotExist            = &FxError{Kind: ErrorKindUser, Code: ErrCodePathNotExist}
	ErrNotSupportedProjectType = &FxError{Kind: ErrorKindUser, Code: ErrCodeNotSupportedProjectType}
)

// PluginNotFoundError reports a lookup of an unregistered plugin id.
func PluginNotFoundError(id string) *FxError {
	return NewSystemError(SourceCore, ErrCodePluginNotFound,
		fmt.Sprintf("plugin %q is not registered", id)).
		WithDetail("plugin", id)
}

// ResourceAlreadyAddedError reports a module already hosted by the requested plugin.
func ResourceAlreadyAddedError(plugin string, module int) *FxError {
	return NewUserError(SourceCore, ErrCodeResourceAlreadyAdded,
		fmt.Sprintf("resource %s is already added to module %d", plugin, module)).
		WithHint("choose another module or another resource type").
		WithDetail("plugin", plugin).
		WithDetail("module", module)
}

// TemplateConflictError reports two plugins contributing the same template name.
func TemplateConflictError(section, name, first, second string) *FxError {
	return NewSystemError(SourceCore, ErrCodeTemplateConflict,
		fmt.Sprintf("template %s %q is contributed by both %s and %s", section, name, first, second)).
		WithDetail("section", section).
		WithDetail("name", name)
}

// InvalidInputError reports malformed operation inputs.
func InvalidInputError(reason string) *FxError {
	return NewUserError(SourceCore, ErrCodeInvalidInput, "invalid input: "+reason)
}

// CancelError is the signal a plugin returns when the user aborts provisioning.
func CancelError(source string) *FxError {
	return NewUserError(source, ErrCodeCancelProvision, "provisioning cancelled by user")
}

// UnhandledError wraps an unrecognised error while keeping its message.
func UnhandledError(source string, err error) *FxError {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return NewSystemError(source, ErrCodeUnhandled, msg).
		WithHint("retry the operation; report an issue if the problem persists").
		WithCause(err)
}

// IsCancellation reports whether err is the user-cancellation signal.
func IsCancellation(err error) bool {
	return errors.Is(err, ErrProvisionCancelled) || errors.Is(err, context.Canceled)
}

// IsUserError returns true if the error is classified as a user error.
func IsUserError(err error) bool {
	var e *FxError
	if errors.As(err, &e) {
		return e.Kind == ErrorKindUser
	}
	return false
}

// IsSystemError returns true if the error is classified as a system error.
// Unclassified errors count as system errors.
func IsSystemError(err error) bool {
	if err == nil {
		return false
	}
	var e *FxError
	if errors.As(err, &e) {
		return e.Kind == ErrorKindSystem
	}
	return true
}

// Code returns the error code carried by err, or ErrCodeUnhandled.
func Code(err error) string {
	var e *FxError
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeUnhandled
}

// ClassifyPluginError normalises an error returned across a plugin boundary.
//
// Cancellation is returned untouched. A *FxError keeps its code and hint and
// gets the plugin attached as source when it has none. Anything else becomes
// an UnhandledError that preserves the original message.
func ClassifyPluginError(plugin string, err error) error {
	if err == nil {
		return nil
	}
	if IsCancellation(err) {
		return err
	}
	if fe, ok := err.(*FxError); ok {
		if fe.Source != "" {
			return fe
		}
		c := *fe
		c.Source = plugin
		return &c
	}
	var fe *FxError
	if errors.As(err, &fe) {
		return err
	}
	return UnhandledError(plugin, err)
}
