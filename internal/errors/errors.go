// Package errors defines the stable error code system for eddev.
package errors

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"
)

// Code is a stable error code string.
type Code string

// Error codes. Stable public contract.
const (
	EUsage    Code = "E_USAGE"
	EInternal Code = "E_INTERNAL"

	// Validation errors: raised before any provisioning begins.
	EMissingEnv                 Code = "E_MISSING_ENV"
	EInvalidOption              Code = "E_INVALID_OPTION"
	ERecipeNotFound             Code = "E_RECIPE_NOT_FOUND"
	ENoMatchingVersion          Code = "E_NO_MATCHING_VERSION"
	EUndeterminedRuntimeVersion Code = "E_UNDETERMINED_RUNTIME_VERSION"
	EInvalidEnvName             Code = "E_INVALID_ENV_NAME"
	ERootNotEmpty               Code = "E_ROOT_NOT_EMPTY"
	EPullRequestNotFound        Code = "E_PULL_REQUEST_NOT_FOUND"
	ERegistryUnavailable        Code = "E_REGISTRY_UNAVAILABLE"
	EDdevNotInstalled           Code = "E_DDEV_NOT_INSTALLED"
	EGitNotInstalled            Code = "E_GIT_NOT_INSTALLED"

	// Stage errors: raised by the provisioning pipeline.
	ERootPrepareFailed     Code = "E_ROOT_PREPARE_FAILED"
	EDdevConfigFailed      Code = "E_DDEV_CONFIG_FAILED"
	EComposerCreateFailed  Code = "E_COMPOSER_CREATE_FAILED"
	EComposerInstallFailed Code = "E_COMPOSER_INSTALL_FAILED"
	EComposerRequireFailed Code = "E_COMPOSER_REQUIRE_FAILED"
	EFilesOverlayFailed    Code = "E_FILES_OVERLAY_FAILED"
	ECheckoutFailed        Code = "E_CHECKOUT_FAILED"
	EBuildFailed           Code = "E_BUILD_FAILED"
	EGitFailed             Code = "E_GIT_FAILED"
)

// EddevError is the standard error type for eddev errors.
type EddevError struct {
	Code    Code
	Msg     string
	Cause   error
	Details map[string]string // optional structured context
}

// Error returns the stable error format: "CODE: message".
func (e *EddevError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *EddevError) Unwrap() error {
	return e.Cause
}

// New creates a new EddevError with the given code and message.
func New(code Code, msg string) error {
	return &EddevError{Code: code, Msg: msg}
}

// NewWithDetails creates a new EddevError with code, message, and details.
// Details map is copied (nil if empty).
func NewWithDetails(code Code, msg string, details map[string]string) error {
	return &EddevError{Code: code, Msg: msg, Details: copyDetails(details)}
}

// Wrap creates a new EddevError wrapping an underlying error.
func Wrap(code Code, msg string, err error) error {
	return &EddevError{Code: code, Msg: msg, Cause: err}
}

// WrapWithDetails creates a new EddevError wrapping an underlying error with details.
func WrapWithDetails(code Code, msg string, err error, details map[string]string) error {
	return &EddevError{Code: code, Msg: msg, Cause: err, Details: copyDetails(details)}
}

// GetCode extracts the error code from an error, or empty string if not an EddevError.
func GetCode(err error) Code {
	var ee *EddevError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

// AsEddevError returns (*EddevError, true) if err is or wraps an EddevError.
func AsEddevError(err error) (*EddevError, bool) {
	var ee *EddevError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}

func copyDetails(details map[string]string) map[string]string {
	if len(details) == 0 {
		return nil
	}
	cp := make(map[string]string, len(details))
	for k, v := range details {
		cp[k] = v
	}
	return cp
}

// ExitCode returns the appropriate exit code for an error.
// Returns 0 if err is nil, 2 for E_USAGE, 1 for all other errors.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if GetCode(err) == EUsage {
		return 2
	}
	return 1
}

var errorLabel = color.New(color.FgWhite, color.BgRed, color.Bold)

// Print writes the error to w as an ERROR block:
//
//	[ERROR] <message>
//	error_code: <CODE>
//	<detail>: <value>
//
// Details are printed in key order. The cause is printed last when present.
func Print(w io.Writer, err error) {
	if err == nil {
		return
	}
	var ee *EddevError
	if !errors.As(err, &ee) {
		fmt.Fprintf(w, "%s %s\n", errorLabel.Sprint(" ERROR "), err.Error())
		return
	}

	fmt.Fprintf(w, "%s %s\n", errorLabel.Sprint(" ERROR "), ee.Msg)
	fmt.Fprintf(w, "error_code: %s\n", ee.Code)

	keys := make([]string, 0, len(ee.Details))
	for k := range ee.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s: %s\n", k, ee.Details[k])
	}

	if ee.Cause != nil {
		fmt.Fprintf(w, "cause: %s\n", ee.Cause.Error())
	}
}
