// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package coreerr defines the error taxonomy shared across the write-path
// engine: fragment store, branch manager, prose chain, context builder,
// generation pipeline, and librarian scheduler.
//
// Every operation that can fail returns a *Error (or wraps one), whose Code
// is one of the sentinels below. Callers compare with errors.Is against the
// sentinel, not against the concrete *Error value.
package coreerr

import "fmt"

// Code identifies the category of a core error.
type Code string

const (
	// NotFound means a referenced entity is missing (story, fragment,
	// analysis, branch, provider).
	NotFound Code = "not_found"

	// InvalidArgument means an empty required field, unknown enum value,
	// or malformed id.
	InvalidArgument Code = "invalid_argument"

	// Conflict means deleting a non-archived fragment, switching to a
	// variation not present in a section, or creating a fragment whose id
	// already exists.
	Conflict Code = "conflict"

	// Protected means a write would remove a frozen-section substring or
	// modify a locked fragment. Returned from the tool layer only.
	Protected Code = "protected"

	// Unavailable means an outbound LLM error or unreachable model.
	Unavailable Code = "unavailable"

	// Internal means unexpected state: missing content root, JSON parse
	// failure, or similar.
	Internal Code = "internal"
)

// Error is the concrete error type returned by core operations.
type Error struct {
	Code      Code
	Op        string // operation that failed, e.g. "fragment.Create"
	Message   string
	Err       error // underlying error, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Op, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is allows errors.Is(err, coreerr.ErrNotFound) style sentinel comparisons
// by matching on Code rather than identity.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code == "" {
		return false
	}
	return e.Code == t.Code
}

// New builds an *Error for op/code with a formatted message.
func New(op string, code Code, format string, args ...any) *Error {
	return &Error{Op: op, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error that carries an underlying cause.
func Wrap(op string, code Code, err error, format string, args ...any) *Error {
	return &Error{Op: op, Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// Sentinels for errors.Is comparisons. Only Code is consulted by Is, so
// these are safe to compare against any *Error with a matching Code.
var (
	ErrNotFound         = &Error{Code: NotFound}
	ErrInvalidArgument  = &Error{Code: InvalidArgument}
	ErrConflict         = &Error{Code: Conflict}
	ErrProtected        = &Error{Code: Protected}
	ErrUnavailable      = &Error{Code: Unavailable}
	ErrInternal         = &Error{Code: Internal}
)

// CodeOf extracts the Code from err if it is (or wraps) a *Error, and
// reports whether one was found.
func CodeOf(err error) (Code, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Code, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return "", false
}
