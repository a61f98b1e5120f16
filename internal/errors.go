// Copyright 2024 Firekit Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package internal

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorCode represents the platform-wide error codes that can be raised by
// Firekit APIs.
type ErrorCode string

const (
	// InvalidArgument is a OnePlatform error code.
	InvalidArgument ErrorCode = "INVALID_ARGUMENT"

	// FailedPrecondition is a OnePlatform error code.
	FailedPrecondition ErrorCode = "FAILED_PRECONDITION"

	// OutOfRange is a OnePlatform error code.
	OutOfRange ErrorCode = "OUT_OF_RANGE"

	// Unauthenticated is a OnePlatform error code.
	Unauthenticated ErrorCode = "UNAUTHENTICATED"

	// PermissionDenied is a OnePlatform error code.
	PermissionDenied ErrorCode = "PERMISSION_DENIED"

	// NotFound is a OnePlatform error code.
	NotFound ErrorCode = "NOT_FOUND"

	// Aborted is a OnePlatform error code.
	Aborted ErrorCode = "ABORTED"

	// AlreadyExists is a OnePlatform error code.
	AlreadyExists ErrorCode = "ALREADY_EXISTS"

	// ResourceExhausted is a OnePlatform error code.
	ResourceExhausted ErrorCode = "RESOURCE_EXHAUSTED"

	// Cancelled is a OnePlatform error code.
	Cancelled ErrorCode = "CANCELLED"

	// DataLoss is a OnePlatform error code.
	DataLoss ErrorCode = "DATA_LOSS"

	// Unknown is a OnePlatform error code.
	Unknown ErrorCode = "UNKNOWN"

	// Internal is a OnePlatform error code.
	Internal ErrorCode = "INTERNAL_ERROR"

	// Unavailable is a OnePlatform error code.
	Unavailable ErrorCode = "UNAVAILABLE"

	// DeadlineExceeded is a OnePlatform error code.
	DeadlineExceeded ErrorCode = "DEADLINE_EXCEEDED"

	// Unimplemented is a OnePlatform error code.
	Unimplemented ErrorCode = "UNIMPLEMENTED"

	// CollectionUnavailable is a Firekit error code raised when a collection
	// handle cannot reach its underlying backend resource.
	CollectionUnavailable ErrorCode = "COLLECTION_UNAVAILABLE"

	// ReferenceUnavailable is a Firekit error code raised when a document
	// reference cannot reach its underlying backend resource.
	ReferenceUnavailable ErrorCode = "REFERENCE_UNAVAILABLE"
)

// retryableCodes is the closed set of codes for which a manual retry of the
// failed operation is sensible. Classification never triggers a retry by
// itself.
var retryableCodes = map[ErrorCode]bool{
	Unavailable:       true,
	DeadlineExceeded:  true,
	ResourceExhausted: true,
	Aborted:           true,
	Internal:          true,
}

// FirekitError is an error type containing an error code string and the
// collection or document path the failed operation targeted.
type FirekitError struct {
	ErrorCode ErrorCode
	String    string
	Path      string
	Err       error
}

func (fe *FirekitError) Error() string {
	return fe.String
}

// Unwrap returns the backend-native error this error was classified from.
func (fe *FirekitError) Unwrap() error {
	return fe.Err
}

// Retryable reports whether a manual retry of the operation that produced
// this error is sensible.
func (fe *FirekitError) Retryable() bool {
	return retryableCodes[fe.ErrorCode]
}

// HasPlatformErrorCode checks if the given error contains a specific error code.
func HasPlatformErrorCode(err error, code ErrorCode) bool {
	fe, ok := err.(*FirekitError)
	return ok && fe.ErrorCode == code
}

// IsRetryable checks if the given error carries a retryable error code.
func IsRetryable(err error) bool {
	fe, ok := err.(*FirekitError)
	return ok && fe.Retryable()
}

var grpcCodeToErrorCodes = map[codes.Code]ErrorCode{
	codes.InvalidArgument:    InvalidArgument,
	codes.FailedPrecondition: FailedPrecondition,
	codes.OutOfRange:         OutOfRange,
	codes.Unauthenticated:    Unauthenticated,
	codes.PermissionDenied:   PermissionDenied,
	codes.NotFound:           NotFound,
	codes.Aborted:            Aborted,
	codes.AlreadyExists:      AlreadyExists,
	codes.ResourceExhausted:  ResourceExhausted,
	codes.Canceled:           Cancelled,
	codes.DataLoss:           DataLoss,
	codes.Internal:           Internal,
	codes.Unavailable:        Unavailable,
	codes.DeadlineExceeded:   DeadlineExceeded,
	codes.Unimplemented:      Unimplemented,
}

// NewFirekitError classifies a backend-native error into a FirekitError.
//
// Errors carrying a gRPC status are mapped through the OnePlatform code
// table; anything else becomes UNKNOWN. An error that is already classified
// is returned unchanged.
func NewFirekitError(path string, err error) *FirekitError {
	if err == nil {
		return nil
	}
	if fe, ok := err.(*FirekitError); ok {
		return fe
	}

	code := Unknown
	msg := err.Error()
	if s, ok := status.FromError(err); ok {
		if mapped, ok := grpcCodeToErrorCodes[s.Code()]; ok {
			code = mapped
		}
		if s.Message() != "" {
			msg = s.Message()
		}
	}

	return &FirekitError{
		ErrorCode: code,
		String:    msg,
		Path:      path,
		Err:       err,
	}
}

// NewFirekitErrorWithCode creates a classified error with an explicit code,
// bypassing gRPC status inspection.
func NewFirekitErrorWithCode(code ErrorCode, path string, msg string, args ...interface{}) *FirekitError {
	return &FirekitError{
		ErrorCode: code,
		String:    fmt.Sprintf(msg, args...),
		Path:      path,
	}
}
