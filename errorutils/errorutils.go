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

// Package errorutils provides functions for inspecting the classified errors
// raised by the Firekit SDK.
package errorutils

import "github.com/code-gio/firekit-go/internal"

func IsInvalidArgument(err error) bool {
	return hasPlatformErrorCode(err, internal.InvalidArgument)
}

func IsFailedPrecondition(err error) bool {
	return hasPlatformErrorCode(err, internal.FailedPrecondition)
}

func IsOutOfRange(err error) bool {
	return hasPlatformErrorCode(err, internal.OutOfRange)
}

func IsUnauthenticated(err error) bool {
	return hasPlatformErrorCode(err, internal.Unauthenticated)
}

func IsPermissionDenied(err error) bool {
	return hasPlatformErrorCode(err, internal.PermissionDenied)
}

func IsNotFound(err error) bool {
	return hasPlatformErrorCode(err, internal.NotFound)
}

func IsAborted(err error) bool {
	return hasPlatformErrorCode(err, internal.Aborted)
}

func IsAlreadyExists(err error) bool {
	return hasPlatformErrorCode(err, internal.AlreadyExists)
}

func IsResourceExhausted(err error) bool {
	return hasPlatformErrorCode(err, internal.ResourceExhausted)
}

func IsCancelled(err error) bool {
	return hasPlatformErrorCode(err, internal.Cancelled)
}

func IsDataLoss(err error) bool {
	return hasPlatformErrorCode(err, internal.DataLoss)
}

func IsInternal(err error) bool {
	return hasPlatformErrorCode(err, internal.Internal)
}

func IsUnavailable(err error) bool {
	return hasPlatformErrorCode(err, internal.Unavailable)
}

func IsDeadlineExceeded(err error) bool {
	return hasPlatformErrorCode(err, internal.DeadlineExceeded)
}

func IsUnimplemented(err error) bool {
	return hasPlatformErrorCode(err, internal.Unimplemented)
}

func IsCollectionUnavailable(err error) bool {
	return hasPlatformErrorCode(err, internal.CollectionUnavailable)
}

func IsReferenceUnavailable(err error) bool {
	return hasPlatformErrorCode(err, internal.ReferenceUnavailable)
}

func IsUnknown(err error) bool {
	return hasPlatformErrorCode(err, internal.Unknown)
}

// IsRetryable reports whether the given error carries one of the error codes
// for which a manual retry is sensible. It never triggers a retry by itself.
func IsRetryable(err error) bool {
	return internal.IsRetryable(err)
}

// Code returns the classified error code of the given error, or the empty
// string if the error was not raised by this SDK.
func Code(err error) internal.ErrorCode {
	if fe, ok := err.(*internal.FirekitError); ok {
		return fe.ErrorCode
	}
	return ""
}

// Path returns the collection or document path of the operation that raised
// the given error, if any.
func Path(err error) string {
	if fe, ok := err.(*internal.FirekitError); ok {
		return fe.Path
	}
	return ""
}

func hasPlatformErrorCode(err error, code internal.ErrorCode) bool {
	fe, ok := err.(*internal.FirekitError)
	return ok && fe.ErrorCode == code
}
