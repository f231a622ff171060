// Copyright 2026 Dolthub, Inc.
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

package errhand

import (
	"fmt"

	"github.com/dolthub/verdb/store/verr"
)

// FromError converts an error returned by the storage engine into a VerboseError with a hint for the user.
func FromError(err error) VerboseError {
	if err == nil {
		return nil
	}
	if verbose, ok := err.(VerboseError); ok {
		return verbose
	}

	bdr := BuildDError("error: %s", err.Error())
	switch {
	case verr.ErrNotAtLatest.Is(err):
		bdr.AddDetails("checkout the latest version of the table before writing to it.")
	case verr.ErrConcurrentWrite.Is(err):
		bdr.AddDetails("another process wrote to the table. The operation left no changes and can be retried.")
	case verr.ErrStorage.Is(err):
		bdr.AddDetails("the operation left no changes and can be retried.")
		bdr.AddCause(unwrap(err))
	case verr.ErrInvalidTableName.Is(err):
		bdr.AddDetails("table names start with a letter, digit or '_' and may contain '.', '-' and '_'.")
		bdr.SetPrintUsage()
	case verr.ErrCorruptRecord.Is(err):
		bdr.AddDetails("stored data failed its checksum. Check the storage backend for damage.")
	}
	return bdr.Build()
}

func unwrap(err error) error {
	switch e := err.(type) {
	case interface{ Cause() error }:
		return e.Cause()
	case interface{ Unwrap() error }:
		return e.Unwrap()
	}
	return nil
}

// PanicToVError runs |f|, converting a panic into a VerboseError with |errMsg| as its display message.
func PanicToVError(errMsg string, f func() VerboseError) (err VerboseError) {
	func() {
		defer func() {
			if r := recover(); r != nil {
				bdr := BuildDError("%s", errMsg)
				if recErr, ok := r.(error); ok {
					bdr.AddCause(recErr)
				} else {
					bdr.AddDetails("%s", fmt.Sprint(r))
				}

				err = bdr.Build()
			}
		}()
		err = f()
	}()

	return err
}
