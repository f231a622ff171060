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

// Package verr defines the error kinds returned by the versioned table engine.
//
// Errors are returned to callers unwrapped so that a kind can be tested with
// its Is method, e.g. verr.ErrVersionNotFound.Is(err). Causes from the
// storage layer are attached with ErrStorage.Wrap.
package verr

import (
	"gopkg.in/src-d/go-errors.v1"
)

var (
	// ErrTableNotFound is returned when a named table does not exist in the database.
	ErrTableNotFound = errors.NewKind("table not found: %s")

	// ErrVersionNotFound is returned when a version is absent from a table's log or its snapshot is missing.
	ErrVersionNotFound = errors.NewKind("version %d not found in table %s")

	// ErrTagNotFound is returned when a tag name is not defined on a table.
	ErrTagNotFound = errors.NewKind("tag %s not found in table %s")

	// ErrLineageNotFound is returned when a lineage id is unknown to a table's log.
	ErrLineageNotFound = errors.NewKind("lineage %s not found in table %s")

	// ErrAlreadyExists is returned when creating a table or tag that already exists.
	ErrAlreadyExists = errors.NewKind("%s already exists: %s")

	// ErrDuplicateVersion is returned when a snapshot is written twice under the same reference.
	ErrDuplicateVersion = errors.NewKind("snapshot for version %d of table %s was already written")

	// ErrNotAtLatest is returned when writing through a handle pinned to a historical version.
	ErrNotAtLatest = errors.NewKind("table %s is checked out at version %d, checkout latest before writing")

	// ErrEmptyLog is returned by Latest on a log with no versions.
	ErrEmptyLog = errors.NewKind("version log for table %s is empty")

	// ErrConcurrentWrite is returned when another writer moved the tail of the version log.
	ErrConcurrentWrite = errors.NewKind("version log for table %s was modified by another writer")

	// ErrStorage wraps failures of the underlying persistence.
	ErrStorage = errors.NewKind("storage failure during %s")

	// ErrSchemaMismatch is returned when rows or an existing table do not match the expected schema.
	ErrSchemaMismatch = errors.NewKind("schema mismatch: %s")

	// ErrInvalidPredicate is returned when a filter expression does not compile or evaluate to a bool.
	ErrInvalidPredicate = errors.NewKind("invalid predicate %q: %s")

	// ErrInvalidTableName is returned for table names that cannot be used as storage keys.
	ErrInvalidTableName = errors.NewKind("invalid table name: %q")

	// ErrDatabaseClosed is returned by operations on a closed database.
	ErrDatabaseClosed = errors.NewKind("database %s is closed")

	// ErrCorruptRecord is returned when a stored record fails its checksum or cannot be decoded.
	ErrCorruptRecord = errors.NewKind("corrupt record %s: %s")
)

// IsNotFound returns true for any of the not-found kinds.
func IsNotFound(err error) bool {
	return ErrTableNotFound.Is(err) || ErrVersionNotFound.Is(err) || ErrTagNotFound.Is(err) ||
		ErrLineageNotFound.Is(err)
}

// IsRetryable returns true when the failed operation left no partial state and
// may be attempted again by the caller.
func IsRetryable(err error) bool {
	return ErrStorage.Is(err) || ErrConcurrentWrite.Is(err)
}
