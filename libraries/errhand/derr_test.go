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
	"errors"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolthub/verdb/store/verr"
)

func init() {
	color.NoColor = true
}

func TestBuildDError(t *testing.T) {
	cause := errors.New("disk full")
	vErr := BuildDError("failed to add rows to %s", "quotes").
		AddDetails("first").
		AddDetails("second %d", 2).
		AddCause(cause).
		Build()

	assert.Equal(t, "failed to add rows to quotes", vErr.Error())
	assert.Equal(t, "failed to add rows to quotes\nfirst\nsecond 2\ncause:\n\t\tdisk full", vErr.Verbose())
	assert.False(t, vErr.ShouldPrintUsage())
	assert.True(t, errors.Is(vErr, cause))
}

func TestNilBuilder(t *testing.T) {
	bdr := BuildIf(nil, "never")
	assert.Nil(t, bdr)
	assert.Nil(t, bdr.AddDetails("x").AddCause(errors.New("y")).SetPrintUsage())
	assert.Nil(t, bdr.Build())
}

func TestNestedVerbose(t *testing.T) {
	inner := BuildDError("inner").AddDetails("inner details").Build()
	outer := BuildIf(inner, "outer").Build()
	assert.Equal(t, "outer\ncause:\n\t\tinner\n\t\tinner details", outer.Verbose())
}

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil))

	vErr := FromError(verr.ErrNotAtLatest.New("quotes", 3))
	assert.Contains(t, vErr.Verbose(), "checkout the latest version")

	vErr = FromError(verr.ErrStorage.Wrap(errors.New("connection reset"), "append"))
	assert.Contains(t, vErr.Verbose(), "connection reset")
	assert.Contains(t, vErr.Verbose(), "can be retried")

	vErr = FromError(verr.ErrInvalidTableName.New("a/b"))
	assert.True(t, vErr.ShouldPrintUsage())

	same := BuildDError("already verbose").Build()
	assert.Equal(t, same, FromError(same))
}

func TestPanicToVError(t *testing.T) {
	vErr := PanicToVError("command panicked", func() VerboseError {
		panic("oh no")
	})
	require.NotNil(t, vErr)
	assert.Equal(t, "command panicked\noh no", vErr.Verbose())

	vErr = PanicToVError("command panicked", func() VerboseError {
		return nil
	})
	assert.Nil(t, vErr)
}
