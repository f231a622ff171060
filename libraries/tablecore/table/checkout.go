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

package table

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dolthub/verdb/store/versions"
)

// Pin is the checkout state of a table handle: either Following or Pinned.
type Pin interface {
	isPin()
	fmt.Stringer
}

// Following resolves every read against the newest version of the table. It is the state of a newly opened
// handle and the only state that accepts writes.
type Following struct{}

// Pinned resolves every read against one fixed version.
type Pinned struct {
	Version uint64
}

func (Following) isPin() {}
func (Pinned) isPin()    {}

func (Following) String() string {
	return "latest"
}

func (p Pinned) String() string {
	return fmt.Sprintf("version %d", p.Version)
}

// Pin returns the current checkout state of the handle.
func (t *Table) Pin() Pin {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pin
}

// Checkout pins the handle to version |v|. The version must exist in the log and its snapshot must be readable;
// otherwise the handle is left as it was.
func (t *Table) Checkout(ctx context.Context, v uint64) error {
	ctx, span := tracer.Start(ctx, "table.Checkout", trace.WithAttributes(
		attribute.String("table", t.name),
		attribute.Int64("version", int64(v))))
	defer span.End()

	ver, err := t.log.Get(ctx, v)
	if err != nil {
		return t.observe(err)
	}
	return t.checkout(ctx, ver)
}

// CheckoutTag pins the handle to the version named by tag |name|.
func (t *Table) CheckoutTag(ctx context.Context, name string) error {
	ver, err := t.log.TagVersion(ctx, name)
	if err != nil {
		return t.observe(err)
	}
	return t.checkout(ctx, ver)
}

func (t *Table) checkout(ctx context.Context, ver versions.Version) error {
	st, err := t.load(ctx, ver)
	if err != nil {
		return t.observe(err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.pin = Pinned{Version: ver.Version}
	t.pinned = st
	t.metrics.checkout()

	t.logger.WithField("version", ver.Version).Debug("checked out version")
	return nil
}

// CheckoutLatest returns the handle to following the newest version. It always succeeds and is idempotent.
func (t *Table) CheckoutLatest() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pin = Following{}
	t.pinned = nil
}
