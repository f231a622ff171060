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
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dolthub/verdb/libraries/tablecore/predicate"
	"github.com/dolthub/verdb/libraries/tablecore/row"
	"github.com/dolthub/verdb/libraries/tablecore/schema"
	"github.com/dolthub/verdb/store/snapshots"
	"github.com/dolthub/verdb/store/verr"
	"github.com/dolthub/verdb/store/versions"
)

// MaxFragmentRows is the largest number of rows written into one fragment. Larger batches are split.
var MaxFragmentRows = 64 * 1024

var errNoChange = errors.New("no rows changed")

// WriteOption configures a single write.
type WriteOption func(*writeOpts)

type writeOpts struct {
	metadata map[string]string
}

// WithMetadata attaches |md| to the version created by the write.
func WithMetadata(md map[string]string) WriteOption {
	return func(wo *writeOpts) {
		wo.metadata = md
	}
}

func applyWriteOpts(opts []WriteOption) writeOpts {
	var wo writeOpts
	for _, opt := range opts {
		opt(&wo)
	}
	return wo
}

// rewriteFunc returns the replacement for a matched row, or false to drop it.
type rewriteFunc func(r row.Row) (row.Row, bool, error)

// buildFunc computes the fragments and schema of a new version from the previous latest version.
type buildFunc func(ctx context.Context, p versions.Pending, prev *state) ([]snapshots.FragmentRef, schema.Schema, error)

func (t *Table) requireLatest() error {
	t.mu.RLock()
	pin := t.pin
	t.mu.RUnlock()

	if p, ok := pin.(Pinned); ok {
		return verr.ErrNotAtLatest.New(t.name, p.Version)
	}
	return nil
}

// Add appends the rows of |batch| as a new version. The handle must be following the latest version. A batch
// without a schema is read with the table's schema.
func (t *Table) Add(ctx context.Context, batch row.Batch, opts ...WriteOption) (versions.Version, error) {
	if err := t.requireLatest(); err != nil {
		return versions.Version{}, err
	}

	return t.commit(ctx, versions.OpAppend, opts, func(ctx context.Context, p versions.Pending, prev *state) ([]snapshots.FragmentRef, schema.Schema, error) {
		if batch.Schema.Len() > 0 && !batch.Schema.Equal(prev.sch) {
			return nil, schema.Schema{}, verr.ErrSchemaMismatch.New(fmt.Sprintf("batch schema %s does not match table schema %s", batch.Schema, prev.sch))
		}

		rows, err := coerceRows(prev.sch, batch.Rows)
		if err != nil {
			return nil, schema.Schema{}, err
		}

		added, err := t.putRows(ctx, prev.sch, rows)
		if err != nil {
			return nil, schema.Schema{}, err
		}

		frags := make([]snapshots.FragmentRef, 0, len(prev.snap.Fragments)+len(added))
		frags = append(frags, prev.snap.Fragments...)
		frags = append(frags, added...)
		return frags, prev.sch, nil
	})
}

// Update sets the columns named in |values| on every row matching |where|, returning the new version and the
// number of rows updated. When no row matches, no version is written and the latest version is returned.
func (t *Table) Update(ctx context.Context, where string, values map[string]any, opts ...WriteOption) (versions.Version, uint64, error) {
	return t.rewrite(ctx, versions.OpUpdate, where, opts, func(sch schema.Schema) (rewriteFunc, error) {
		idxs := make([]int, 0, len(values))
		vals := make([]any, 0, len(values))
		for name, v := range values {
			i, ok := sch.Index(name)
			if !ok {
				return nil, verr.ErrSchemaMismatch.New("unknown column " + name)
			}
			coerced, err := row.CoerceValue(sch.Columns[i], v)
			if err != nil {
				return nil, err
			}
			idxs = append(idxs, i)
			vals = append(vals, coerced)
		}

		return func(r row.Row) (row.Row, bool, error) {
			updated := append(row.Row(nil), r...)
			for j, i := range idxs {
				updated[i] = vals[j]
			}
			return updated, true, nil
		}, nil
	})
}

// UpdateExprs is Update with each new value computed by an expression over the matched row.
func (t *Table) UpdateExprs(ctx context.Context, where string, exprs map[string]string, opts ...WriteOption) (versions.Version, uint64, error) {
	return t.rewrite(ctx, versions.OpUpdate, where, opts, func(sch schema.Schema) (rewriteFunc, error) {
		idxs := make([]int, 0, len(exprs))
		compiled := make([]*predicate.Expr, 0, len(exprs))
		for name, expr := range exprs {
			i, ok := sch.Index(name)
			if !ok {
				return nil, verr.ErrSchemaMismatch.New("unknown column " + name)
			}
			e, err := predicate.CompileExpr(sch, expr)
			if err != nil {
				return nil, err
			}
			idxs = append(idxs, i)
			compiled = append(compiled, e)
		}

		return func(r row.Row) (row.Row, bool, error) {
			updated := append(row.Row(nil), r...)
			for j, i := range idxs {
				v, err := compiled[j].Eval(r)
				if err != nil {
					return nil, false, err
				}
				coerced, err := row.CoerceValue(sch.Columns[i], v)
				if err != nil {
					return nil, false, err
				}
				updated[i] = coerced
			}
			return updated, true, nil
		}, nil
	})
}

// Delete removes every row matching |where|, returning the new version and the number of rows deleted. When no
// row matches, no version is written and the latest version is returned.
func (t *Table) Delete(ctx context.Context, where string, opts ...WriteOption) (versions.Version, uint64, error) {
	return t.rewrite(ctx, versions.OpDelete, where, opts, func(schema.Schema) (rewriteFunc, error) {
		return func(row.Row) (row.Row, bool, error) {
			return nil, false, nil
		}, nil
	})
}

func (t *Table) rewrite(ctx context.Context, op versions.Op, where string, opts []WriteOption, prepare func(schema.Schema) (rewriteFunc, error)) (versions.Version, uint64, error) {
	if err := t.requireLatest(); err != nil {
		return versions.Version{}, 0, err
	}

	var affected uint64
	ver, err := t.commit(ctx, op, opts, func(ctx context.Context, p versions.Pending, prev *state) ([]snapshots.FragmentRef, schema.Schema, error) {
		affected = 0

		pred, err := predicate.Compile(prev.sch, where)
		if err != nil {
			return nil, schema.Schema{}, err
		}
		fn, err := prepare(prev.sch)
		if err != nil {
			return nil, schema.Schema{}, err
		}

		frags, err := t.readFragments(ctx, prev)
		if err != nil {
			return nil, schema.Schema{}, err
		}

		// untouched fragments are shared with the previous snapshot
		out := make([]snapshots.FragmentRef, 0, len(frags))
		for i, rows := range frags {
			changed := false
			kept := make([]row.Row, 0, len(rows))
			for _, r := range rows {
				matched, err := pred.Eval(r)
				if err != nil {
					return nil, schema.Schema{}, err
				}
				if !matched {
					kept = append(kept, r)
					continue
				}

				affected++
				changed = true
				replacement, keep, err := fn(r)
				if err != nil {
					return nil, schema.Schema{}, err
				}
				if keep {
					kept = append(kept, replacement)
				}
			}

			if !changed {
				out = append(out, prev.snap.Fragments[i])
				continue
			}

			refs, err := t.putRows(ctx, prev.sch, kept)
			if err != nil {
				return nil, schema.Schema{}, err
			}
			out = append(out, refs...)
		}

		if affected == 0 {
			return nil, schema.Schema{}, errNoChange
		}
		return out, prev.sch, nil
	})

	if errors.Is(err, errNoChange) {
		latest, err := t.log.Latest(ctx)
		return latest, 0, t.observe(err)
	} else if err != nil {
		return versions.Version{}, 0, err
	}
	return ver, affected, nil
}

// Restore writes the data of the pinned version as a new latest version and returns the handle to following.
// A handle that is already following is left alone and the latest version is returned.
func (t *Table) Restore(ctx context.Context, opts ...WriteOption) (versions.Version, error) {
	t.mu.RLock()
	pin, pinned := t.pin, t.pinned
	t.mu.RUnlock()

	if _, ok := pin.(Pinned); !ok {
		latest, err := t.log.Latest(ctx)
		return latest, t.observe(err)
	}

	ver, err := t.commit(ctx, versions.OpRestore, opts, func(ctx context.Context, p versions.Pending, prev *state) ([]snapshots.FragmentRef, schema.Schema, error) {
		return append([]snapshots.FragmentRef(nil), pinned.snap.Fragments...), pinned.sch, nil
	})
	if err != nil {
		return versions.Version{}, err
	}

	t.CheckoutLatest()
	t.logger.WithFields(logrus.Fields{"version": ver.Version, "restored": pinned.version.Version}).Info("restored version")
	return ver, nil
}

// Reset writes |batch| as version 1 of a new lineage, retiring the table's current history. Retired versions stay
// in storage and are listed by Lineages. The handle is returned to following.
func (t *Table) Reset(ctx context.Context, batch row.Batch, op versions.Op, opts ...WriteOption) (versions.Version, error) {
	ctx, span := tracer.Start(ctx, "table.Reset", trace.WithAttributes(
		attribute.String("table", t.name),
		attribute.String("op", string(op))))
	defer span.End()

	if batch.Schema.Len() == 0 {
		return versions.Version{}, verr.ErrSchemaMismatch.New("a new table needs a schema")
	}
	rows, err := coerceRows(batch.Schema, batch.Rows)
	if err != nil {
		return versions.Version{}, err
	}

	start := time.Now()
	wo := applyWriteOpts(opts)
	ver, err := t.log.StartLineageFunc(ctx, func(ctx context.Context, p versions.Pending) (versions.Entry, error) {
		frags, err := t.putRows(ctx, batch.Schema, rows)
		if err != nil {
			return versions.Entry{}, err
		}
		return t.writeSnapshot(ctx, p, batch.Schema, frags, op, wo.metadata)
	})
	if err != nil {
		return versions.Version{}, t.observe(err)
	}

	t.CheckoutLatest()
	t.metrics.commit(string(op), start)
	t.logger.WithFields(logrus.Fields{"version": ver.Version, "lineage": ver.Lineage, "rows": len(rows)}).Debug("started lineage")
	return ver, nil
}

// commit appends a version built from the current latest one.
func (t *Table) commit(ctx context.Context, op versions.Op, opts []WriteOption, build buildFunc) (versions.Version, error) {
	ctx, span := tracer.Start(ctx, "table.Commit", trace.WithAttributes(
		attribute.String("table", t.name),
		attribute.String("op", string(op))))
	defer span.End()

	start := time.Now()
	wo := applyWriteOpts(opts)
	ver, err := t.log.AppendFunc(ctx, func(ctx context.Context, p versions.Pending) (versions.Entry, error) {
		if p.Previous == nil {
			return versions.Entry{}, verr.ErrTableNotFound.New(t.name)
		}

		prev, err := t.load(ctx, *p.Previous)
		if err != nil {
			return versions.Entry{}, err
		}

		frags, sch, err := build(ctx, p, prev)
		if err != nil {
			return versions.Entry{}, err
		}
		return t.writeSnapshot(ctx, p, sch, frags, op, wo.metadata)
	})
	if err != nil {
		return versions.Version{}, t.observe(err)
	}

	t.metrics.commit(string(op), start)
	t.logger.WithFields(logrus.Fields{"version": ver.Version, "op": op}).Debug("committed version")
	return ver, nil
}

func (t *Table) writeSnapshot(ctx context.Context, p versions.Pending, sch schema.Schema, frags []snapshots.FragmentRef, op versions.Op, md map[string]string) (versions.Entry, error) {
	schData, err := sch.Marshal()
	if err != nil {
		return versions.Entry{}, err
	}

	snap := snapshots.Snapshot{
		Table:     t.name,
		Lineage:   p.Lineage,
		Version:   p.Version,
		CreatedAt: p.Timestamp,
		Schema:    schData,
		Fragments: frags,
	}
	ref, err := snapshots.NewRef(&snap)
	if err != nil {
		return versions.Entry{}, err
	}

	if err := t.snaps.Put(ctx, ref, snap); err != nil {
		return versions.Entry{}, err
	}
	return versions.Entry{Snapshot: ref.Addr, Op: op, Metadata: md}, nil
}

// putRows writes |rows| as one or more fragments of at most MaxFragmentRows rows.
func (t *Table) putRows(ctx context.Context, sch schema.Schema, rows []row.Row) ([]snapshots.FragmentRef, error) {
	var refs []snapshots.FragmentRef
	for len(rows) > 0 {
		n := len(rows)
		if n > MaxFragmentRows {
			n = MaxFragmentRows
		}

		data, err := row.EncodeFragment(sch, rows[:n])
		if err != nil {
			return nil, verr.ErrSchemaMismatch.New(err.Error())
		}
		ref, err := t.snaps.PutFragment(ctx, data, uint64(n))
		if err != nil {
			return nil, err
		}

		refs = append(refs, ref)
		rows = rows[n:]
	}
	return refs, nil
}

func coerceRows(sch schema.Schema, rows []row.Row) ([]row.Row, error) {
	out := make([]row.Row, len(rows))
	for i, r := range rows {
		coerced, err := row.Coerce(sch, r)
		if err != nil {
			return nil, err
		}
		out[i] = coerced
	}
	return out, nil
}
