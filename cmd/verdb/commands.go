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

package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/attic-labs/kingpin"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/dolthub/verdb/libraries/errhand"
	"github.com/dolthub/verdb/libraries/tablecore/db"
	"github.com/dolthub/verdb/libraries/tablecore/row"
	"github.com/dolthub/verdb/libraries/tablecore/schema"
	"github.com/dolthub/verdb/libraries/tablecore/table"
	"github.com/dolthub/verdb/store/versions"
)

func addTableArg(cmd *kingpin.CmdClause) *string {
	return cmd.Arg("table", "name of the table").Required().String()
}

func addRowsFlags(cmd *kingpin.CmdClause) (file *string, meta *[]string) {
	file = cmd.Flag("file", "JSON lines file to read rows from, stdin when omitted").Short('f').String()
	meta = addMetaFlag(cmd)
	return file, meta
}

func addMetaFlag(cmd *kingpin.CmdClause) *[]string {
	return cmd.Flag("meta", "'<key>=<value>' metadata recorded on the new version, may be repeated").Short('m').Strings()
}

func parseMeta(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	md := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, errhand.BuildDError("error: invalid metadata '%s'", pair).AddDetails("metadata is given as <key>=<value>").SetPrintUsage().Build()
		}
		md[k] = v
	}
	return md, nil
}

func (e *cliEnv) readRows(file string, sch schema.Schema) (row.Batch, error) {
	if file == "" || file == "-" {
		return readBatch(e.stdin, sch)
	}

	f, err := os.Open(file)
	if err != nil {
		return row.Batch{}, err
	}
	defer f.Close()
	return readBatch(f, sch)
}

func createCmd(app *kingpin.Application) (*kingpin.CmdClause, handler) {
	cmd := app.Command("create", "Create a table from an initial batch of rows, which becomes version 1.")
	name := addTableArg(cmd)
	mode := cmd.Flag("mode", "what to do if the table exists").Default(db.Create.String()).Enum(db.Create.String(), db.Overwrite.String(), db.ExistOk.String())
	schemaStr := cmd.Flag("schema", "column list such as 'id:int,author:string?', inferred from the rows when omitted").Short('s').String()
	file, meta := addRowsFlags(cmd)

	return cmd, func(ctx context.Context, e *cliEnv) error {
		md, err := parseMeta(*meta)
		if err != nil {
			return err
		}

		var sch schema.Schema
		if *schemaStr != "" {
			if sch, err = schema.Parse(*schemaStr); err != nil {
				return errhand.BuildDError("error: invalid schema '%s'", *schemaStr).AddCause(err).SetPrintUsage().Build()
			}
		}

		batch, err := e.readRows(*file, sch)
		if err != nil {
			return errhand.BuildDError("error: failed to read rows").AddCause(err).Build()
		}

		createMode, _ := db.CreateModeFromStr(*mode)
		tbl, err := e.db.CreateTable(ctx, *name, batch, db.CreateOptions{Mode: createMode, Metadata: md})
		if err != nil {
			return err
		}

		v, err := tbl.Version(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "%s is at version %d with %s rows\n", *name, v, humanize.Comma(int64(batch.Len())))
		return nil
	}
}

func addCmd(app *kingpin.Application) (*kingpin.CmdClause, handler) {
	cmd := app.Command("add", "Append rows to a table as a new version.")
	name := addTableArg(cmd)
	file, meta := addRowsFlags(cmd)

	return cmd, func(ctx context.Context, e *cliEnv) error {
		md, err := parseMeta(*meta)
		if err != nil {
			return err
		}

		tbl, err := e.db.OpenTable(ctx, *name)
		if err != nil {
			return err
		}

		sch, err := tbl.Schema(ctx)
		if err != nil {
			return err
		}

		batch, err := e.readRows(*file, sch)
		if err != nil {
			return errhand.BuildDError("error: failed to read rows").AddCause(err).Build()
		}

		v, err := tbl.Add(ctx, batch, table.WithMetadata(md))
		if err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "added %s rows to %s, now at version %d\n", humanize.Comma(int64(batch.Len())), *name, v.Version)
		return nil
	}
}

func tablesCmd(app *kingpin.Application) (*kingpin.CmdClause, handler) {
	cmd := app.Command("tables", "List the tables of the database.")

	return cmd, func(ctx context.Context, e *cliEnv) error {
		names, err := e.db.TableNames(ctx)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
		for _, name := range names {
			tbl, err := e.db.OpenTable(ctx, name)
			if err != nil {
				return err
			}
			v, err := tbl.Version(ctx)
			if err != nil {
				return err
			}
			n, err := tbl.CountRows(ctx, "")
			if err != nil {
				return err
			}
			fmt.Fprintf(tw, "%s\tversion %d\t%s rows\n", name, v, humanize.Comma(int64(n)))
		}
		return tw.Flush()
	}
}

func versionsCmd(app *kingpin.Application) (*kingpin.CmdClause, handler) {
	cmd := app.Command("versions", "List the versions of a table, oldest first.")
	name := addTableArg(cmd)
	lineage := cmd.Flag("lineage", "list a retired lineage instead of the current one").String()
	lineages := cmd.Flag("lineages", "list the table's lineages").Bool()

	return cmd, func(ctx context.Context, e *cliEnv) error {
		tbl, err := e.db.OpenTable(ctx, *name)
		if err != nil {
			return err
		}

		if *lineages {
			ls, err := tbl.Lineages(ctx)
			if err != nil {
				return err
			}
			return printLineages(e, ls)
		}

		var vs []versions.Version
		if *lineage != "" {
			vs, err = tbl.LineageVersions(ctx, *lineage)
		} else {
			vs, err = tbl.ListVersions(ctx)
		}
		if err != nil {
			return err
		}

		tags, err := tbl.ListTags(ctx)
		if err != nil {
			return err
		}
		return printVersions(e, vs, tagsByVersion(tags))
	}
}

func tagsByVersion(tags []versions.Tag) map[uint64][]string {
	byVersion := make(map[uint64][]string)
	for _, tag := range tags {
		byVersion[tag.Version] = append(byVersion[tag.Version], tag.Name)
	}
	return byVersion
}

func printVersions(e *cliEnv, vs []versions.Version, tags map[uint64][]string) error {
	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	for _, v := range vs {
		label := color.YellowString("version %d", v.Version)
		if names := tags[v.Version]; len(names) > 0 {
			label += color.CyanString(" (%s)", strings.Join(names, ", "))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", label, v.Op, humanize.Time(v.Timestamp), formatMeta(v.Metadata))
	}
	return tw.Flush()
}

func printLineages(e *cliEnv, ls []versions.Lineage) error {
	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	for _, l := range ls {
		state := "retired " + humanize.Time(l.Retired)
		if l.Current {
			state = color.GreenString("current")
		}
		fmt.Fprintf(tw, "%s\t%d versions\tstarted %s\t%s\n", l.ID, l.Versions, humanize.Time(l.Started), state)
	}
	return tw.Flush()
}

func formatMeta(md map[string]string) string {
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + md[k]
	}
	return strings.Join(pairs, " ")
}

func showCmd(app *kingpin.Application) (*kingpin.CmdClause, handler) {
	cmd := app.Command("show", "Print the rows of a table as JSON lines.")
	name := addTableArg(cmd)
	version := cmd.Flag("version", "show this version instead of the latest").Uint64()
	tag := cmd.Flag("tag", "show the version named by this tag").String()
	where := cmd.Flag("where", "only rows matching this expression").Short('w').String()
	limit := cmd.Flag("limit", "print at most this many rows, 0 for all").Short('n').Int()
	count := cmd.Flag("count", "print the number of matching rows instead of the rows").Bool()
	showSchema := cmd.Flag("schema", "print the schema instead of the rows").Bool()

	return cmd, func(ctx context.Context, e *cliEnv) error {
		tbl, err := e.db.OpenTable(ctx, *name)
		if err != nil {
			return err
		}
		defer tbl.Close()

		if *version != 0 && *tag != "" {
			return errhand.BuildDError("error: --version and --tag are mutually exclusive").SetPrintUsage().Build()
		} else if *version != 0 {
			err = tbl.Checkout(ctx, *version)
		} else if *tag != "" {
			err = tbl.CheckoutTag(ctx, *tag)
		}
		if err != nil {
			return err
		}

		sch, err := tbl.Schema(ctx)
		if err != nil {
			return err
		}

		switch {
		case *showSchema:
			_, err = fmt.Fprintln(e.stdout, sch.String())
			return err
		case *count:
			n, err := tbl.CountRows(ctx, *where)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(e.stdout, n)
			return err
		}

		rows, err := tbl.Filter(ctx, *where)
		if err != nil {
			return err
		}
		if *limit > 0 && len(rows) > *limit {
			rows = rows[:*limit]
		}
		return writeJSONLines(e.stdout, sch, rows)
	}
}

func updateCmd(app *kingpin.Application) (*kingpin.CmdClause, handler) {
	cmd := app.Command("update", "Set columns of the rows matching an expression, as a new version.")
	name := addTableArg(cmd)
	where := cmd.Flag("where", "rows to update, all rows when omitted").Short('w').String()
	sets := cmd.Flag("set", "'<column>=<expression>' computed from the row being updated, may be repeated").Required().Strings()
	meta := addMetaFlag(cmd)

	return cmd, func(ctx context.Context, e *cliEnv) error {
		md, err := parseMeta(*meta)
		if err != nil {
			return err
		}

		exprs := make(map[string]string, len(*sets))
		for _, set := range *sets {
			col, expr, ok := strings.Cut(set, "=")
			if !ok || col == "" {
				return errhand.BuildDError("error: invalid --set '%s'", set).SetPrintUsage().Build()
			}
			exprs[strings.TrimSpace(col)] = expr
		}

		tbl, err := e.db.OpenTable(ctx, *name)
		if err != nil {
			return err
		}

		v, n, err := tbl.UpdateExprs(ctx, *where, exprs, table.WithMetadata(md))
		if err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "updated %s rows, %s is at version %d\n", humanize.Comma(int64(n)), *name, v.Version)
		return nil
	}
}

func deleteCmd(app *kingpin.Application) (*kingpin.CmdClause, handler) {
	cmd := app.Command("delete", "Delete the rows matching an expression, as a new version.")
	name := addTableArg(cmd)
	where := cmd.Flag("where", "rows to delete").Short('w').Required().String()
	meta := addMetaFlag(cmd)

	return cmd, func(ctx context.Context, e *cliEnv) error {
		md, err := parseMeta(*meta)
		if err != nil {
			return err
		}

		tbl, err := e.db.OpenTable(ctx, *name)
		if err != nil {
			return err
		}

		v, n, err := tbl.Delete(ctx, *where, table.WithMetadata(md))
		if err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "deleted %s rows, %s is at version %d\n", humanize.Comma(int64(n)), *name, v.Version)
		return nil
	}
}

func restoreCmd(app *kingpin.Application) (*kingpin.CmdClause, handler) {
	cmd := app.Command("restore", "Write the data of an older version as the new latest version.")
	name := addTableArg(cmd)
	version := cmd.Arg("version", "version to restore").Required().Uint64()
	meta := addMetaFlag(cmd)

	return cmd, func(ctx context.Context, e *cliEnv) error {
		md, err := parseMeta(*meta)
		if err != nil {
			return err
		}

		tbl, err := e.db.OpenTable(ctx, *name)
		if err != nil {
			return err
		}
		if err := tbl.Checkout(ctx, *version); err != nil {
			return err
		}

		v, err := tbl.Restore(ctx, table.WithMetadata(md))
		if err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "restored version %d of %s as version %d\n", *version, *name, v.Version)
		return nil
	}
}

func tagCmd(app *kingpin.Application) (*kingpin.CmdClause, handler) {
	cmd := app.Command("tag", "Name a version of a table, or list and delete tags.")
	name := addTableArg(cmd)
	tagName := cmd.Arg("tag", "name of the tag, tags are listed when omitted").String()
	version := cmd.Arg("version", "version to tag, the latest when omitted").Uint64()
	del := cmd.Flag("delete", "delete the tag").Bool()

	return cmd, func(ctx context.Context, e *cliEnv) error {
		tbl, err := e.db.OpenTable(ctx, *name)
		if err != nil {
			return err
		}

		switch {
		case *tagName == "":
			tags, err := tbl.ListTags(ctx)
			if err != nil {
				return err
			}
			for _, tag := range tags {
				fmt.Fprintf(e.stdout, "%s\t%d\n", tag.Name, tag.Version)
			}
			return nil
		case *del:
			return tbl.DeleteTag(ctx, *tagName)
		}

		v := *version
		if v == 0 {
			if v, err = tbl.Version(ctx); err != nil {
				return err
			}
		}
		if err := tbl.CreateTag(ctx, *tagName, v); err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "tagged version %d of %s as %s\n", v, *name, *tagName)
		return nil
	}
}

func dropCmd(app *kingpin.Application) (*kingpin.CmdClause, handler) {
	cmd := app.Command("drop", "Remove a table from the database catalog. Its history stays in storage.")
	name := addTableArg(cmd)

	return cmd, func(ctx context.Context, e *cliEnv) error {
		if err := e.db.DropTable(ctx, *name); err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "dropped %s\n", *name)
		return nil
	}
}
