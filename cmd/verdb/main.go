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

// verdb is a command line client for versioned table databases.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/attic-labs/kingpin"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/dolthub/verdb/libraries/errhand"
	"github.com/dolthub/verdb/libraries/tablecore/db"
	"github.com/dolthub/verdb/libraries/tablecore/dbcfg"
	"github.com/dolthub/verdb/libraries/tablecore/dbfactory"
)

// cliEnv is what every command runs against.
type cliEnv struct {
	db     *db.Database
	stdin  io.Reader
	stdout io.Writer
	logger *logrus.Entry
}

type handler func(ctx context.Context, e *cliEnv) error

// commandFunc registers one command on |app| and returns the handler run when it is selected.
type commandFunc func(app *kingpin.Application) (*kingpin.CmdClause, handler)

var commands = []commandFunc{
	createCmd,
	addCmd,
	tablesCmd,
	versionsCmd,
	showCmd,
	updateCmd,
	deleteCmd,
	restoreCmd,
	tagCmd,
	dropCmd,
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	app := kingpin.New("verdb", "verdb keeps every version of your tables.")
	app.HelpFlag.Short('h')

	configPath := app.Flag("config", "YAML configuration file").Short('c').String()
	dbArg := app.Flag("db", "storage url of the database, or an alias from "+AliasFile).Short('d').String()
	verbose := app.Flag("verbose", "log at debug level and print detailed errors").Short('v').Bool()
	noColor := app.Flag("no-color", "disable colored output").Bool()

	handlers := map[string]handler{}
	for _, cmdFunc := range commands {
		clause, h := cmdFunc(app)
		handlers[clause.FullCommand()] = h
	}

	selected, err := app.Parse(args)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err.Error())
		return 1
	}
	if *noColor {
		color.NoColor = true
	}

	vErr := errhand.PanicToVError("verdb crashed", func() errhand.VerboseError {
		return errhand.FromError(execute(ctx, handlers[selected], *configPath, *dbArg, *verbose, stdin, stdout))
	})
	if vErr != nil {
		if *verbose {
			fmt.Fprintln(stderr, vErr.Verbose())
		} else {
			fmt.Fprintln(stderr, vErr.Error())
		}
		if vErr.ShouldPrintUsage() {
			fmt.Fprintf(stderr, "see 'verdb help %s'\n", selected)
		}
		return 1
	}
	return 0
}

func execute(ctx context.Context, h handler, configPath, dbArg string, verbose bool, stdin io.Reader, stdout io.Writer) error {
	cfg := dbcfg.Default()
	if configPath != "" {
		var err error
		if cfg, err = dbcfg.Load(configPath); err != nil {
			return errhand.BuildDError("error: failed to load configuration").AddCause(err).Build()
		}
	}
	if verbose {
		cfg.Log.Level = logrus.DebugLevel.String()
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return err
	}

	urlStr, err := resolveURL(cfg, dbArg)
	if err != nil {
		return err
	}

	opts, err := cfg.DBOptions(logrus.NewEntry(logger), nil)
	if err != nil {
		return errhand.BuildDError("error: invalid %s", dbcfg.VersionDateEnv).AddCause(err).Build()
	}

	database, err := dbfactory.Connect(ctx, urlStr, cfg.Params(), opts)
	if err != nil {
		return errhand.BuildDError("error: failed to connect to %s", urlStr).AddCause(err).Build()
	}
	defer database.Close()

	return h(ctx, &cliEnv{db: database, stdin: stdin, stdout: stdout, logger: opts.Logger})
}

// resolveURL picks the database url: the --db flag, an alias or url, wins over the default alias, which wins over
// the configuration file.
func resolveURL(cfg *dbcfg.Config, dbArg string) (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	aliases, err := FindAliases(wd)
	if err == ErrNoAliasFile {
		aliases = nil
	} else if err != nil {
		return "", err
	}

	if urlStr, ok := aliases.Resolve(strings.TrimSpace(dbArg)); ok {
		return urlStr, nil
	}
	return cfg.Storage.URL, nil
}
