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
	"bufio"
	"encoding/base64"
	"io"
	"time"

	"github.com/goccy/go-json"

	"github.com/dolthub/verdb/libraries/tablecore/row"
	"github.com/dolthub/verdb/libraries/tablecore/schema"
)

// readJSONLines decodes a stream of JSON objects, one row each. Numbers are kept as json.Number so that integer
// columns survive the round trip.
func readJSONLines(r io.Reader) ([]map[string]any, error) {
	dec := json.NewDecoder(bufio.NewReader(r))
	dec.UseNumber()

	var maps []map[string]any
	for {
		var m map[string]any
		err := dec.Decode(&m)
		if err == io.EOF {
			return maps, nil
		} else if err != nil {
			return nil, err
		}
		maps = append(maps, m)
	}
}

// readBatch decodes rows from |r|. When |sch| has no columns the schema is inferred from the rows.
func readBatch(r io.Reader, sch schema.Schema) (row.Batch, error) {
	maps, err := readJSONLines(r)
	if err != nil {
		return row.Batch{}, err
	}

	if sch.Len() == 0 {
		sch, err = row.Infer(maps)
		if err != nil {
			return row.Batch{}, err
		}
	}
	return row.BatchFromMaps(sch, maps)
}

// writeJSONLines encodes |rows| as one JSON object per line.
func writeJSONLines(w io.Writer, sch schema.Schema, rows []row.Row) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, r := range rows {
		m := r.ToMap(sch)
		for k, v := range m {
			switch v := v.(type) {
			case []byte:
				m[k] = base64.StdEncoding.EncodeToString(v)
			case time.Time:
				m[k] = v.Format(time.RFC3339Nano)
			}
		}
		if err := enc.Encode(m); err != nil {
			return err
		}
	}
	return bw.Flush()
}
