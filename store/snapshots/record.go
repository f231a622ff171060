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

package snapshots

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/golang/snappy"

	"github.com/dolthub/verdb/store/verr"
)

type recordKind byte

const (
	kindFragment recordKind = 1
	kindSnapshot recordKind = 2

	kindSize     = 1
	checksumSize = 8
)

// encodeRecord lays out a record as |kind|snappy(data)|xxhash64|, with the checksum covering the kind byte and the
// compressed payload.
func encodeRecord(kind recordKind, data []byte) []byte {
	raw := make([]byte, kindSize, kindSize+snappy.MaxEncodedLen(len(data))+checksumSize)
	raw[0] = byte(kind)

	compressed := snappy.Encode(raw[kindSize:cap(raw)], data)
	raw = raw[:kindSize+len(compressed)]

	var sum [checksumSize]byte
	binary.BigEndian.PutUint64(sum[:], xxhash.Sum64(raw))
	return append(raw, sum[:]...)
}

// decodeRecord verifies and decompresses a record read from |key|.
func decodeRecord(key string, kind recordKind, buff []byte) ([]byte, error) {
	if len(buff) < kindSize+checksumSize {
		return nil, verr.ErrCorruptRecord.New(key, "record too short")
	}

	dataLen := len(buff) - checksumSize
	chksum := binary.BigEndian.Uint64(buff[dataLen:])
	if chksum != xxhash.Sum64(buff[:dataLen]) {
		return nil, verr.ErrCorruptRecord.New(key, "checksum error")
	}

	if recordKind(buff[0]) != kind {
		return nil, verr.ErrCorruptRecord.New(key, "unexpected record kind")
	}

	data, err := snappy.Decode(nil, buff[kindSize:dataLen])
	if err != nil {
		return nil, verr.ErrCorruptRecord.New(key, err.Error())
	}
	return data, nil
}
