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

// Package hash implements the content addresses used for row fragments,
// snapshot records and manifest locks.
//
// A Hash is the first 20 bytes of the SHA-512 digest of the addressed bytes.
// Its string form is 32 characters of base32 using the lowercase alphabet
// 0-9a-v, which keeps addresses safe for use in blob keys and file names.
package hash

import (
	"bytes"
	"crypto/sha512"
	"encoding/base32"
	"fmt"
	"regexp"
)

const (
	// ByteLen is the number of bytes in a Hash.
	ByteLen = 20

	// StringLen is the number of characters needed to represent a Hash as a string.
	StringLen = 32
)

var (
	encoding  = base32.NewEncoding("0123456789abcdefghijklmnopqrstuv")
	pattern   = regexp.MustCompile(fmt.Sprintf("^[0-9a-v]{%d}$", StringLen))
	emptyHash = Hash{}
)

// Hash is a content address.
type Hash [ByteLen]byte

// Of computes the Hash of |data|.
func Of(data []byte) Hash {
	r := sha512.Sum512(data)
	h := Hash{}
	copy(h[:], r[:ByteLen])
	return h
}

// New creates a Hash from a byte slice which must be ByteLen long.
func New(data []byte) Hash {
	if len(data) != ByteLen {
		panic(fmt.Sprintf("invalid hash length %d", len(data)))
	}
	h := Hash{}
	copy(h[:], data)
	return h
}

// MaybeParse parses a string representing a hash, returning false if it is not valid.
func MaybeParse(s string) (Hash, bool) {
	if !pattern.MatchString(s) {
		return emptyHash, false
	}
	data, err := encoding.DecodeString(s)
	if err != nil || len(data) != ByteLen {
		return emptyHash, false
	}
	return New(data), true
}

// Parse parses a string representing a hash and panics if it is not valid.
func Parse(s string) Hash {
	h, ok := MaybeParse(s)
	if !ok {
		panic("could not parse hash: " + s)
	}
	return h
}

// IsEmpty returns true if this Hash is the zero value.
func (h Hash) IsEmpty() bool {
	return h == emptyHash
}

// String returns the base32 encoding of the hash.
func (h Hash) String() string {
	return encoding.EncodeToString(h[:])
}

// Less compares two hashes byte-wise.
func (h Hash) Less(other Hash) bool {
	return bytes.Compare(h[:], other[:]) < 0
}

// MarshalText implements encoding.TextMarshaler so hashes encode as their
// string form in JSON documents.
func (h Hash) MarshalText() ([]byte, error) {
	if h.IsEmpty() {
		return []byte{}, nil
	}
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*h = emptyHash
		return nil
	}
	parsed, ok := MaybeParse(string(b))
	if !ok {
		return fmt.Errorf("invalid hash %q", string(b))
	}
	*h = parsed
	return nil
}
