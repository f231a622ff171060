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

// Package manifest stores small named documents that are replaced as a
// whole under optimistic locking. Each document carries a lock hash; an
// Update only succeeds when the caller names the lock it last read, so a
// writer that lost a race learns about it instead of clobbering the winner.
package manifest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/dolthub/verdb/store/hash"
)

// StorageVersion is the format version written at the head of every serialized document.
const StorageVersion = "1"

// ErrCorruptManifest is returned when a stored document cannot be parsed.
var ErrCorruptManifest = errors.New("corrupt manifest")

// Contents is one manifest document. Lock identifies this revision of the document.
type Contents struct {
	Lock hash.Hash
	Data []byte
}

// Manifest persists named documents with compare-and-swap semantics.
type Manifest interface {
	// Name returns a stable identifier for the backing storage.
	Name() string

	// ParseIfExists returns the document named |name|. If it does not exist, |exists| is false and the returned
	// contents are empty.
	ParseIfExists(ctx context.Context, name string) (exists bool, contents Contents, err error)

	// Update replaces the document named |name| with |newContents| if its current lock is |lastLock|. An empty
	// |lastLock| requires that the document does not exist yet. It returns the document as it stands after the
	// call: |newContents| on success, otherwise the upstream document, whose lock differs from newContents.Lock.
	Update(ctx context.Context, name string, lastLock hash.Hash, newContents Contents) (Contents, error)
}

// NewContents wraps |data| with a freshly generated lock.
func NewContents(data []byte) Contents {
	return Contents{Lock: GenerateLock(data), Data: data}
}

// GenerateLock returns a lock hash for a new revision holding |data|. Locks are unique even for equal data.
func GenerateLock(data []byte) hash.Hash {
	nonce := uuid.New()
	buf := make([]byte, 0, len(data)+len(nonce))
	buf = append(buf, nonce[:]...)
	buf = append(buf, data...)
	return hash.Of(buf)
}

// writeContents serializes |contents| as a header line "<storage version>:<lock>" followed by the raw data.
func writeContents(w io.Writer, contents Contents) error {
	if _, err := fmt.Fprintf(w, "%s:%s\n", StorageVersion, contents.Lock.String()); err != nil {
		return err
	}
	_, err := w.Write(contents.Data)
	return err
}

func marshalContents(contents Contents) []byte {
	buf := &bytes.Buffer{}
	// writes to a bytes.Buffer do not fail
	_ = writeContents(buf, contents)
	return buf.Bytes()
}

func parseContents(r io.Reader) (Contents, error) {
	br := bufio.NewReader(r)
	header, err := br.ReadString('\n')
	if err != nil {
		if err == io.EOF {
			return Contents{}, ErrCorruptManifest
		}
		return Contents{}, err
	}

	vers, lockStr, ok := strings.Cut(strings.TrimSuffix(header, "\n"), ":")
	if !ok || vers != StorageVersion {
		return Contents{}, ErrCorruptManifest
	}

	lock, ok := hash.MaybeParse(lockStr)
	if !ok {
		return Contents{}, ErrCorruptManifest
	}

	data, err := io.ReadAll(br)
	if err != nil {
		return Contents{}, err
	}

	return Contents{Lock: lock, Data: data}, nil
}
