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

package blobstore

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dolthub/fslock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	lockFileName   = "LOCK"
	tempFilePrefix = "bs_tmp_"

	// every blob file starts with a header line holding the blob's version
	versionHeaderLen = 36 + 1
)

// LockTimeout bounds how long a LocalBlobstore waits for the directory lock held by another process.
var LockTimeout = 30 * time.Second

// LocalBlobstore is a Blobstore implementation that uses the local filesystem. Each blob is one file whose first
// line is the blob's version. Writes go to a temp file which is renamed over the blob file while holding the
// directory lock, so readers always see a complete blob.
type LocalBlobstore struct {
	RootDir string

	mu sync.Mutex
}

var _ Blobstore = &LocalBlobstore{}

// NewLocalBlobstore returns a LocalBlobstore rooted at |dir|, creating the directory if needed.
func NewLocalBlobstore(dir string) (*LocalBlobstore, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, err
	}
	return &LocalBlobstore{RootDir: dir}, nil
}

// Path returns the root directory of the blobstore.
func (bs *LocalBlobstore) Path() string {
	return bs.RootDir
}

func (bs *LocalBlobstore) blobPath(key string) (string, error) {
	clean := filepath.ToSlash(filepath.Clean(key))
	if key == "" || clean != key || strings.HasPrefix(clean, "../") || strings.HasPrefix(clean, "/") || clean == lockFileName {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(bs.RootDir, filepath.FromSlash(clean)), nil
}

// Exists returns true if a blob keyed by |key| exists.
func (bs *LocalBlobstore) Exists(ctx context.Context, key string) (bool, error) {
	path, err := bs.blobPath(key)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, nil
}

// Get returns a reader for the requested portion of the blob keyed by |key| along with its version.
func (bs *LocalBlobstore) Get(ctx context.Context, key string, br BlobRange) (io.ReadCloser, string, error) {
	path, err := bs.blobPath(key)
	if err != nil {
		return nil, "", err
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, "", NotFound{key}
	} else if err != nil {
		return nil, "", err
	}

	ver, err := readVersionHeader(f)
	if err != nil {
		f.Close()
		return nil, "", errors.Wrapf(err, "reading version of blob %s", key)
	}

	if br.isAllRange() {
		return f, ver, nil
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, "", err
	}

	posBR := br.positiveRange(info.Size() - versionHeaderLen)
	if _, err := f.Seek(versionHeaderLen+posBR.offset, io.SeekStart); err != nil {
		f.Close()
		return nil, "", err
	}

	return struct {
		io.Reader
		io.Closer
	}{io.LimitReader(f, posBR.length), f}, ver, nil
}

// Put unconditionally writes the blob keyed by |key|.
func (bs *LocalBlobstore) Put(ctx context.Context, key string, totalSize int64, reader io.Reader) (string, error) {
	return bs.write(ctx, key, reader, nil)
}

// CheckAndPut writes the blob keyed by |key| only if its current version matches |expectedVersion|.
func (bs *LocalBlobstore) CheckAndPut(ctx context.Context, expectedVersion, key string, totalSize int64, reader io.Reader) (string, error) {
	return bs.write(ctx, key, reader, func(path string) error {
		current, err := currentVersion(path)
		if err != nil {
			return err
		}
		if current != expectedVersion {
			return CheckAndPutError{key, expectedVersion, current}
		}
		return nil
	})
}

func (bs *LocalBlobstore) write(ctx context.Context, key string, reader io.Reader, check func(path string) error) (string, error) {
	path, err := bs.blobPath(key)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return "", err
	}

	ver := uuid.New().String()

	// Write a temporary blob file, to be renamed over the blob path upon success.
	tempPath, err := func() (string, error) {
		temp, err := os.CreateTemp(filepath.Dir(path), tempFilePrefix)
		if err != nil {
			return "", err
		}
		defer temp.Close()

		if _, err := io.WriteString(temp, ver+"\n"); err != nil {
			return temp.Name(), err
		}
		if _, err := io.Copy(temp, reader); err != nil {
			return temp.Name(), err
		}
		return temp.Name(), temp.Sync()
	}()
	if tempPath != "" {
		defer os.Remove(tempPath) // If we rename below, this will be a no-op
	}
	if err != nil {
		return "", err
	}

	unlock, err := bs.lock(ctx)
	if err != nil {
		return "", err
	}
	defer unlock()

	if check != nil {
		if err := check(path); err != nil {
			return "", err
		}
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := os.Rename(tempPath, path); err != nil {
		return "", err
	}

	return ver, nil
}

// lock takes both the in-process mutex and the directory lock file, retrying the file lock until |ctx| is done
// or LockTimeout elapses.
func (bs *LocalBlobstore) lock(ctx context.Context) (func(), error) {
	bs.mu.Lock()

	lck := fslock.New(filepath.Join(bs.RootDir, lockFileName))

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Millisecond
	b.MaxInterval = 100 * time.Millisecond
	b.MaxElapsedTime = LockTimeout
	b.Reset()

	err := backoff.Retry(lck.TryLock, backoff.WithContext(b, ctx))
	if err != nil {
		bs.mu.Unlock()
		return nil, errors.Wrapf(err, "acquiring lock on %s", bs.RootDir)
	}

	return func() {
		lck.Unlock()
		bs.mu.Unlock()
	}, nil
}

func readVersionHeader(r io.Reader) (string, error) {
	header := make([]byte, versionHeaderLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return "", err
	}
	if header[versionHeaderLen-1] != '\n' {
		return "", errors.New("malformed blob header")
	}
	return string(header[:versionHeaderLen-1]), nil
}

// currentVersion returns the version of the blob at |path|, or "" if it does not exist.
func currentVersion(path string) (string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return "", nil
	} else if err != nil {
		return "", err
	}
	defer f.Close()

	return readVersionHeader(bufio.NewReader(f))
}
