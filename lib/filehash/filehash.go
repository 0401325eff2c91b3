// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package filehash computes BLAKE3 digests of transferred files. The
// server hashes the bytes as they stream onto the wire and announces
// the digest in transfer_complete; the receiver hashes its destination
// file and compares. The hex string form is the canonical format used
// on the wire and in log output.
package filehash

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// Hasher accumulates a BLAKE3 digest over streamed bytes. Wrap the
// wire writer with io.MultiWriter(writer, hasher) so the digest covers
// exactly the bytes sent.
type Hasher struct {
	inner *blake3.Hasher
}

// NewHasher creates an empty Hasher.
func NewHasher() *Hasher {
	return &Hasher{inner: blake3.New()}
}

// Write feeds bytes into the digest. Never returns an error.
func (h *Hasher) Write(p []byte) (int, error) {
	return h.inner.Write(p)
}

// SumHex returns the hex-encoded digest of everything written so far.
func (h *Hasher) SumHex() string {
	return hex.EncodeToString(h.inner.Sum(nil))
}

// File computes the hex BLAKE3 digest of the file at path. The file is
// streamed through the hash in chunks (via io.Copy) to keep memory
// usage constant regardless of file size.
func File(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()

	hasher := NewHasher()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hasher.SumHex(), nil
}
