// Package hashing computes content signatures of the files in a release.
package hashing

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

const (
	AlgoSHA256 = "SHA256"
	AlgoMD5    = "MD5"

	chunkSize = 4096
)

// ChunkObserver sees every chunk streamed through a Hasher.
type ChunkObserver interface {
	Observe(chunk []byte)
}

type Hasher struct {
	Algo string
}

func NewHasher(algo string) (Hasher, error) {
	algo = strings.ToUpper(algo)
	if algo == "" {
		algo = AlgoSHA256
	}
	if _, err := newHash(algo); err != nil {
		return Hasher{}, err
	}
	return Hasher{Algo: algo}, nil
}

func newHash(algo string) (hash.Hash, error) {
	switch algo {
	case AlgoSHA256, "":
		return sha256.New(), nil
	case AlgoMD5:
		return md5.New(), nil
	}
	return nil, fmt.Errorf("unsupported hash algorithm %q", algo)
}

// HashReader streams r in 4 KiB chunks and returns the lowercase hex digest.
func (h Hasher) HashReader(r io.Reader, observers ...ChunkObserver) (string, error) {
	digest, err := newHash(h.Algo)
	if err != nil {
		return "", err
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			digest.Write(chunk)
			for _, observer := range observers {
				observer.Observe(chunk)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("could not read content: %w", err)
		}
	}

	return hex.EncodeToString(digest.Sum(nil)), nil
}

func (h Hasher) HashFile(path string, observers ...ChunkObserver) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("could not open %s: %w", path, err)
	}
	defer f.Close()

	return h.HashReader(f, observers...)
}

// VersionChecker records whether the version string appears in the
// streamed content. Matches spanning two chunks are detected.
type VersionChecker struct {
	needle    []byte
	tail      []byte
	Contained bool
}

func NewVersionChecker(version string) *VersionChecker {
	return &VersionChecker{needle: []byte(version)}
}

func (c *VersionChecker) Observe(chunk []byte) {
	if c.Contained || len(c.needle) == 0 {
		return
	}

	window := append(c.tail, chunk...)
	if bytes.Contains(window, c.needle) {
		c.Contained = true
		c.tail = nil
		return
	}

	keep := len(c.needle) - 1
	if keep > len(window) {
		keep = len(window)
	}
	c.tail = append(c.tail[:0:0], window[len(window)-keep:]...)
}
