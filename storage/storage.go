// Package storage keeps uploaded files such as payment proofs.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrNotFound = errors.New("file not found")
	ErrTooLarge = errors.New("file too large")
	ErrFileType = errors.New("file type not allowed")
)

type FileInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	Owner       int64     `json:"owner"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

type Store interface {
	// Put stores r and returns info with ID, Size and UploadedAt filled in.
	Put(ctx context.Context, info FileInfo, r io.Reader) (FileInfo, error)
	Stat(ctx context.Context, id string) (FileInfo, error)
	Open(ctx context.Context, id string) (io.ReadCloser, FileInfo, error)
	Delete(ctx context.Context, id string) error
}

// Policy bounds what an upload may contain.
type Policy struct {
	MaxBytes int64
	Allowed  []string
}

var DefaultProofPolicy = Policy{
	MaxBytes: 5 * 1024 * 1024,
	Allowed: []string{
		"image/jpeg",
		"image/png",
		"image/webp",
		"image/gif",
		"application/pdf",
	},
}

const sniffLen = 3072

// Inspect detects the content type from the leading bytes and returns a
// reader replaying the whole body, capped at MaxBytes.
func (p Policy) Inspect(r io.Reader) (string, io.Reader, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", nil, err
	}
	head = head[:n]
	if n == 0 {
		return "", nil, fmt.Errorf("%w: empty file", ErrFileType)
	}

	mt := mimetype.Detect(head)
	if len(p.Allowed) > 0 && !allowed(mt, p.Allowed) {
		return "", nil, fmt.Errorf("%w: %s", ErrFileType, mt.String())
	}

	body := io.MultiReader(bytes.NewReader(head), r)
	if p.MaxBytes > 0 {
		body = &capReader{r: body, left: p.MaxBytes}
	}
	return mt.String(), body, nil
}

// allowed walks the detected type and its parents, so aliases such as
// image/x-png or parameterised types still match.
func allowed(mt *mimetype.MIME, list []string) bool {
	for m := mt; m != nil; m = m.Parent() {
		if mimetype.EqualsAny(m.String(), list...) {
			return true
		}
	}
	return false
}

// capReader fails with ErrTooLarge once more than left bytes are read.
type capReader struct {
	r    io.Reader
	left int64
}

func (c *capReader) Read(b []byte) (int, error) {
	n, err := c.r.Read(b)
	c.left -= int64(n)
	if c.left < 0 {
		return n, ErrTooLarge
	}
	return n, err
}

// countingReader records how many bytes passed through.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(b []byte) (int, error) {
	n, err := c.r.Read(b)
	c.n += int64(n)
	return n, err
}
