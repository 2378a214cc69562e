// Package compress opens archived feeds and compresses finished tables.
package compress

import (
	"compress/bzip2"
	"io"
	"os"
	"path/filepath"
	"strings"

	units "github.com/docker/go-units"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	logging "github.com/op/go-logging"
	"github.com/pkg/errors"
)

var log = logging.MustGetLogger("compress")

var ErrUnknownFormat = errors.New("compress: unknown format")

type Format string

const (
	None Format = "none"
	Gzip Format = "gzip"
	Zstd Format = "zstd"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "", None:
		return None, nil
	case Gzip, Zstd:
		return f, nil
	}
	return None, errors.Wrapf(ErrUnknownFormat, "%q", s)
}

// Ext is the file name suffix written for f.
func (f Format) Ext() string {
	switch f {
	case Gzip:
		return ".gz"
	case Zstd:
		return ".zst"
	}
	return ""
}

type readCloser struct {
	io.Reader
	close []func() error
}

func (r *readCloser) Close() error {
	var first error
	for _, c := range r.close {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NewReader wraps r with the decompressor matching name's extension
// (.gz, .zst, .bz2). Any other name is read as-is.
func NewReader(r io.Reader, name string) (io.ReadCloser, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".gz", ".gzip":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, errors.Wrapf(err, "gzip %s", name)
		}
		return zr, nil
	case ".zst", ".zstd":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, errors.Wrapf(err, "zstd %s", name)
		}
		return zr.IOReadCloser(), nil
	case ".bz2":
		return io.NopCloser(bzip2.NewReader(r)), nil
	}
	return io.NopCloser(r), nil
}

// Open opens path for reading, decompressing by extension.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	zr, err := NewReader(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &readCloser{Reader: zr, close: []func() error{zr.Close, f.Close}}, nil
}

// Compressed reports whether path carries a known compression extension.
func Compressed(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz", ".gzip", ".zst", ".zstd", ".bz2":
		return true
	}
	return false
}

// NewWriter wraps w with an encoder for f. The caller must Close the
// returned writer before closing w.
func NewWriter(w io.Writer, f Format) (io.WriteCloser, error) {
	switch f {
	case Gzip:
		return gzip.NewWriterLevel(w, gzip.BestCompression)
	case Zstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	case None:
		return nopWriteCloser{w}, nil
	}
	return nil, errors.Wrapf(ErrUnknownFormat, "%q", string(f))
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// CompressFile replaces path with path+f.Ext() and returns the new name.
// With None the file is left alone.
func CompressFile(path string, f Format) (string, error) {
	if f == None {
		return path, nil
	}
	in, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer in.Close()

	dst := path + f.Ext()
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	w, err := NewWriter(out, f)
	if err != nil {
		out.Close()
		os.Remove(dst)
		return "", err
	}
	n, err := io.Copy(w, in)
	if err == nil {
		err = w.Close()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst)
		return "", errors.Wrapf(err, "compress %s", path)
	}
	if fi, err := os.Stat(dst); err == nil {
		log.Infof("%s: %s -> %s", filepath.Base(dst), units.HumanSize(float64(n)), units.HumanSize(float64(fi.Size())))
	}
	return dst, os.Remove(path)
}
