// Package mrt turns a binary routing table snapshot into the pipe-separated
// TABLE_DUMP2 text the rib package reads. Decoding itself is left to an
// external tool such as bgpdump.
package mrt

import (
	"context"
	"io"
	"os"
	"os/exec"
	"strings"

	units "github.com/docker/go-units"
	logging "github.com/op/go-logging"
	"github.com/pkg/errors"

	"asncountry/internal/compress"
)

var log = logging.MustGetLogger("mrt")

// Decoder writes the text form of the snapshot at path to w.
type Decoder interface {
	Decode(ctx context.Context, path string, w io.Writer) error
}

// ExecDecoder runs Command with Args and the snapshot path appended, and
// copies the tool's stdout to w.
type ExecDecoder struct {
	Command string
	Args    []string
}

func (d ExecDecoder) Decode(ctx context.Context, path string, w io.Writer) error {
	args := append(append([]string{}, d.Args...), path)
	cmd := exec.CommandContext(ctx, d.Command, args...)
	cmd.Stdout = w
	var stderr strings.Builder
	cmd.Stderr = &stderr

	log.Infof("decoding %s with %s %s", path, d.Command, strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 512 {
			msg = msg[:512]
		}
		return errors.Wrapf(err, "%s %s: %s", d.Command, path, msg)
	}
	return nil
}

// TextDecoder is used when the snapshot was decoded beforehand. The text is
// copied through, decompressed if the file name says it is archived.
type TextDecoder struct{}

func (TextDecoder) Decode(_ context.Context, path string, w io.Writer) error {
	r, err := compress.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()
	n, err := io.Copy(w, r)
	if err != nil {
		return errors.Wrapf(err, "read %s", path)
	}
	log.Debugf("copied %s of decoded text from %s", units.HumanSize(float64(n)), path)
	return nil
}

// DecodeFile decodes the snapshot at src into the text file dst.
func DecodeFile(ctx context.Context, d Decoder, src, dst string) error {
	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	err = d.Decode(ctx, src, out)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
