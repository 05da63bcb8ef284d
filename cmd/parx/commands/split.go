// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/parx/cmd/parx/cli"
	"github.com/bureau-foundation/parx/lib/atomicfile"
	"github.com/bureau-foundation/parx/lib/config"
	"github.com/bureau-foundation/parx/lib/parxerr"
)

type splitParams struct {
	cli.JSONOutput
	ChunkSize string `flag:"chunk-size" desc:"piece size (bytes, accepts 64K/1MiB forms)" default:"32MiB"`
}

func splitCommand() *cli.Command {
	var params splitParams
	return &cli.Command{
		Name:    "split",
		Summary: "cut a file into fixed-size pieces",
		Usage:   "parx split [flags] <file>",
		Description: `Writes <file>.000, <file>.001, ... of at most the piece size.
A helper for moving a protected dataset across size-constrained
media; concatenating the pieces in order restores the file.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("split", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("split takes exactly one file, got %d args", len(args))
			}
			pieceSize, err := config.ParseSize(params.ChunkSize)
			if err != nil {
				return fail(err, params.Enabled())
			}

			pieces, err := splitFile(args[0], pieceSize)
			if err != nil {
				return fail(err, params.Enabled())
			}

			if done, err := params.EmitJSON(map[string]any{"pieces": pieces}); done {
				return err
			}
			for _, piece := range pieces {
				fmt.Println(piece)
			}
			return nil
		},
	}
}

func splitFile(path string, pieceSize int64) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, parxerr.E(parxerr.KindInput, err).WithPath(path)
	}
	defer f.Close()

	var pieces []string
	buf := make([]byte, 1<<20)
	for index := 0; ; index++ {
		piecePath := fmt.Sprintf("%s.%03d", path, index)
		pending, err := atomicfile.Create(piecePath)
		if err != nil {
			return nil, err
		}

		written, copyErr := io.CopyBuffer(pending, io.LimitReader(f, pieceSize), buf)
		if copyErr != nil {
			pending.Cleanup()
			return nil, parxerr.E(parxerr.KindIO, copyErr).WithPath(path)
		}
		if written == 0 && index > 0 {
			// Clean end on a piece boundary.
			pending.Cleanup()
			break
		}
		if err := pending.Commit(); err != nil {
			return nil, err
		}
		pieces = append(pieces, piecePath)
		if written < pieceSize {
			break
		}
	}
	return pieces, nil
}
