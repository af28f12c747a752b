package tagsync

import (
	"bytes"
	"fmt"
	"go/format"
	"os"

	"github.com/mirokugang/mukon/internal/filex"
)

// Result describes one Sync run.
type Result struct {
	Operations int
	Changed    bool
}

// Sync regenerates the tag table in target from the schema at schemaPath.
//
// The spliced file is gofmt-formatted, so formatting the target never makes
// it stale. The target is written only when its content changes, through a
// temporary file renamed into place. With check set nothing is written and ErrStale is
// returned when the target differs from what would be generated.
func Sync(schemaPath, target string, check bool) (Result, error) {
	schema, err := LoadSchema(schemaPath)
	if err != nil {
		return Result{}, err
	}
	ops, err := schema.Operations()
	if err != nil {
		return Result{}, err
	}

	src, err := os.ReadFile(target)
	if err != nil {
		return Result{}, err
	}
	spliced, err := Splice(src, Render(ops))
	if err != nil {
		return Result{}, err
	}
	out, err := format.Source(spliced)
	if err != nil {
		return Result{}, fmt.Errorf("format %s: %w", target, err)
	}

	res := Result{Operations: len(ops), Changed: !bytes.Equal(src, out)}
	if !res.Changed {
		return res, nil
	}
	if check {
		return res, ErrStale
	}
	return res, writeFileAtomic(target, out)
}

func writeFileAtomic(path string, data []byte) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	return filex.WriteFileAtomic(path, data, info.Mode().Perm())
}
