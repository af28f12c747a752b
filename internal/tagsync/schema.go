// Package tagsync regenerates the operation tag table from the published
// interface description of the ledger program.
//
// The schema is the single source of truth. Sync recomputes every tag,
// validates it against the discriminator the schema publishes and rewrites
// only the delimited block of the target file. Any inconsistency aborts the
// run before the target is touched.
package tagsync

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/mirokugang/mukon/internal/optag"
)

var (
	ErrSchemaMismatch = errors.New("schema mismatch")
	ErrDelimiters     = errors.New("generated block delimiters not found")
	ErrStale          = errors.New("generated table is out of date")
)

// Schema is the subset of the interface description tagsync reads.
type Schema struct {
	Version      string        `json:"version"`
	Name         string        `json:"name"`
	Instructions []Instruction `json:"instructions"`
}

type Instruction struct {
	Name          string `json:"name"`
	Discriminator []int  `json:"discriminator"`
}

// Operation is one validated row of the generated table.
type Operation struct {
	Name string
	Tag  optag.Tag
}

// LoadSchema reads and decodes the schema at path.
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSchema(data)
}

func ParseSchema(data []byte) (*Schema, error) {
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrSchemaMismatch, err)
	}
	return &s, nil
}

// Operations validates every instruction and returns the table rows sorted
// by name. It never returns a partial table.
func (s *Schema) Operations() ([]Operation, error) {
	if len(s.Instructions) == 0 {
		return nil, fmt.Errorf("%w: no instructions", ErrSchemaMismatch)
	}

	ops := make([]Operation, 0, len(s.Instructions))
	names := make(map[string]struct{}, len(s.Instructions))
	tags := make(map[optag.Tag]string, len(s.Instructions))

	for i, ix := range s.Instructions {
		if ix.Name == "" {
			return nil, fmt.Errorf("%w: instruction %d has no name", ErrSchemaMismatch, i)
		}
		if _, dup := names[ix.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate instruction %q", ErrSchemaMismatch, ix.Name)
		}
		names[ix.Name] = struct{}{}

		published, err := decodeDiscriminator(ix)
		if err != nil {
			return nil, err
		}

		computed := optag.Compute(ix.Name)
		if published != computed {
			return nil, fmt.Errorf("%w: %s: published tag %s, computed %s", ErrSchemaMismatch, ix.Name, published, computed)
		}
		if other, dup := tags[computed]; dup {
			return nil, fmt.Errorf("%w: %s and %s share tag %s", ErrSchemaMismatch, other, ix.Name, computed)
		}
		tags[computed] = ix.Name

		ops = append(ops, Operation{Name: ix.Name, Tag: computed})
	}

	sort.Slice(ops, func(i, j int) bool { return ops[i].Name < ops[j].Name })
	return ops, nil
}

func decodeDiscriminator(ix Instruction) (optag.Tag, error) {
	var t optag.Tag
	if ix.Discriminator == nil {
		return t, fmt.Errorf("%w: %s: discriminator missing", ErrSchemaMismatch, ix.Name)
	}
	if len(ix.Discriminator) != optag.Size {
		return t, fmt.Errorf("%w: %s: discriminator has %d bytes, want %d", ErrSchemaMismatch, ix.Name, len(ix.Discriminator), optag.Size)
	}
	for i, v := range ix.Discriminator {
		if v < 0 || v > 0xff {
			return t, fmt.Errorf("%w: %s: discriminator byte %d out of range: %d", ErrSchemaMismatch, ix.Name, i, v)
		}
		t[i] = byte(v)
	}
	return t, nil
}
