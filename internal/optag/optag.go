// Package optag maps canonical operation names to their 8-byte tags.
//
// A tag is the first 8 bytes of sha256("global:" + name). The name→tag table
// in table_gen.go is generated from idl/mukon.json by cmd/tagsync and is the
// only table the ledger program and clients consult.
package optag

//go:generate go run ../../cmd/tagsync --idl ../../idl/mukon.json --out table_gen.go

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// Size is the byte length of a Tag.
const Size = 8

// Namespace is the domain-separation prefix hashed in front of every name.
const Namespace = "global:"

// Canonical operation names.
const (
	Register      = "register"
	UpdateProfile = "update_profile"
	Invite        = "invite"
	Accept        = "accept"
	Reject        = "reject"
)

// Tag identifies which operation a signed instruction invokes.
type Tag [Size]byte

func (t Tag) String() string {
	return hex.EncodeToString(t[:])
}

type entry struct {
	name string
	tag  Tag
}

var (
	byName map[string]Tag
	byTag  map[Tag]string
)

func init() {
	byName = make(map[string]Tag, len(generatedTags))
	byTag = make(map[Tag]string, len(generatedTags))
	for _, e := range generatedTags {
		byName[e.name] = e.tag
		byTag[e.tag] = e.name
	}
}

// Compute derives the tag for name.
func Compute(name string) Tag {
	sum := sha256.Sum256([]byte(Namespace + name))
	var t Tag
	copy(t[:], sum[:Size])
	return t
}

// Lookup returns the generated tag for name.
func Lookup(name string) (Tag, bool) {
	t, ok := byName[name]
	return t, ok
}

// MustLookup is Lookup for names known at compile time.
func MustLookup(name string) Tag {
	t, ok := Lookup(name)
	if !ok {
		panic("optag: unknown operation " + name)
	}
	return t
}

// Name returns the operation name for a tag.
func Name(t Tag) (string, bool) {
	n, ok := byTag[t]
	return n, ok
}

// Names lists every operation in the table, sorted.
func Names() []string {
	names := make([]string, 0, len(byName))
	for n := range byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
