package tagsync

import (
	"bytes"
	"fmt"
	"strings"
)

const (
	BeginMarker = "// BEGIN GENERATED OPERATION TAGS"
	EndMarker   = "// END GENERATED OPERATION TAGS"
)

// Render produces the Go source placed between the markers, in the layout
// gofmt gives it. Output depends only on ops, so identical input renders
// identical bytes.
func Render(ops []Operation) []byte {
	var b bytes.Buffer
	b.WriteString("var generatedTags = []entry{\n")
	for _, op := range ops {
		parts := make([]string, len(op.Tag))
		for i, v := range op.Tag {
			parts[i] = fmt.Sprintf("0x%02x", v)
		}
		fmt.Fprintf(&b, "\t{name: %q, tag: Tag{%s}},\n", op.Name, strings.Join(parts, ", "))
	}
	b.WriteString("}\n\n")
	return b.Bytes()
}

// Splice replaces the lines strictly between the begin and end markers with
// block. Markers must each appear exactly once, alone on their line, begin
// before end. Everything outside the block is preserved byte for byte.
func Splice(src, block []byte) ([]byte, error) {
	lines := bytes.SplitAfter(src, []byte("\n"))

	begin, end := -1, -1
	for i, line := range lines {
		switch string(bytes.TrimRight(line, "\r\n")) {
		case BeginMarker:
			if begin != -1 {
				return nil, fmt.Errorf("%w: duplicate begin marker", ErrDelimiters)
			}
			begin = i
		case EndMarker:
			if end != -1 {
				return nil, fmt.Errorf("%w: duplicate end marker", ErrDelimiters)
			}
			end = i
		}
	}
	if begin == -1 || end == -1 {
		return nil, ErrDelimiters
	}
	if end < begin {
		return nil, fmt.Errorf("%w: end marker precedes begin marker", ErrDelimiters)
	}
	if !bytes.HasSuffix(lines[begin], []byte("\n")) {
		return nil, fmt.Errorf("%w: begin marker is not terminated", ErrDelimiters)
	}

	var out bytes.Buffer
	for _, line := range lines[:begin+1] {
		out.Write(line)
	}
	out.Write(block)
	for _, line := range lines[end:] {
		out.Write(line)
	}
	return out.Bytes(), nil
}
