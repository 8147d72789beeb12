package store

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/cespare/xxhash/v2"
)

// Report is the result of verifying a published store.
type Report struct {
	Variable string   `json:"variable"`
	Scenario string   `json:"scenario"`
	Steps    int      `json:"steps"`
	Years    int      `json:"years"`
	Chunks   int      `json:"chunks"`
	Bytes    int64    `json:"bytes"`
	Problems []string `json:"problems,omitempty"`
}

// OK reports whether verification found no problems.
func (r *Report) OK() bool { return len(r.Problems) == 0 }

// Verify decodes every chunk of the store at dir and checks it against the
// manifest checksums and the array metadata.
func Verify(ctx context.Context, dir string) (*Report, error) {
	cube, err := Open(dir, 1)
	if err != nil {
		return nil, err
	}
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	rep := &Report{
		Variable: cube.attrs.Variable,
		Scenario: cube.attrs.Scenario,
		Steps:    cube.Times(),
		Years:    len(cube.Years()),
	}

	nt, nr, nc := cube.meta.chunkGrid()
	expected := make(map[string]bool, nt*nr*nc)
	for t := 0; t < nt; t++ {
		for r := 0; r < nr; r++ {
			for c := 0; c < nc; c++ {
				expected[chunkKey(t, r, c)] = true
			}
		}
	}

	n := cube.meta.chunkLen()
	for _, ch := range m.Chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !expected[ch.Key] {
			rep.Problems = append(rep.Problems, fmt.Sprintf("chunk %s outside array shape", ch.Key))
			continue
		}
		delete(expected, ch.Key)
		data, err := os.ReadFile(filepath.Join(dir, cube.attrs.Variable, ch.Key))
		if err != nil {
			rep.Problems = append(rep.Problems, fmt.Sprintf("chunk %s: %v", ch.Key, err))
			continue
		}
		if sum := xxhash.Sum64(data); sum != ch.Checksum {
			rep.Problems = append(rep.Problems, fmt.Sprintf("chunk %s checksum %x, manifest %x", ch.Key, sum, ch.Checksum))
			continue
		}
		raw, err := cube.codec.Decompress(data, 4*n)
		if err == nil {
			_, err = decodeFloat32s(raw, n)
		}
		if err != nil {
			rep.Problems = append(rep.Problems, fmt.Sprintf("chunk %s: %v", ch.Key, err))
			continue
		}
		rep.Chunks++
		rep.Bytes += int64(len(data))
	}
	missing := slices.Sorted(maps.Keys(expected))
	for _, key := range missing {
		rep.Problems = append(rep.Problems, fmt.Sprintf("chunk %s missing from manifest", key))
	}

	for _, y := range m.FilledYears {
		span, ok := cube.index.Span(y)
		if !ok || !span.Filled {
			rep.Problems = append(rep.Problems, fmt.Sprintf("filled year %d not marked in year spans", y))
		}
	}
	return rep, nil
}
