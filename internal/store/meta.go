package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/couchcryptid/climate-region-stats/internal/domain"
)

// File names of the zarr v2 layout.
const (
	groupFile    = ".zgroup"
	attrsFile    = ".zattrs"
	arrayFile    = ".zarray"
	manifestFile = "manifest.json"
	zarrFormat   = 2
	float32DType = "<f4"
	fillNaN      = "NaN"
)

// ArrayMeta is the .zarray document of the cube variable.
type ArrayMeta struct {
	ZarrFormat         int             `json:"zarr_format"`
	Shape              []int           `json:"shape"`
	Chunks             []int           `json:"chunks"`
	DType              string          `json:"dtype"`
	Compressor         *CompressorMeta `json:"compressor"`
	FillValue          string          `json:"fill_value"`
	Order              string          `json:"order"`
	Filters            []any           `json:"filters"`
	DimensionSeparator string          `json:"dimension_separator"`
}

// CompressorMeta names the chunk codec. A nil compressor means raw chunks.
type CompressorMeta struct {
	ID    string `json:"id"`
	Level int    `json:"level"`
}

// CubeAttrs is the .zattrs document of the store group.
type CubeAttrs struct {
	Variable   string            `json:"variable"`
	Scenario   string            `json:"scenario"`
	Units      string            `json:"units"`
	Calendar   domain.Calendar   `json:"calendar"`
	Grid       domain.Grid       `json:"grid"`
	Years      []domain.YearSpan `json:"years"`
	Dimensions []string          `json:"dimensions"`
}

func newArrayMeta(times int, g domain.Grid, chunkT, tile int, codec Codec) ArrayMeta {
	m := ArrayMeta{
		ZarrFormat:         zarrFormat,
		Shape:              []int{times, g.Rows, g.Cols},
		Chunks:             []int{chunkT, min(tile, g.Rows), min(tile, g.Cols)},
		DType:              float32DType,
		FillValue:          fillNaN,
		Order:              "C",
		DimensionSeparator: ".",
	}
	if codec.ID() != CodecNone {
		m.Compressor = &CompressorMeta{ID: codec.ID(), Level: codec.Level()}
	}
	return m
}

func (m ArrayMeta) validate() error {
	if m.ZarrFormat != zarrFormat {
		return fmt.Errorf("unsupported zarr format %d", m.ZarrFormat)
	}
	if m.DType != float32DType {
		return fmt.Errorf("unsupported dtype %q", m.DType)
	}
	if m.Order != "C" {
		return fmt.Errorf("unsupported order %q", m.Order)
	}
	if len(m.Shape) != 3 || len(m.Chunks) != 3 {
		return fmt.Errorf("expected 3 dimensions, got shape %v chunks %v", m.Shape, m.Chunks)
	}
	for i, c := range m.Chunks {
		if c <= 0 {
			return fmt.Errorf("chunk dimension %d is %d", i, c)
		}
	}
	return nil
}

// chunkGrid returns the number of chunks along each axis.
func (m ArrayMeta) chunkGrid() (nt, nr, nc int) {
	return ceilDiv(m.Shape[0], m.Chunks[0]), ceilDiv(m.Shape[1], m.Chunks[1]), ceilDiv(m.Shape[2], m.Chunks[2])
}

func (m ArrayMeta) chunkLen() int { return m.Chunks[0] * m.Chunks[1] * m.Chunks[2] }

func ceilDiv(a, b int) int { return (a + b - 1) / b }

func chunkKey(t, r, c int) string { return fmt.Sprintf("%d.%d.%d", t, r, c) }

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
