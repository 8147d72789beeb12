package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/couchcryptid/climate-region-stats/internal/cache"
	"github.com/couchcryptid/climate-region-stats/internal/domain"
)

// Cube is a read-only view of a published store. Decoded chunks are shared
// through an LRU, so a Cube is safe for concurrent readers.
type Cube struct {
	dir    string
	meta   ArrayMeta
	attrs  CubeAttrs
	codec  Codec
	index  *domain.TemporalIndex
	chunks *cache.LRU[[3]int, []float32]
}

// Open reads the metadata of the store at dir. cacheSize bounds the number
// of decoded chunks kept in memory.
func Open(dir string, cacheSize int) (*Cube, error) {
	var group struct {
		ZarrFormat int `json:"zarr_format"`
	}
	if err := readJSON(filepath.Join(dir, groupFile), &group); err != nil {
		return nil, err
	}
	if group.ZarrFormat != zarrFormat {
		return nil, fmt.Errorf("unsupported zarr format %d", group.ZarrFormat)
	}
	var attrs CubeAttrs
	if err := readJSON(filepath.Join(dir, attrsFile), &attrs); err != nil {
		return nil, err
	}
	var meta ArrayMeta
	if err := readJSON(filepath.Join(dir, attrs.Variable, arrayFile), &meta); err != nil {
		return nil, err
	}
	if err := meta.validate(); err != nil {
		return nil, err
	}

	codec := Codec(noopCodec{})
	if meta.Compressor != nil {
		c, err := NewCodec(meta.Compressor.ID, meta.Compressor.Level)
		if err != nil {
			return nil, err
		}
		codec = c
	}
	index, err := domain.NewTemporalIndex(attrs.Years)
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", dir, err)
	}
	if index.Len() != meta.Shape[0] {
		return nil, fmt.Errorf("store %s: year spans cover %d steps, array has %d", dir, index.Len(), meta.Shape[0])
	}
	if attrs.Grid.Rows != meta.Shape[1] || attrs.Grid.Cols != meta.Shape[2] {
		return nil, fmt.Errorf("store %s: grid %s does not match array shape %v", dir, attrs.Grid, meta.Shape)
	}

	return &Cube{
		dir:   dir,
		meta:  meta,
		attrs: attrs,
		codec: codec,
		index: index,
		chunks: cache.New[[3]int, []float32](cacheSize, func(k [3]int) string {
			return chunkKey(k[0], k[1], k[2])
		}),
	}, nil
}

// Dir returns the store directory.
func (c *Cube) Dir() string { return c.dir }

// Attrs returns the group attributes.
func (c *Cube) Attrs() CubeAttrs { return c.attrs }

// Grid returns the spatial geometry shared by every time step.
func (c *Cube) Grid() domain.Grid { return c.attrs.Grid }

// Years returns the year spans of the time axis.
func (c *Cube) Years() []domain.YearSpan { return c.index.Spans() }

// Index returns the temporal index of the time axis.
func (c *Cube) Index() *domain.TemporalIndex { return c.index }

// Times returns the length of the time axis.
func (c *Cube) Times() int { return c.meta.Shape[0] }

// CacheStats returns chunk cache hit and miss counts.
func (c *Cube) CacheStats() (hits, misses uint64) { return c.chunks.Stats() }

// ReadYear returns the (day, row, col) slab of one year.
func (c *Cube) ReadYear(ctx context.Context, year int) ([]float32, domain.YearSpan, error) {
	span, ok := c.index.Span(year)
	if !ok {
		return nil, domain.YearSpan{}, fmt.Errorf("year %d not in store", year)
	}
	g := c.Grid()
	vals, err := c.ReadWindow(ctx, domain.Window{T0: span.Start, T1: span.End(), R0: 0, R1: g.Rows, C0: 0, C1: g.Cols})
	return vals, span, err
}

// ReadWindow returns the window's values in (time, row, col) C order.
func (c *Cube) ReadWindow(ctx context.Context, w domain.Window) ([]float32, error) {
	if err := w.Validate(c.Times(), c.Grid()); err != nil {
		return nil, err
	}
	out := make([]float32, w.Len())
	ct, cr, cc := c.meta.Chunks[0], c.meta.Chunks[1], c.meta.Chunks[2]

	for ti := w.T0 / ct; ti <= (w.T1-1)/ct; ti++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t0, t1 := max(w.T0, ti*ct), min(w.T1, (ti+1)*ct)
		for ri := w.R0 / cr; ri <= (w.R1-1)/cr; ri++ {
			r0, r1 := max(w.R0, ri*cr), min(w.R1, (ri+1)*cr)
			for ci := w.C0 / cc; ci <= (w.C1-1)/cc; ci++ {
				c0, c1 := max(w.C0, ci*cc), min(w.C1, (ci+1)*cc)
				chunk, err := c.chunk(ti, ri, ci)
				if err != nil {
					return nil, err
				}
				n := c1 - c0
				for t := t0; t < t1; t++ {
					for r := r0; r < r1; r++ {
						src := ((t-ti*ct)*cr+(r-ri*cr))*cc + (c0 - ci*cc)
						dst := ((t-w.T0)*w.Rows()+(r-w.R0))*w.Cols() + (c0 - w.C0)
						copy(out[dst:dst+n], chunk[src:src+n])
					}
				}
			}
		}
	}
	return out, nil
}

func (c *Cube) chunk(t, r, col int) ([]float32, error) {
	v, _, err := c.chunks.GetOrLoad([3]int{t, r, col}, func() ([]float32, error) {
		return c.loadChunk(chunkKey(t, r, col))
	})
	return v, err
}

// loadChunk decodes one chunk file. Every chunk is written at build time, so
// an absent file means a damaged store.
func (c *Cube) loadChunk(key string) ([]float32, error) {
	n := c.meta.chunkLen()
	data, err := os.ReadFile(filepath.Join(c.dir, c.attrs.Variable, key))
	if err != nil {
		return nil, fmt.Errorf("read chunk %s: %w", key, err)
	}
	raw, err := c.codec.Decompress(data, 4*n)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", key, err)
	}
	vals, err := decodeFloat32s(raw, n)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", key, err)
	}
	return vals, nil
}
