package csvfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"

	"github.com/couchcryptid/climate-region-stats/internal/domain"
)

// CheckResult summarizes a result file.
type CheckResult struct {
	Rows       int
	Duplicates []domain.Key
}

// CheckFile opens path and runs Check on it.
func CheckFile(path string) (*CheckResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Check(f)
}

// Check reads a per-variable or merged result and reports repeated
// (region, year) pairs. The region column is region_id or cid2.
func Check(r io.Reader) (*CheckResult, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idCol := slices.Index(header, "region_id")
	if idCol < 0 {
		idCol = slices.Index(header, "cid2")
	}
	yearCol := slices.Index(header, "year")
	if idCol < 0 || yearCol < 0 {
		return nil, errors.New("header has no region or year column")
	}

	res := &CheckResult{}
	seen := make(map[domain.Key]int)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", res.Rows+1, err)
		}
		res.Rows++
		year, err := strconv.Atoi(rec[yearCol])
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid year %q", res.Rows, rec[yearCol])
		}
		k := domain.Key{RegionID: rec[idCol], Year: year}
		seen[k]++
		if seen[k] == 2 {
			res.Duplicates = append(res.Duplicates, k)
		}
	}
	return res, nil
}
