package locate

import (
	"fmt"
	"os"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/zyedidia/generic/mapset"

	"roadweaver/internal/model"
)

// FileLocator serves a fixed list of landmarks in order. Positions come from
// the Point features of a GeoJSON FeatureCollection: coordinates are (x, z)
// and the optional "y" property gives the height.
type FileLocator struct {
	mu     sync.Mutex
	points []model.BlockPos
	next   int
	known  mapset.Set[model.BlockPos]
}

// NewFileLocator serves points in order.
func NewFileLocator(points []model.BlockPos) *FileLocator {
	return &FileLocator{points: points, known: mapset.New[model.BlockPos]()}
}

// LoadFileLocator reads a GeoJSON file. Non-point features are skipped.
func LoadFileLocator(path string, defaultY int) (*FileLocator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read landmarks: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse landmarks: %w", err)
	}
	return NewFileLocator(PointsFromFeatures(fc, defaultY)), nil
}

// PointsFromFeatures extracts the Point features of fc in order.
func PointsFromFeatures(fc *geojson.FeatureCollection, defaultY int) []model.BlockPos {
	var points []model.BlockPos
	for _, f := range fc.Features {
		pt, ok := f.Geometry.(orb.Point)
		if !ok {
			continue
		}
		y := int(f.Properties.MustFloat64("y", float64(defaultY)))
		points = append(points, model.BlockPos{X: int(pt.X()), Y: y, Z: int(pt.Y())})
	}
	return points
}

// Exclude skips points that were already discovered.
func (f *FileLocator) Exclude(known ...model.BlockPos) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range known {
		f.known.Put(p)
	}
}

// Locate returns the next count unseen points. The file order is kept, so
// nearPlayer has no effect.
func (f *FileLocator) Locate(count int, _ bool) []model.BlockPos {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []model.BlockPos
	for f.next < len(f.points) && len(out) < count {
		p := f.points[f.next]
		f.next++
		if f.known.Has(p) {
			continue
		}
		f.known.Put(p)
		out = append(out, p)
	}
	return out
}

// remaining returns how many points have not been served yet.
func (f *FileLocator) remaining() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.points) - f.next
}
