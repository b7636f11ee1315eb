package network

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"roadweaver/internal/model"
)

// Feature kinds set in the "kind" property of exported features.
const (
	KindLandmark   = "landmark"
	KindConnection = "connection"
	KindRoad       = "road"
)

func planarPoint(p model.BlockPos) orb.Point {
	return orb.Point{float64(p.X), float64(p.Z)}
}

// Export renders a world's network as a GeoJSON FeatureCollection on the
// horizontal (x, z) plane: one Point per landmark, one two-point LineString
// per connection, and one LineString along each road's center line.
func Export(data model.WorldData) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	var all orb.MultiPoint

	for i, p := range data.Landmarks {
		pt := planarPoint(p)
		all = append(all, pt)
		f := geojson.NewFeature(pt)
		f.Properties["kind"] = KindLandmark
		f.Properties["index"] = i
		f.Properties["y"] = p.Y
		fc.Append(f)
	}

	for _, c := range data.Connections {
		f := geojson.NewFeature(orb.LineString{planarPoint(c.From), planarPoint(c.To)})
		f.Properties["kind"] = KindConnection
		f.Properties["status"] = c.Status.String()
		fc.Append(f)
	}

	for _, r := range data.Roads {
		line := make(orb.LineString, 0, len(r.Segments))
		for _, s := range r.Segments {
			pt := planarPoint(s.Center)
			line = append(line, pt)
			all = append(all, pt)
		}
		f := geojson.NewFeature(line)
		f.Properties["kind"] = KindRoad
		f.Properties["width"] = r.Width
		f.Properties["material"] = r.Material.String()
		f.Properties["segments"] = len(r.Segments)
		fc.Append(f)
	}

	if len(all) > 0 {
		fc.BBox = geojson.NewBBox(all.Bound())
	}
	return fc
}
