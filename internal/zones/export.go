package zones

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"

	"github.com/paulmach/orb/geojson"
)

// WriteGeoJSON writes every zone as a polygon feature with its id and centroid.
func (s *System) WriteGeoJSON(w io.Writer) error {
	fc := geojson.NewFeatureCollection()
	for _, z := range s.zones {
		f := geojson.NewFeature(z.Geometry)
		f.ID = z.ID
		f.Properties["zoneId"] = z.ID
		f.Properties["centerX"] = z.Centroid.X()
		f.Properties["centerY"] = z.Centroid.Y()
		fc.Append(f)
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode zones: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// WriteLinkZones writes the resolved link assignments as "link_id;zone",
// sorted by link id. Links without a zone are omitted.
func (s *System) WriteLinkZones(w io.Writer) error {
	type row struct{ link, zone string }
	var rows []row
	s.linkZones.Range(func(k, v any) bool {
		if zone := v.(string); zone != "" {
			rows = append(rows, row{k.(string), zone})
		}
		return true
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].link < rows[j].link })

	cw := csv.NewWriter(w)
	cw.Comma = ';'
	if err := cw.Write([]string{"link_id", "zone"}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.link, r.zone}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
