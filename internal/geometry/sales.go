// Package geometry renders sale records as GeoJSON for map clients.
package geometry

import (
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"zipsales/server/internal/models"
)

// SalesFeatureCollection returns one point feature per record plus, when
// the records span at least three distinct locations, a "coverage" polygon
// around them. The collection's bbox covers every record.
func SalesFeatureCollection(zipcode string, records []models.SaleRecord) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if len(records) == 0 {
		return fc
	}

	points := make([]orb.Point, 0, len(records))
	for i := range records {
		r := &records[i]
		point := orb.Point{r.Longitude, r.Latitude}
		points = append(points, point)

		feature := geojson.NewFeature(point)
		feature.ID = r.ID
		feature.Properties = saleProperties(r)
		fc.Append(feature)
	}

	if hull := convexHull(points); hull != nil {
		feature := geojson.NewFeature(orb.Polygon{hull})
		feature.Properties = geojson.Properties{
			"kind":        "coverage",
			"zipcode":     zipcode,
			"point_count": len(points),
		}
		fc.Append(feature)
	}

	fc.BBox = geojson.NewBBox(orb.MultiPoint(points).Bound())
	return fc
}

func saleProperties(r *models.SaleRecord) geojson.Properties {
	props := geojson.Properties{
		"kind":          "sale",
		"zipcode":       r.Zipcode,
		"addressLine":   r.AddressLine,
		"addressDetail": r.AddressDetail,
		"price":         r.Price,
	}

	optional := map[string]interface{}{
		"bedrooms":        r.Bedrooms,
		"bathrooms":       r.Bathrooms,
		"sqft":            r.Sqft,
		"yearBuilt":       r.YearBuilt,
		"propertyType":    r.PropertyType,
		"saleDate":        r.SaleDate,
		"pricePerSqft":    r.PricePerSqft,
		"pricePerBedroom": r.PricePerBedroom,
	}
	for key, value := range optional {
		switch v := value.(type) {
		case *int:
			if v != nil {
				props[key] = *v
			}
		case *float64:
			if v != nil {
				props[key] = *v
			}
		case *string:
			if v != nil {
				props[key] = *v
			}
		}
	}
	return props
}

// convexHull returns the closed hull ring of points (monotone chain), or
// nil when fewer than three non-collinear points exist.
func convexHull(points []orb.Point) orb.Ring {
	pts := uniquePoints(points)
	if len(pts) < 3 {
		return nil
	}

	sort.Slice(pts, func(i, j int) bool {
		if pts[i][0] != pts[j][0] {
			return pts[i][0] < pts[j][0]
		}
		return pts[i][1] < pts[j][1]
	})

	hull := make([]orb.Point, 0, 2*len(pts))
	for _, p := range pts {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(pts) - 2; i >= 0; i-- {
		p := pts[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}

	// hull is closed at this point: the last point equals the first
	if len(hull) < 4 {
		return nil
	}
	return orb.Ring(hull)
}

func cross(o, a, b orb.Point) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}

func uniquePoints(points []orb.Point) []orb.Point {
	seen := make(map[orb.Point]struct{}, len(points))
	out := make([]orb.Point, 0, len(points))
	for _, p := range points {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
