package postgres

import (
	"database/sql"
	"encoding/binary"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkbhex"

	"ridehail/internal/geo"
)

// srid is WGS 84, the reference system of GPS coordinates.
const srid = 4326

// encodePoint renders c as hex EWKB, which PostGIS accepts as geometry input.
func encodePoint(c geo.Coordinate) (string, error) {
	p := geom.NewPointFlat(geom.XY, []float64{c.Lng, c.Lat}).SetSRID(srid)
	s, err := ewkbhex.Encode(p, binary.LittleEndian)
	if err != nil {
		return "", eris.Wrap(err, "postgres: encode point")
	}
	return s, nil
}

// decodePoint parses the hex EWKB text PostGIS returns for a geometry column.
func decodePoint(s sql.NullString) (*geo.Coordinate, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	g, err := ewkbhex.Decode(s.String)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: decode point")
	}
	p, ok := g.(*geom.Point)
	if !ok {
		return nil, eris.Errorf("postgres: expected point, got %T", g)
	}
	return &geo.Coordinate{Lat: p.Y(), Lng: p.X()}, nil
}
