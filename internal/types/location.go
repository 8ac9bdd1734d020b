package types

import "math"

const earthRadius = 6378100.0 // metres

// Location is a geodetic position. Alt is metres above mean sea level.
type Location struct {
	Lat float64
	Lng float64
	Alt float64
}

// Vector3 is an offset in a local north-east-up frame, in metres.
type Vector3 struct {
	North float64
	East  float64
	Up    float64
}

// IsZero reports whether the location was never filled in.
func (l Location) IsZero() bool {
	return l.Lat == 0 && l.Lng == 0 && l.Alt == 0
}

// Offset returns the location displaced by the given local offset.
func (l Location) Offset(v Vector3) Location {
	lat := l.Lat + (v.North/earthRadius)*180/math.Pi
	lng := l.Lng + (v.East/(earthRadius*math.Cos(l.Lat*math.Pi/180)))*180/math.Pi
	return Location{Lat: lat, Lng: lng, Alt: l.Alt + v.Up}
}

// DistanceTo returns the horizontal great-circle distance in metres.
func (l Location) DistanceTo(o Location) float64 {
	lat1 := l.Lat * math.Pi / 180
	lat2 := o.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLng := (o.Lng - l.Lng) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadius * math.Asin(math.Min(1, math.Sqrt(a)))
}

// BearingTo returns the initial bearing towards o in degrees, [0, 360).
func (l Location) BearingTo(o Location) float64 {
	lat1 := l.Lat * math.Pi / 180
	lat2 := o.Lat * math.Pi / 180
	dLng := (o.Lng - l.Lng) * math.Pi / 180

	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// CrosstrackError returns the signed distance in metres of l from the great
// circle through a and b; positive to the right of the a->b path.
func (l Location) CrosstrackError(a, b Location) float64 {
	d13 := a.DistanceTo(l) / earthRadius
	if d13 == 0 {
		return 0
	}
	theta13 := a.BearingTo(l) * math.Pi / 180
	theta12 := a.BearingTo(b) * math.Pi / 180
	return math.Asin(math.Sin(d13)*math.Sin(theta13-theta12)) * earthRadius
}
