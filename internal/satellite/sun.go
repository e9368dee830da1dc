package satellite

import (
	"math"

	gosat "github.com/joshuaferrara/go-satellite"
)

const (
	earthRadiusKm      = 6378.137
	solarRadiusKm      = 6.96e5
	astronomicalUnitKm = 1.49597870691e8
	secsPerDay         = 86400.0
	twoPi              = 2 * math.Pi
)

// sunPosition returns the low-precision position of the sun (km) in the
// earth-centred inertial frame at Julian date jd.
func sunPosition(jd float64) gosat.Vector3 {
	mjd := jd - 2415020.0
	year := 1900 + mjd/365.25
	t := (mjd + deltaET(year)/secsPerDay) / 36525.0

	m := radians(modulus(358.47583+modulus(35999.04975*t, 360.0)-(0.000150+0.0000033*t)*t*t, 360.0))
	l := radians(modulus(279.69668+modulus(36000.76892*t, 360.0)+0.0003025*t*t, 360.0))
	e := 0.01675104 - (0.0000418+0.000000126*t)*t
	c := radians((1.919460-(0.004789+0.000014*t)*t)*math.Sin(m) + (0.020094-0.000100*t)*math.Sin(2*m) + 0.000293*math.Sin(3*m))
	o := radians(modulus(259.18-1934.142*t, 360.0))
	lsa := modulus(l+c-radians(0.00569-0.00479*math.Sin(o)), twoPi)
	nu := modulus(m+c, twoPi)
	r := 1.0000002 * (1.0 - e*e) / (1.0 + e*math.Cos(nu))
	eps := radians(23.452294 - (0.0130125+(0.00000164-0.000000503*t)*t)*t + 0.00256*math.Cos(o))
	r *= astronomicalUnitKm

	return gosat.Vector3{
		X: r * math.Cos(lsa),
		Y: r * math.Sin(lsa) * math.Cos(eps),
		Z: r * math.Sin(lsa) * math.Sin(eps),
	}
}

// subsolarPoint converts the inertial sun vector into the geographic point
// where the sun is at zenith. Longitude is east-positive in [0, 360).
func subsolarPoint(sun gosat.Vector3, gmst float64) (lat, lon float64) {
	lat = degrees(math.Atan2(sun.Z, math.Hypot(sun.X, sun.Y)))
	lon = degrees(modulus(math.Atan2(sun.Y, sun.X)-gmst, twoPi))
	return lat, lon
}

// eclipsed reports whether a satellite at pos (km, inertial) is inside the
// earth's umbra.
func eclipsed(pos, sun gosat.Vector3) bool {
	sdEarth := math.Asin(earthRadiusKm / norm(pos))
	sdSun := math.Asin(solarRadiusKm / norm(sub(sun, pos)))
	if sdEarth < sdSun {
		return false
	}
	delta := angle(sun, scale(pos, -1))
	return sdEarth-sdSun-delta >= 0
}

// footprint is the diameter (km) of the area on the ground that can see a
// satellite at altitude km.
func footprint(altitude float64) float64 {
	return 2 * earthRadiusKm * math.Acos(earthRadiusKm/(earthRadiusKm+altitude))
}

// deltaET is the difference between UT and terrestrial time in seconds.
func deltaET(year float64) float64 {
	return 26.465 + 0.747622*(year-1950) + 1.886913*math.Sin(twoPi*(year-1975)/33)
}

func modulus(a, b float64) float64 {
	r := a - math.Floor(a/b)*b
	if r < 0 {
		r += b
	}
	return r
}

func normalizeLongitude(deg float64) float64 {
	deg = modulus(deg+180, 360) - 180
	return deg
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
func degrees(rad float64) float64 { return rad * 180 / math.Pi }

func norm(v gosat.Vector3) float64 { return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z) }

func sub(a, b gosat.Vector3) gosat.Vector3 {
	return gosat.Vector3{X: a.X - b.X, Y: a.Y - b.Y, Z: a.Z - b.Z}
}

func scale(v gosat.Vector3, k float64) gosat.Vector3 {
	return gosat.Vector3{X: v.X * k, Y: v.Y * k, Z: v.Z * k}
}

func angle(a, b gosat.Vector3) float64 {
	cos := (a.X*b.X + a.Y*b.Y + a.Z*b.Z) / (norm(a) * norm(b))
	return math.Acos(math.Max(-1, math.Min(1, cos)))
}
