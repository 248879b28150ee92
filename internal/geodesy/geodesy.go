// Package geodesy solves the direct geodesic problem on the WGS84 ellipsoid:
// given a start point, an azimuth and a distance, find the destination.
// Spherical approximations are off by up to ~0.5% at continental scale, which
// is visible in zonal statistics, so the ellipsoidal (Vincenty) solution is
// used throughout.
package geodesy

import "math"

// WGS84 ellipsoid parameters.
const (
	SemiMajor  = 6378137.0
	Flattening = 1.0 / 298.257223563
)

var semiMinor = SemiMajor * (1 - Flattening)

// Forward returns the destination reached by traveling distM meters from
// (lon, lat) along the initial bearing azimuthDeg (degrees clockwise from
// north). Vincenty's direct formula; converges in a handful of iterations
// for any distance short of antipodal.
func Forward(lon, lat, azimuthDeg, distM float64) (destLon, destLat float64) {
	if distM == 0 {
		return lon, lat
	}

	phi1 := lat * math.Pi / 180
	lambda1 := lon * math.Pi / 180
	alpha1 := azimuthDeg * math.Pi / 180

	sinAlpha1, cosAlpha1 := math.Sincos(alpha1)

	tanU1 := (1 - Flattening) * math.Tan(phi1)
	cosU1 := 1 / math.Sqrt(1+tanU1*tanU1)
	sinU1 := tanU1 * cosU1

	sigma1 := math.Atan2(tanU1, cosAlpha1)
	sinAlpha := cosU1 * sinAlpha1
	cos2Alpha := 1 - sinAlpha*sinAlpha
	u2 := cos2Alpha * (SemiMajor*SemiMajor - semiMinor*semiMinor) / (semiMinor * semiMinor)

	bigA := 1 + u2/16384*(4096+u2*(-768+u2*(320-175*u2)))
	bigB := u2 / 1024 * (256 + u2*(-128+u2*(74-47*u2)))

	sigma := distM / (semiMinor * bigA)
	var sinSigma, cosSigma, cos2SigmaM float64
	for i := 0; i < 100; i++ {
		cos2SigmaM = math.Cos(2*sigma1 + sigma)
		sinSigma, cosSigma = math.Sincos(sigma)
		deltaSigma := bigB * sinSigma * (cos2SigmaM + bigB/4*(cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)-
			bigB/6*cos2SigmaM*(-3+4*sinSigma*sinSigma)*(-3+4*cos2SigmaM*cos2SigmaM)))
		prev := sigma
		sigma = distM/(semiMinor*bigA) + deltaSigma
		if math.Abs(sigma-prev) < 1e-12 {
			break
		}
	}
	cos2SigmaM = math.Cos(2*sigma1 + sigma)
	sinSigma, cosSigma = math.Sincos(sigma)

	tmp := sinU1*sinSigma - cosU1*cosSigma*cosAlpha1
	phi2 := math.Atan2(sinU1*cosSigma+cosU1*sinSigma*cosAlpha1,
		(1-Flattening)*math.Sqrt(sinAlpha*sinAlpha+tmp*tmp))

	lambda := math.Atan2(sinSigma*sinAlpha1, cosU1*cosSigma-sinU1*sinSigma*cosAlpha1)
	c := Flattening / 16 * cos2Alpha * (4 + Flattening*(4-3*cos2Alpha))
	l := lambda - (1-c)*Flattening*sinAlpha*
		(sigma+c*sinSigma*(cos2SigmaM+c*cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)))
	lambda2 := lambda1 + l

	destLon = lambda2 * 180 / math.Pi
	destLat = phi2 * 180 / math.Pi
	return destLon, destLat
}
