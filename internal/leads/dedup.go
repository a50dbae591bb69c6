package leads

import (
	"math"
	"strings"

	"github.com/ecolote/leadengine/pkg/db/models"
)

// geoTolerance is the per-axis distance, in degrees, under which two points
// are treated as the same place.
const geoTolerance = 0.0001

const geoEpsilon = 1e-9

// FindDuplicate returns the first pool lead the candidate duplicates, or nil.
func FindDuplicate(candidate Candidate, pool []models.Lead) *models.Lead {
	name := normalizeText(candidate.Name)
	address := normalizeText(candidate.FormattedAddress)
	placeID := strings.TrimSpace(candidate.PlaceID)

	for i := range pool {
		existing := &pool[i]
		if placeID != "" && existing.PlaceID != nil && *existing.PlaceID == placeID {
			return existing
		}

		sameName := name != "" && name == normalizeText(existing.Name)
		sameAddress := address != "" && address == normalizeText(existing.FormattedAddress)
		near := sameLocation(candidate.Latitude, candidate.Longitude, existing.Latitude, existing.Longitude)

		if (sameName && sameAddress) || (sameName && near) || (sameAddress && near) {
			return existing
		}
	}
	return nil
}

// NameToken is the first whitespace separated word of a name, lowercased.
func NameToken(name string) string {
	fields := strings.Fields(strings.ToLower(name))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// AddressToken is the first comma separated segment of an address, lowercased.
func AddressToken(address string) string {
	segment, _, _ := strings.Cut(address, ",")
	return normalizeText(segment)
}

func normalizeText(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func sameLocation(latA, lngA, latB, lngB *float64) bool {
	if latA == nil || lngA == nil || latB == nil || lngB == nil {
		return false
	}
	return math.Abs(*latA-*latB) <= geoTolerance+geoEpsilon &&
		math.Abs(*lngA-*lngB) <= geoTolerance+geoEpsilon
}
