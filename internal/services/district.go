package services

import "strings"

// DefaultDistrict is returned when an address carries no usable segment.
const DefaultDistrict = "Lima"

// DefaultDistricts are the Lima districts served by the store network.
var DefaultDistricts = []string{
	"San Isidro", "Miraflores", "San Borja", "Surco", "La Molina",
	"Cercado de Lima", "Jesús María", "Magdalena", "Pueblo Libre",
	"San Miguel", "Lince", "Breña", "Los Olivos", "Independencia",
	"Magdalena del Mar", "Barranco", "Chorrillos",
}

// ExtractDistrict guesses the district of a comma separated address.
//
// The first segment containing a known district (case-insensitive) wins.
// Otherwise the second segment is used, then the first, then DefaultDistrict.
func ExtractDistrict(address string, knownDistricts []string) string {
	raw := strings.Split(address, ",")
	parts := make([]string, 0, len(raw))
	for _, p := range raw {
		parts = append(parts, strings.TrimSpace(p))
	}

	for _, part := range parts {
		lower := strings.ToLower(part)
		for _, d := range knownDistricts {
			d = strings.TrimSpace(d)
			if d == "" {
				continue
			}
			if strings.Contains(lower, strings.ToLower(d)) {
				return part
			}
		}
	}

	if len(parts) >= 2 && parts[1] != "" {
		return parts[1]
	}
	if len(parts) >= 1 && parts[0] != "" {
		return parts[0]
	}
	return DefaultDistrict
}
