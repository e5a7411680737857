package geo

// Continent names returned by ContinentOf.
const (
	Africa       = "Africa"
	Antarctica   = "Antarctica"
	Asia         = "Asia"
	Australia    = "Australia"
	Europe       = "Europe"
	NorthAmerica = "North America"
	SouthAmerica = "South America"
	Ocean        = "Ocean"
)

// Coarse boxes, checked in order. Earlier entries win where boxes overlap.
var continentBoxes = []Box{
	{Name: Antarctica, MinLat: -90, MaxLat: -60, MinLon: -180, MaxLon: 180},
	{Name: Europe, MinLat: 36, MaxLat: 71.5, MinLon: -25, MaxLon: 40},
	{Name: Africa, MinLat: -35, MaxLat: 37.5, MinLon: -18, MaxLon: 52},
	{Name: Australia, MinLat: -48, MaxLat: -10, MinLon: 112, MaxLon: 180},
	{Name: Asia, MinLat: -11, MaxLat: 78, MinLon: 40, MaxLon: 180},
	{Name: NorthAmerica, MinLat: 7, MaxLat: 84, MinLon: -168, MaxLon: -52},
	{Name: SouthAmerica, MinLat: -56, MaxLat: 13, MinLon: -82, MaxLon: -34},
}

// ContinentOf returns the continent a point falls in, or Ocean.
func ContinentOf(p Point) string {
	for _, b := range continentBoxes {
		if b.Contains(p) {
			return b.Name
		}
	}
	return Ocean
}
