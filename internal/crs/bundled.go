package crs

import (
	"fmt"
	"strconv"
)

// bundledEntries returns the systems seeded into the bundled catalogue:
// common geographic systems, Web Mercator, national grids used for wind
// resource mapping and every WGS 84, ETRS89 and ED50 UTM zone.
func bundledEntries() []Entry {
	entries := []Entry{
		{AuthName: "EPSG", Code: "4326", Name: "WGS 84", Type: Geographic2D},
		{AuthName: "EPSG", Code: "4979", Name: "WGS 84", Type: Geographic3D},
		{AuthName: "EPSG", Code: "4978", Name: "WGS 84", Type: Geocentric},
		{AuthName: "EPSG", Code: "4258", Name: "ETRS89", Type: Geographic2D},
		{AuthName: "EPSG", Code: "4269", Name: "NAD83", Type: Geographic2D},
		{AuthName: "EPSG", Code: "4230", Name: "ED50", Type: Geographic2D},
		{AuthName: "EPSG", Code: "4283", Name: "GDA94", Type: Geographic2D},
		{AuthName: "EPSG", Code: "7844", Name: "GDA2020", Type: Geographic2D},
		{AuthName: "EPSG", Code: "4490", Name: "China Geodetic Coordinate System 2000", Type: Geographic2D},
		{AuthName: "EPSG", Code: "3857", Name: "WGS 84 / Pseudo-Mercator", Type: Projected},
		{AuthName: "EPSG", Code: "3395", Name: "WGS 84 / World Mercator", Type: Projected},
		{AuthName: "EPSG", Code: "3035", Name: "ETRS89-extended / LAEA Europe", Type: Projected},
		{AuthName: "EPSG", Code: "3034", Name: "ETRS89-extended / LCC Europe", Type: Projected},
		{AuthName: "EPSG", Code: "27700", Name: "OSGB36 / British National Grid", Type: Projected},
		{AuthName: "EPSG", Code: "2154", Name: "RGF93 v1 / Lambert-93", Type: Projected},
		{AuthName: "EPSG", Code: "31467", Name: "DHDN / 3-degree Gauss-Kruger zone 3", Type: Projected},
		{AuthName: "EPSG", Code: "2056", Name: "CH1903+ / LV95", Type: Projected},
		{AuthName: "EPSG", Code: "28992", Name: "Amersfoort / RD New", Type: Projected},
		{AuthName: "EPSG", Code: "5070", Name: "NAD83 / Conus Albers", Type: Projected},
		{AuthName: "EPSG", Code: "3112", Name: "GDA94 / Geoscience Australia Lambert", Type: Projected},
		{AuthName: "EPSG", Code: "5773", Name: "EGM96 height", Type: Vertical},
		{AuthName: "EPSG", Code: "3900", Name: "N2000 height", Type: Vertical},
		{AuthName: "EPSG", Code: "900913", Name: "Google Maps Global Mercator", Type: Projected, Deprecated: true},
		{AuthName: "ESRI", Code: "54030", Name: "World_Robinson", Type: Projected},
		{AuthName: "ESRI", Code: "54009", Name: "World_Mollweide", Type: Projected},
		{AuthName: "ESRI", Code: "102100", Name: "WGS_1984_Web_Mercator_Auxiliary_Sphere", Type: Projected},
	}
	for zone := 1; zone <= 60; zone++ {
		entries = append(entries,
			utm("WGS 84", 32600, zone, "N"),
			utm("WGS 84", 32700, zone, "S"),
		)
	}
	for zone := 28; zone <= 38; zone++ {
		entries = append(entries,
			utm("ETRS89", 25800, zone, "N"),
			utm("ED50", 23000, zone, "N"),
		)
	}
	for zone := 4; zone <= 23; zone++ {
		entries = append(entries, utm("NAD83", 26900, zone, "N"))
	}
	return entries
}

func utm(datum string, base, zone int, hemisphere string) Entry {
	return Entry{
		AuthName: "EPSG",
		Code:     strconv.Itoa(base + zone),
		Name:     fmt.Sprintf("%s / UTM zone %d%s", datum, zone, hemisphere),
		Type:     Projected,
	}
}
