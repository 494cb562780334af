package domain

import "fmt"

// Region is a listing audience. Ranking boosts exist only for PrivilegedRegion.
type Region string

const (
	RegionZA     Region = "ZA"
	RegionUK     Region = "UK"
	RegionEU     Region = "EU"
	RegionGlobal Region = "GLOBAL"

	PrivilegedRegion = RegionZA
)

func (r Region) Valid() bool {
	switch r {
	case RegionZA, RegionUK, RegionEU, RegionGlobal:
		return true
	}
	return false
}

// ParseRegion accepts the region code; empty input means GLOBAL.
func ParseRegion(s string) (Region, error) {
	if s == "" {
		return RegionGlobal, nil
	}
	r := Region(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown region %q", s)
	}
	return r, nil
}

// RegionProfile describes how a region shows up in provider data.
type RegionProfile struct {
	DomainSuffix string // country-code TLD, e.g. ".za"
	FullName     string
	Code         string // ISO 3166-1 alpha-2, lower case
}

var regionProfiles = map[Region]RegionProfile{
	RegionZA: {DomainSuffix: ".za", FullName: "south africa", Code: "za"},
	RegionUK: {DomainSuffix: ".uk", FullName: "united kingdom", Code: "uk"},
}

func (r Region) Profile() (RegionProfile, bool) {
	p, ok := regionProfiles[r]
	return p, ok
}
