package geo

import "github.com/openclaw/match-session-worker/internal/model"

const unknown = "Unknown"

type localizedNames struct {
	Names struct {
		EN string `json:"en"`
	} `json:"names"`
}

type lookupResponse struct {
	City    localizedNames `json:"city"`
	Country struct {
		localizedNames
		ISOCode string `json:"iso_code"`
	} `json:"country"`
	Location struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		TimeZone  string  `json:"time_zone"`
	} `json:"location"`
	Traits struct {
		ISP            string `json:"isp"`
		ConnectionType string `json:"connection_type"`
	} `json:"traits"`
}

func (r lookupResponse) toLocationData() model.LocationData {
	return model.LocationData{
		City:           orUnknown(r.City.Names.EN),
		Country:        orUnknown(r.Country.Names.EN),
		CountryCode:    r.Country.ISOCode,
		Latitude:       r.Location.Latitude,
		Longitude:      r.Location.Longitude,
		Timezone:       r.Location.TimeZone,
		ISP:            r.Traits.ISP,
		ConnectionType: r.Traits.ConnectionType,
	}
}

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}
