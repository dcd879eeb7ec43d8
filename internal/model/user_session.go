package model

import (
	"encoding/json"
	"time"
)

type UpsertUserSessionParams struct {
	SocketID    string
	IP          string
	Preferences json.RawMessage
	Location    json.RawMessage
	IsOnline    bool
	LastSeen    time.Time
}

// SiteUsage is an append-only connection metric.
type SiteUsage struct {
	Count      int64     `bson:"count" json:"count"`
	Timestamp  time.Time `bson:"timestamp" json:"timestamp"`
	MetricType string    `bson:"metricType" json:"metricType"`
	IP         string    `bson:"ip" json:"ip"`
}

type LocationData struct {
	City           string  `bson:"city" json:"city"`
	Country        string  `bson:"country" json:"country"`
	CountryCode    string  `bson:"countryCode" json:"countryCode"`
	Latitude       float64 `bson:"latitude" json:"latitude"`
	Longitude      float64 `bson:"longitude" json:"longitude"`
	Timezone       string  `bson:"timezone" json:"timezone"`
	ISP            string  `bson:"isp" json:"isp"`
	ConnectionType string  `bson:"connectionType" json:"connectionType"`
	IP             string  `bson:"ip" json:"ip"`
}

// Location is an append-only geo enrichment record for a connecting IP.
type Location struct {
	Data      LocationData `bson:"data" json:"data"`
	CreatedAt time.Time    `bson:"createdAt" json:"createdAt"`
}
