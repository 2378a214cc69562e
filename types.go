package main

type ASNResult struct {
	ASN         uint32   `json:"asn"`
	Country     string   `json:"country"`
	CountryName string   `json:"country_name,omitempty"`
	Countries   []string `json:"countries"`
}

type PrefixMatch struct {
	Prefix      string `json:"prefix"`
	Country     string `json:"country"`
	CountryName string `json:"country_name,omitempty"`
}

type IPResult struct {
	IP        string        `json:"ip"`
	Delegated []PrefixMatch `json:"delegated"`
	Announced []PrefixMatch `json:"announced"`
}

type CountrySummary struct {
	Country   string
	Name      string
	ASNs      int
	Delegated int
	Announced int
}
