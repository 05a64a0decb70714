package devenv

// LiveScrapeTestConfig points the live scraper tests at real pages, it is read
// from dev/.state/fbref.json5 and the tests skip when it is absent.
type LiveScrapeTestConfig struct {
	DiscoveryUrl string `json:"discovery_url"`
	MatchLogsUrl string `json:"matchlogs_url"`
}
