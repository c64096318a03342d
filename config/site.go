package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const seasonPlaceholder = "{season_id}"

// SiteConfig describes where each data kind lives on the championship site.
type SiteConfig struct {
	ID              string            `yaml:"id"`
	Name            string            `yaml:"name"`
	BaseURL         string            `yaml:"base_url"`
	Endpoints       map[string]string `yaml:"endpoints"`
	RosterSnapshots []Snapshot        `yaml:"roster_snapshots"`
}

// Snapshot pins the roster page used for one championship year.
type Snapshot struct {
	Year int    `yaml:"year"`
	URL  string `yaml:"url"`
}

const archivePrefix = "https://web.archive.org/web/"

func DefaultSite() *SiteConfig {
	site := &SiteConfig{
		ID:      "f2",
		Name:    "FIA Formula 2",
		BaseURL: "https://www.fiaformula2.com",
		Endpoints: map[string]string{
			"driver-standings": "/Standings/Driver?seasonId={season_id}",
			"team-standings":   "/Standings/Team?seasonId={season_id}",
			"calendar":         "/Calendar?seasonid={season_id}",
		},
	}
	for i, ts := range []string{
		"20171201034903",
		"20181109085950",
		"20190904102437",
		"20201230055450",
		"20211203193245",
		"20221209121832",
		"20231203234515",
		"20241203011952",
	} {
		site.RosterSnapshots = append(site.RosterSnapshots, Snapshot{
			Year: 2017 + i,
			URL:  archivePrefix + ts + "/http://www.fiaformula2.com/Teams-and-Drivers",
		})
	}
	site.RosterSnapshots = append(site.RosterSnapshots, Snapshot{
		Year: 2025,
		URL:  "https://www.fiaformula2.com/Teams-and-Drivers",
	})
	return site
}

// LoadSite overlays the YAML file at path onto DefaultSite. A missing file is
// not an error.
func LoadSite(path string) (*SiteConfig, error) {
	site := DefaultSite()
	if err := readYAML(path, site); err != nil {
		if os.IsNotExist(err) {
			return site, nil
		}
		return nil, fmt.Errorf("load site config %s: %w", path, err)
	}
	return site, nil
}

// SeasonURL renders the endpoint for kind at seasonID. ok is false when the
// kind has no season-indexed endpoint.
func (s *SiteConfig) SeasonURL(kind string, seasonID int) (string, bool) {
	tmpl, ok := s.Endpoints[kind]
	if !ok || tmpl == "" {
		return "", false
	}
	path := strings.ReplaceAll(tmpl, seasonPlaceholder, strconv.Itoa(seasonID))
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path, true
	}
	return strings.TrimRight(s.BaseURL, "/") + path, true
}

// RosterURL returns the roster snapshot pinned for year.
func (s *SiteConfig) RosterURL(year int) (string, bool) {
	for _, snap := range s.RosterSnapshots {
		if snap.Year == year {
			return snap.URL, true
		}
	}
	return "", false
}

func (s *SiteConfig) Validate() error {
	if s.BaseURL == "" {
		return fmt.Errorf("site %s: base_url is required", s.ID)
	}
	for _, kind := range []string{"driver-standings", "team-standings", "calendar"} {
		tmpl := s.Endpoints[kind]
		if !strings.Contains(tmpl, seasonPlaceholder) {
			return fmt.Errorf("site %s: endpoint %s must contain %s", s.ID, kind, seasonPlaceholder)
		}
	}
	seen := make(map[int]bool)
	for _, snap := range s.RosterSnapshots {
		if snap.URL == "" {
			return fmt.Errorf("site %s: roster snapshot %d has no url", s.ID, snap.Year)
		}
		if seen[snap.Year] {
			return fmt.Errorf("site %s: duplicate roster snapshot for %d", s.ID, snap.Year)
		}
		seen[snap.Year] = true
	}
	return nil
}
