package scraper

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"f2_scrooper/browser"
	"f2_scrooper/config"
	"f2_scrooper/models"
)

const testBase = "http://f2.test"

func testSite() *config.SiteConfig {
	site := config.DefaultSite()
	site.BaseURL = testBase
	site.RosterSnapshots = []config.Snapshot{
		{Year: 2017, URL: testBase + "/roster/2017"},
		{Year: 2018, URL: testBase + "/roster/2018"},
		{Year: 2019, URL: testBase + "/roster/2019"},
	}
	return site
}

func driverURL(seasonID int) string {
	return fmt.Sprintf("%s/Standings/Driver?seasonId=%d", testBase, seasonID)
}

func teamURL(seasonID int) string {
	return fmt.Sprintf("%s/Standings/Team?seasonId=%d", testBase, seasonID)
}

func calendarURL(seasonID int) string {
	return fmt.Sprintf("%s/Calendar?seasonid=%d", testBase, seasonID)
}

func standingsPage(title, name string) string {
	return `<html><body>
<div class="container standings-header"><div class="col-xl-6">` + title + `</div></div>
<table class="table table-bordered"><tbody><tr>
<td><a class="driver-name"><span class="visible-desktop-up">` + name + `</span></a></td>
<td><span class="score">-</span></td><td><span class="score">25</span></td>
<td><span class="total-points">25</span></td>
</tr></tbody></table></body></html>`
}

func calendarPage(title, place string) string {
	return `<html><body><div class="col-xl-6">` + title + `</div>
<div class="result-card post-race-wrapper"><div class="date"><span class="start-date">01</span><span class="end-date">03</span></div>
<div class="month">Mar</div><div class="event-place">` + place + `</div></div></body></html>`
}

func emptyCalendarPage(title string) string {
	return `<html><body><div class="col-xl-6">` + title + `</div></body></html>`
}

func classicRosterPage(year int, team, driver string) string {
	return fmt.Sprintf(`<html><body><span class="c">Teams %d</span>
<div class="team-drivers"><span class="name">%s</span><div class="caption"><span class="name">%s</span></div></div>
</body></html>`, year, team, driver)
}

// fakeLoader serves canned pages by URL. Unknown URLs are a miss.
type fakeLoader struct {
	mu       sync.Mutex
	pages    map[string]string
	errs     map[string]error
	requests []string
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{pages: make(map[string]string), errs: make(map[string]error)}
}

func (l *fakeLoader) Load(ctx context.Context, url, _ string) (*goquery.Document, error) {
	l.mu.Lock()
	l.requests = append(l.requests, url)
	html, ok := l.pages[url]
	err := l.errs[url]
	l.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", browser.ErrNoData, url)
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

func (l *fakeLoader) requested(url string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, r := range l.requests {
		if r == url {
			n++
		}
	}
	return n
}

// seedSeasons serves n seasons of every season-indexed kind plus the roster snapshots.
func seedSeasons(l *fakeLoader, n int) {
	for i := 0; i < n; i++ {
		year, id := models.FirstYear+i, models.FirstSeasonID+i
		l.pages[driverURL(id)] = standingsPage(fmt.Sprintf("%d Driver Standings", year), "Driver "+fmt.Sprint(year))
		l.pages[teamURL(id)] = standingsPage(fmt.Sprintf("%d Team Standings", year), "Team "+fmt.Sprint(year))
		l.pages[calendarURL(id)] = calendarPage(fmt.Sprintf("%d Calendar", year), "Bahrain")
	}
	for _, year := range []int{2017, 2018, 2019} {
		l.pages[fmt.Sprintf("%s/roster/%d", testBase, year)] = classicRosterPage(year, "Carlin", "Driver")
	}
}

type fakeProvider struct {
	loader   *fakeLoader
	err      error
	acquired int
	released int
	mu       sync.Mutex
}

type countingSession struct {
	*fakeLoader
	p *fakeProvider
}

func (s *countingSession) Release() {
	s.p.mu.Lock()
	s.p.released++
	s.p.mu.Unlock()
}

func (p *fakeProvider) Acquire(context.Context) (browser.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.acquired++
	return &countingSession{fakeLoader: p.loader, p: p}, nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	runs     []models.ScrapeRun
	logs     []string
	outcomes []models.Outcome
}

func (r *fakeRecorder) CreateRun(run *models.ScrapeRun) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, *run)
	return int64(len(r.runs)), nil
}

func (r *fakeRecorder) UpdateRun(run *models.ScrapeRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID-1] = *run
	return nil
}

func (r *fakeRecorder) Log(_ *int64, level models.LogLevel, message, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, string(level)+": "+message)
	return nil
}

func (r *fakeRecorder) UpdateKindStats(o models.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
	return nil
}

type fakeMirror struct {
	mu        sync.Mutex
	published []models.DataKind
	err       error
}

func (m *fakeMirror) Name() string { return "fake" }

func (m *fakeMirror) Publish(_ context.Context, kind models.DataKind, _ []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, kind)
	return m.err
}

type panicScraper struct {
	kind models.DataKind
}

func (s panicScraper) Kind() models.DataKind { return s.kind }

func (s panicScraper) Scrape(context.Context, browser.Loader) (*Document, error) {
	panic("selector exploded")
}
