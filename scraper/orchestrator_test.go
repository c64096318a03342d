package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"f2_scrooper/browser"
	"f2_scrooper/models"
	"f2_scrooper/storage"
)

type harness struct {
	orch     *Orchestrator
	loader   *fakeLoader
	provider *fakeProvider
	recorder *fakeRecorder
	mirror   *fakeMirror
	results  *storage.ResultsStore
	dir      string
}

func newHarness(t *testing.T, scrapers ...Scraper) *harness {
	t.Helper()
	dir := t.TempDir()
	results, err := storage.NewResultsStore(dir)
	require.NoError(t, err)

	loader := newFakeLoader()
	seedSeasons(loader, 3)

	if len(scrapers) == 0 {
		scrapers = NewScrapers(Options{Site: testSite(), Log: zap.NewNop()})
	}

	h := &harness{
		loader:   loader,
		provider: &fakeProvider{loader: loader},
		recorder: &fakeRecorder{},
		mirror:   &fakeMirror{},
		results:  results,
		dir:      dir,
	}
	h.orch = NewOrchestrator(Deps{
		Provider: h.provider,
		Scrapers: scrapers,
		Results:  results,
		Recorder: h.recorder,
		Mirrors:  []storage.Mirror{h.mirror},
		Log:      zap.NewNop(),
	})
	return h
}

func (h *harness) read(t *testing.T, kind models.DataKind) []byte {
	t.Helper()
	body, err := os.ReadFile(filepath.Join(h.dir, kind.Filename()))
	require.NoError(t, err)
	return body
}

func TestRunCycleWritesEveryKind(t *testing.T) {
	h := newHarness(t)

	report, err := h.orch.RunCycle(context.Background(), "test")
	require.NoError(t, err)
	require.True(t, report.Success())
	assert.Equal(t, models.AllKinds, report.Succeeded())
	assert.Equal(t, 1, h.provider.acquired)
	assert.Equal(t, 1, h.provider.released)

	var drivers []map[string]any
	require.NoError(t, json.Unmarshal(h.read(t, models.KindDriverStandings), &drivers))
	require.Len(t, drivers, 3)
	assert.EqualValues(t, 2017, drivers[0]["year"])
	row := drivers[0]["standings"].([]any)[0].(map[string]any)
	assert.Equal(t, "Driver 2017", row["driverName"])
	assert.Equal(t, []any{"0"}, row["sprintRaceScores"])
	assert.Equal(t, []any{"25"}, row["featureRaceScores"])

	var teams []StandingsYear[TeamStanding]
	require.NoError(t, json.Unmarshal(h.read(t, models.KindTeamStandings), &teams))
	assert.Equal(t, "Team 2019", teams[2].Standings[0].TeamName)

	var calendar CalendarDocument
	require.NoError(t, json.Unmarshal(h.read(t, models.KindCalendar), &calendar))
	want := CalendarDocument{
		"2017": {Title: "2017 Calendar", Races: []models.Race{{StartDate: "01", EndDate: "03", Month: "Mar", Location: "Bahrain"}}},
		"2018": {Title: "2018 Calendar", Races: []models.Race{{StartDate: "01", EndDate: "03", Month: "Mar", Location: "Bahrain"}}},
		"2019": {Title: "2019 Calendar", Races: []models.Race{{StartDate: "01", EndDate: "03", Month: "Mar", Location: "Bahrain"}}},
	}
	if diff := cmp.Diff(want, calendar); diff != "" {
		t.Fatalf("calendar mismatch (-want +got):\n%s", diff)
	}

	var roster []RosterYear
	require.NoError(t, json.Unmarshal(h.read(t, models.KindTeamsAndDrivers), &roster))
	require.Len(t, roster, 3)
	assert.Equal(t, []models.RosterEntry{{TeamName: "Carlin", Drivers: []string{"Driver"}}}, roster[0].Teams)

	assert.Equal(t, models.AllKinds, h.mirror.published)
	require.Len(t, h.recorder.runs, 1)
	assert.Equal(t, models.RunStatusCompleted, h.recorder.runs[0].Status)
	assert.Equal(t, 4, h.recorder.runs[0].KindsOK)
}

func TestRunCyclePartialFailureKeepsPreviousDocument(t *testing.T) {
	h := newHarness(t)

	previous := []byte("[{\"year\":2017,\"title\":\"old\",\"teams\":[]}]\n")
	require.NoError(t, os.WriteFile(filepath.Join(h.dir, models.KindTeamsAndDrivers.Filename()), previous, 0644))
	staleCalendar := []byte("{}\n")
	require.NoError(t, os.WriteFile(filepath.Join(h.dir, models.KindCalendar.Filename()), staleCalendar, 0644))

	h.loader.errs[testBase+"/roster/2017"] = errors.New("browser disconnected")

	report, err := h.orch.RunCycle(context.Background(), "test")
	require.NoError(t, err)

	assert.False(t, report.Success())
	assert.Equal(t, models.RunStatusPartial, report.Status())
	assert.Equal(t, []models.DataKind{models.KindTeamsAndDrivers}, report.Failed())
	assert.Contains(t, report.Outcomes[models.KindTeamsAndDrivers].Error, "browser disconnected")

	assert.Equal(t, previous, h.read(t, models.KindTeamsAndDrivers))
	assert.NotEqual(t, staleCalendar, h.read(t, models.KindCalendar))
	assert.NotContains(t, h.mirror.published, models.KindTeamsAndDrivers)

	assert.Equal(t, models.RunStatusPartial, h.recorder.runs[0].Status)
	assert.Equal(t, 1, h.recorder.runs[0].KindsFailed)
}

func TestRunCycleIsIdempotent(t *testing.T) {
	h := newHarness(t)

	first, err := h.orch.RunCycle(context.Background(), "test")
	require.NoError(t, err)
	snapshot := make(map[models.DataKind][]byte)
	for _, k := range models.AllKinds {
		snapshot[k] = h.read(t, k)
	}

	second, err := h.orch.RunCycle(context.Background(), "test")
	require.NoError(t, err)

	for _, k := range models.AllKinds {
		assert.Equal(t, snapshot[k], h.read(t, k), "kind %s", k)
		assert.Equal(t, first.Outcomes[k].Fingerprint, second.Outcomes[k].Fingerprint)
		assert.True(t, second.Outcomes[k].Unchanged)
	}
}

func TestRunCycleRecoversPanics(t *testing.T) {
	h := newHarness(t,
		panicScraper{kind: models.KindDriverStandings},
		NewCalendarScraper(Options{Site: testSite(), Log: zap.NewNop()}),
	)

	report, err := h.orch.RunCycle(context.Background(), "test")
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeFailed, report.Outcomes[models.KindDriverStandings].Status)
	assert.Contains(t, report.Outcomes[models.KindDriverStandings].Error, "selector exploded")
	assert.Equal(t, models.OutcomeSuccess, report.Outcomes[models.KindCalendar].Status)
	assert.Equal(t, 1, h.provider.released)
}

func TestRunCycleLaunchFailure(t *testing.T) {
	h := newHarness(t)
	h.provider.err = fmt.Errorf("%w: chromium missing", browser.ErrLaunch)

	report, err := h.orch.RunCycle(context.Background(), "test")
	require.Error(t, err)
	assert.ErrorIs(t, err, browser.ErrLaunch)
	assert.Nil(t, report)

	require.Len(t, h.recorder.runs, 1)
	assert.Equal(t, models.RunStatusFailed, h.recorder.runs[0].Status)
	assert.Contains(t, h.recorder.runs[0].Error, "chromium missing")
}

func TestRunCycleCancelled(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := h.orch.RunCycle(ctx, "test")
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	for _, k := range models.AllKinds {
		assert.Equal(t, models.OutcomeSkipped, report.Outcomes[k].Status)
	}
	assert.Equal(t, 1, h.provider.released)
}

func TestRunCycleMirrorFailureDoesNotFailKind(t *testing.T) {
	h := newHarness(t)
	h.mirror.err = errors.New("bucket gone")

	report, err := h.orch.RunCycle(context.Background(), "test")
	require.NoError(t, err)
	assert.True(t, report.Success())
	assert.Len(t, h.mirror.published, 4)
}

func TestRunKind(t *testing.T) {
	h := newHarness(t)

	report, err := h.orch.RunKind(context.Background(), models.KindCalendar, "manual")
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, models.OutcomeSuccess, report.Outcomes[models.KindCalendar].Status)
	assert.Equal(t, 3, report.Outcomes[models.KindCalendar].Seasons)
	_, err = os.Stat(filepath.Join(h.dir, models.KindDriverStandings.Filename()))
	assert.True(t, os.IsNotExist(err))

	_, err = h.orch.RunKind(context.Background(), models.DataKind("qualifying"), "manual")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestPauseResume(t *testing.T) {
	h := newHarness(t)
	assert.False(t, h.orch.IsPaused())
	h.orch.Pause()
	assert.True(t, h.orch.IsPaused())
	h.orch.Resume()
	assert.False(t, h.orch.IsPaused())
}
