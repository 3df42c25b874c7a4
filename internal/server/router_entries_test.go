package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/dailydiary/backend/internal/calendar"
	"github.com/MarcoPoloResearchLab/dailydiary/backend/internal/database"
	"github.com/MarcoPoloResearchLab/dailydiary/backend/internal/diary"
	"github.com/MarcoPoloResearchLab/dailydiary/backend/internal/reminders"
	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testDefaultOwner = diary.OwnerID("000000000000000000000001")
	testDefaultEmail = "user@dailydiary.com"
)

type stubRunner struct {
	result reminders.SweepResult
	err    error
	calls  int
}

func (r *stubRunner) Run(context.Context) (reminders.SweepResult, error) {
	r.calls++
	return r.result, r.err
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

type testHarness struct {
	handler http.Handler
	db      *gorm.DB
	clock   *testClock
	runner  *stubRunner
}

func newTestHarness(testContext *testing.T) *testHarness {
	testContext.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(filepath.Join(testContext.TempDir(), "router.db")), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	if err := database.Migrate(db, database.OwnerSeed{OwnerID: testDefaultOwner.String(), Email: testDefaultEmail}, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to migrate: %v", err)
	}

	clock := &testClock{now: time.Date(2024, time.June, 6, 18, 30, 0, 0, time.UTC)}
	service, err := diary.NewService(diary.ServiceConfig{
		Database:   db,
		Clock:      clock.Now,
		IDProvider: diary.NewUUIDProvider(),
		Logger:     zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to create diary service: %v", err)
	}

	runner := &stubRunner{}
	handler, err := NewHTTPHandler(Dependencies{
		DiaryService: service,
		Reminders:    runner,
		DefaultOwner: DefaultOwner{OwnerID: testDefaultOwner, Email: testDefaultEmail},
		Logger:       zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}
	return &testHarness{handler: handler, db: db, clock: clock, runner: runner}
}

func (h *testHarness) do(testContext *testing.T, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	testContext.Helper()
	request := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		request.Header.Set(key, value)
	}
	recorder := httptest.NewRecorder()
	h.handler.ServeHTTP(recorder, request)
	return recorder
}

func (h *testHarness) seed(testContext *testing.T, ownerID diary.OwnerID, date string, mood diary.Mood) {
	testContext.Helper()
	stamp := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	entry := diary.Entry{
		EntryID:   ownerID.String() + "-" + date,
		OwnerID:   ownerID.String(),
		EntryDate: date,
		Content:   "seeded " + date,
		Mood:      mood,
		CreatedAt: stamp,
		UpdatedAt: stamp,
	}
	if err := h.db.Create(&entry).Error; err != nil {
		testContext.Fatalf("failed to seed entry: %v", err)
	}
}

func decodeJSON(testContext *testing.T, recorder *httptest.ResponseRecorder, target any) {
	testContext.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		testContext.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

func TestNewHTTPHandlerRequiresDependencies(testContext *testing.T) {
	if _, err := NewHTTPHandler(Dependencies{Reminders: &stubRunner{}, DefaultOwner: DefaultOwner{OwnerID: testDefaultOwner}}); !errors.Is(err, errMissingDiaryService) {
		testContext.Fatalf("expected missing diary service error, got %v", err)
	}
}

func TestHealthEndpoint(testContext *testing.T) {
	harness := newTestHarness(testContext)
	recorder := harness.do(testContext, http.MethodGet, "/api/health", "", nil)
	if recorder.Code != http.StatusOK {
		testContext.Fatalf("expected ok, got %d", recorder.Code)
	}
	if recorder.Body.String() != `{"status":"ok"}` {
		testContext.Fatalf("unexpected body %s", recorder.Body.String())
	}
}

func TestUpsertEntryReturnsEntryAndStreak(testContext *testing.T) {
	harness := newTestHarness(testContext)
	harness.seed(testContext, testDefaultOwner, "2024-06-05", diary.MoodSad)

	recorder := harness.do(testContext, http.MethodPost, "/api/entries", `{"content":"A calm day","mood":"Happy"}`, nil)
	if recorder.Code != http.StatusCreated {
		testContext.Fatalf("expected created, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var created upsertResponsePayload
	decodeJSON(testContext, recorder, &created)
	if created.Entry.Date != "2024-06-06" || created.Entry.Mood != "happy" || created.Entry.OwnerID != testDefaultOwner.String() {
		testContext.Fatalf("unexpected entry %+v", created.Entry)
	}
	if created.Streak.CurrentStreak != 2 || created.Streak.LongestStreak != 2 || created.Streak.Degraded {
		testContext.Fatalf("unexpected streak %+v", created.Streak)
	}

	recorder = harness.do(testContext, http.MethodPost, "/api/entries", `{"content":"Rewritten","mood":"tired"}`, nil)
	if recorder.Code != http.StatusCreated {
		testContext.Fatalf("expected created on update, got %d", recorder.Code)
	}
	var updated upsertResponsePayload
	decodeJSON(testContext, recorder, &updated)
	if updated.Entry.ID != created.Entry.ID || updated.Entry.Content != "Rewritten" {
		testContext.Fatalf("expected same entry to be updated, got %+v", updated.Entry)
	}

	recorder = harness.do(testContext, http.MethodGet, "/api/auth/me", "", nil)
	var profile profilePayload
	decodeJSON(testContext, recorder, &profile)
	if profile.CurrentStreak != 2 || profile.LongestStreak != 2 || profile.Email != testDefaultEmail {
		testContext.Fatalf("unexpected profile %+v", profile)
	}
}

func TestUpsertEntryRejectsInvalidPayloads(testContext *testing.T) {
	harness := newTestHarness(testContext)
	testCases := []struct {
		body     string
		expected string
	}{
		{body: `{"content":"","mood":"happy"}`, expected: `{"error":"missing_content_or_mood"}`},
		{body: `{"content":"text"}`, expected: `{"error":"missing_content_or_mood"}`},
		{body: `{"content":"text","mood":"ecstatic"}`, expected: `{"error":"invalid_mood"}`},
		{body: `not json`, expected: `{"error":"invalid_request"}`},
	}
	for _, testCase := range testCases {
		recorder := harness.do(testContext, http.MethodPost, "/api/entries", testCase.body, nil)
		if recorder.Code != http.StatusBadRequest {
			testContext.Fatalf("expected bad request for %s, got %d", testCase.body, recorder.Code)
		}
		if recorder.Body.String() != testCase.expected {
			testContext.Fatalf("unexpected body for %s: %s", testCase.body, recorder.Body.String())
		}
	}
}

func TestUpsertEntryForUnknownOwnerIsNotFound(testContext *testing.T) {
	harness := newTestHarness(testContext)
	recorder := harness.do(testContext, http.MethodPost, "/api/entries", `{"content":"hi","mood":"happy"}`, map[string]string{ownerHeader: "stranger"})
	if recorder.Code != http.StatusNotFound {
		testContext.Fatalf("expected not found, got %d", recorder.Code)
	}
	if recorder.Body.String() != `{"error":"owner_not_found"}` {
		testContext.Fatalf("unexpected body %s", recorder.Body.String())
	}
}

func TestEntryLookups(testContext *testing.T) {
	harness := newTestHarness(testContext)
	harness.seed(testContext, testDefaultOwner, "2024-06-01", diary.MoodNeutral)

	recorder := harness.do(testContext, http.MethodGet, "/api/entries/today", "", nil)
	if recorder.Code != http.StatusNotFound || recorder.Body.String() != `{"error":"entry_not_found"}` {
		testContext.Fatalf("expected today lookup to miss, got %d %s", recorder.Code, recorder.Body.String())
	}

	recorder = harness.do(testContext, http.MethodGet, "/api/entries/2024-06-01", "", nil)
	if recorder.Code != http.StatusOK {
		testContext.Fatalf("expected ok, got %d", recorder.Code)
	}
	var entry entryPayload
	decodeJSON(testContext, recorder, &entry)
	if entry.Date != "2024-06-01" || entry.Mood != "neutral" {
		testContext.Fatalf("unexpected entry %+v", entry)
	}

	recorder = harness.do(testContext, http.MethodGet, "/api/entries/2024-6-1", "", nil)
	if recorder.Code != http.StatusBadRequest || recorder.Body.String() != `{"error":"invalid_date"}` {
		testContext.Fatalf("expected invalid date, got %d %s", recorder.Code, recorder.Body.String())
	}

	recorder = harness.do(testContext, http.MethodGet, "/api/entries/2024-06-02", "", nil)
	if recorder.Code != http.StatusNotFound {
		testContext.Fatalf("expected not found, got %d", recorder.Code)
	}
}

func TestListEntriesPaginates(testContext *testing.T) {
	harness := newTestHarness(testContext)
	for _, date := range []string{"2024-06-01", "2024-06-02", "2024-06-03"} {
		harness.seed(testContext, testDefaultOwner, date, diary.MoodHappy)
	}

	recorder := harness.do(testContext, http.MethodGet, "/api/entries?page=2&limit=2", "", nil)
	if recorder.Code != http.StatusOK {
		testContext.Fatalf("expected ok, got %d", recorder.Code)
	}
	var page entryListPayload
	decodeJSON(testContext, recorder, &page)
	if page.CurrentPage != 2 || page.TotalPages != 2 || page.TotalEntries != 3 {
		testContext.Fatalf("unexpected page metadata %+v", page)
	}
	if len(page.Entries) != 1 || page.Entries[0].Date != "2024-06-01" {
		testContext.Fatalf("unexpected page entries %+v", page.Entries)
	}

	recorder = harness.do(testContext, http.MethodGet, "/api/entries?page=abc", "", nil)
	decodeJSON(testContext, recorder, &page)
	if page.CurrentPage != 1 || len(page.Entries) != 3 {
		testContext.Fatalf("expected malformed page to fall back to first page, got %+v", page)
	}
}

func TestCalendarAndMoodHistory(testContext *testing.T) {
	harness := newTestHarness(testContext)
	harness.seed(testContext, testDefaultOwner, "2024-05-31", diary.MoodSad)
	harness.seed(testContext, testDefaultOwner, "2024-06-02", diary.MoodHappy)
	harness.seed(testContext, testDefaultOwner, "2024-06-06", diary.MoodTired)

	recorder := harness.do(testContext, http.MethodGet, "/api/entries/calendar/2024/6", "", nil)
	if recorder.Code != http.StatusOK {
		testContext.Fatalf("expected ok, got %d", recorder.Code)
	}
	if recorder.Body.String() != `[{"date":"2024-06-02","mood":"happy"},{"date":"2024-06-06","mood":"tired"}]` {
		testContext.Fatalf("unexpected calendar body %s", recorder.Body.String())
	}

	for _, target := range []string{"/api/entries/calendar/2024/13", "/api/entries/calendar/year/6"} {
		recorder = harness.do(testContext, http.MethodGet, target, "", nil)
		if recorder.Code != http.StatusBadRequest || recorder.Body.String() != `{"error":"invalid_month"}` {
			testContext.Fatalf("expected invalid month for %s, got %d %s", target, recorder.Code, recorder.Body.String())
		}
	}

	recorder = harness.do(testContext, http.MethodGet, "/api/entries/mood/history?days=5", "", nil)
	if recorder.Code != http.StatusOK {
		testContext.Fatalf("expected ok, got %d", recorder.Code)
	}
	var marks []moodMarkPayload
	decodeJSON(testContext, recorder, &marks)
	if len(marks) != 2 || marks[0].Date != calendar.NewDay(2024, time.June, 2) || marks[1].Mood != "tired" {
		testContext.Fatalf("unexpected mood history %+v", marks)
	}

	recorder = harness.do(testContext, http.MethodGet, "/api/entries/mood/history", "", nil)
	decodeJSON(testContext, recorder, &marks)
	if len(marks) != 3 {
		testContext.Fatalf("expected default window to include all entries, got %+v", marks)
	}
}

func TestOwnerHeaderScopesRequests(testContext *testing.T) {
	harness := newTestHarness(testContext)
	harness.seed(testContext, "someone-else", "2024-06-02", diary.MoodHappy)

	recorder := harness.do(testContext, http.MethodGet, "/api/entries", "", nil)
	var page entryListPayload
	decodeJSON(testContext, recorder, &page)
	if page.TotalEntries != 0 {
		testContext.Fatalf("expected default owner to see no entries, got %d", page.TotalEntries)
	}

	recorder = harness.do(testContext, http.MethodGet, "/api/entries", "", map[string]string{ownerHeader: "someone-else"})
	decodeJSON(testContext, recorder, &page)
	if page.TotalEntries != 1 {
		testContext.Fatalf("expected header owner to see their entry, got %d", page.TotalEntries)
	}

	recorder = harness.do(testContext, http.MethodGet, "/api/auth/me", "", map[string]string{ownerHeader: "someone-else"})
	if recorder.Code != http.StatusNotFound {
		testContext.Fatalf("expected unknown owner profile to be missing, got %d", recorder.Code)
	}

	recorder = harness.do(testContext, http.MethodGet, "/api/entries", "", map[string]string{ownerHeader: strings.Repeat("x", 191)})
	if recorder.Code != http.StatusBadRequest || recorder.Body.String() != `{"error":"invalid_owner_id"}` {
		testContext.Fatalf("expected invalid owner id, got %d %s", recorder.Code, recorder.Body.String())
	}
}

func TestCurrentOwnerRecreatesMissingDefaultProfile(testContext *testing.T) {
	harness := newTestHarness(testContext)
	if err := harness.db.Where("owner_id = ?", testDefaultOwner.String()).Delete(&diary.Profile{}).Error; err != nil {
		testContext.Fatalf("failed to delete profile: %v", err)
	}

	recorder := harness.do(testContext, http.MethodGet, "/api/auth/me", "", nil)
	if recorder.Code != http.StatusOK {
		testContext.Fatalf("expected ok, got %d", recorder.Code)
	}
	var profile profilePayload
	decodeJSON(testContext, recorder, &profile)
	if profile.ID != testDefaultOwner.String() || profile.Email != testDefaultEmail || profile.CurrentStreak != 0 {
		testContext.Fatalf("unexpected profile %+v", profile)
	}
}

func TestRunRemindersReportsCount(testContext *testing.T) {
	harness := newTestHarness(testContext)
	harness.runner.result = reminders.SweepResult{Day: calendar.NewDay(2024, time.June, 6), Checked: 3, Sent: 2, Failed: 1}

	recorder := harness.do(testContext, http.MethodPost, "/api/reminders/run", "", nil)
	if recorder.Code != http.StatusOK {
		testContext.Fatalf("expected ok, got %d", recorder.Code)
	}
	var payload reminderRunPayload
	decodeJSON(testContext, recorder, &payload)
	if payload.Count != 2 || payload.Failed != 1 || payload.Date != "2024-06-06" {
		testContext.Fatalf("unexpected payload %+v", payload)
	}

	harness.runner.err = errors.New("directory offline")
	recorder = harness.do(testContext, http.MethodPost, "/api/reminders/run", "", nil)
	if recorder.Code != http.StatusInternalServerError || recorder.Body.String() != `{"error":"reminder_sweep_failed"}` {
		testContext.Fatalf("expected sweep failure, got %d %s", recorder.Code, recorder.Body.String())
	}
	if harness.runner.calls != 2 {
		testContext.Fatalf("expected two sweeps, got %d", harness.runner.calls)
	}
}

func TestHandleListEntriesIncludesServiceErrorCode(testContext *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	context, _ := gin.CreateTestContext(recorder)
	context.Set(ownerIDContextKey, testDefaultOwner)
	context.Request = httptest.NewRequest(http.MethodGet, "/api/entries", http.NoBody)

	handler := &httpHandler{
		diaryService: &diary.Service{},
		logger:       zap.NewNop(),
	}

	handler.handleListEntries(context)

	if recorder.Code != http.StatusInternalServerError {
		testContext.Fatalf("expected internal server error status, got %d", recorder.Code)
	}
	var payload map[string]any
	decodeJSON(testContext, recorder, &payload)
	if payload["code"] != "diary.list_entries.missing_database" {
		testContext.Fatalf("expected service error code, got %v", payload["code"])
	}
}
