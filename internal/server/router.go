package server

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/dailydiary/backend/internal/calendar"
	"github.com/MarcoPoloResearchLab/dailydiary/backend/internal/diary"
	"github.com/MarcoPoloResearchLab/dailydiary/backend/internal/reminders"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	ownerIDContextKey = "dailydiary_owner_id"
	ownerHeader       = "X-Owner-ID"
)

var (
	errMissingDiaryService = errors.New("diary service dependency required")
	errMissingReminders    = errors.New("reminder runner dependency required")
	errMissingDefaultOwner = errors.New("default owner dependency required")
)

// DiaryService is the slice of *diary.Service the HTTP surface depends on.
type DiaryService interface {
	RegisterOwner(ctx context.Context, ownerID diary.OwnerID, email string) (diary.Profile, error)
	Profile(ctx context.Context, ownerID diary.OwnerID) (diary.Profile, error)
	UpsertEntry(ctx context.Context, ownerID diary.OwnerID, content string, mood diary.Mood) (diary.UpsertResult, error)
	TodayEntry(ctx context.Context, ownerID diary.OwnerID) (diary.Entry, error)
	EntryForDate(ctx context.Context, ownerID diary.OwnerID, day calendar.Day) (diary.Entry, error)
	ListEntries(ctx context.Context, ownerID diary.OwnerID, page, limit int) (diary.EntryPage, error)
	CalendarMonth(ctx context.Context, ownerID diary.OwnerID, year int, month time.Month) ([]diary.MoodMark, error)
	MoodHistory(ctx context.Context, ownerID diary.OwnerID, days int) ([]diary.MoodMark, error)
}

// ReminderRunner triggers one reminder sweep.
type ReminderRunner interface {
	Run(ctx context.Context) (reminders.SweepResult, error)
}

// DefaultOwner identifies the owner used when a request names none.
type DefaultOwner struct {
	OwnerID diary.OwnerID
	Email   string
}

type Dependencies struct {
	DiaryService   DiaryService
	Reminders      ReminderRunner
	DefaultOwner   DefaultOwner
	AllowedOrigins []string
	Logger         *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.DiaryService == nil {
		return nil, errMissingDiaryService
	}
	if deps.Reminders == nil {
		return nil, errMissingReminders
	}
	if deps.DefaultOwner.OwnerID == "" {
		return nil, errMissingDefaultOwner
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins...))

	handler := &httpHandler{
		diaryService: deps.DiaryService,
		reminders:    deps.Reminders,
		defaultOwner: deps.DefaultOwner,
		logger:       logger,
	}

	api := router.Group("/api")
	api.GET("/health", handler.handleHealth)

	owned := api.Group("/")
	owned.Use(handler.resolveOwner)
	owned.GET("/auth/me", handler.handleCurrentOwner)
	owned.POST("/entries", handler.handleUpsertEntry)
	owned.GET("/entries", handler.handleListEntries)
	owned.GET("/entries/today", handler.handleTodayEntry)
	owned.GET("/entries/calendar/:year/:month", handler.handleCalendarMonth)
	owned.GET("/entries/mood/history", handler.handleMoodHistory)
	owned.GET("/entries/:date", handler.handleEntryForDate)

	api.POST("/reminders/run", handler.handleRunReminders)

	return router, nil
}

func corsMiddleware(allowedOrigins ...string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", ownerHeader},
		MaxAge:       12 * time.Hour,
	}
	if len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = allowedOrigins
		config.AllowCredentials = true
	}
	return cors.New(config)
}

type httpHandler struct {
	diaryService DiaryService
	reminders    ReminderRunner
	defaultOwner DefaultOwner
	logger       *zap.Logger
}

type entryPayload struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Date      string    `json:"date"`
	Content   string    `json:"content"`
	Mood      string    `json:"mood"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type streakPayload struct {
	CurrentStreak int  `json:"currentStreak"`
	LongestStreak int  `json:"longestStreak"`
	Degraded      bool `json:"degraded,omitempty"`
}

type upsertRequestPayload struct {
	Content string `json:"content"`
	Mood    string `json:"mood"`
}

type upsertResponsePayload struct {
	Entry  entryPayload  `json:"entry"`
	Streak streakPayload `json:"streak"`
}

type entryListPayload struct {
	Entries      []entryPayload `json:"entries"`
	CurrentPage  int            `json:"currentPage"`
	TotalPages   int            `json:"totalPages"`
	TotalEntries int64          `json:"totalEntries"`
}

type moodMarkPayload struct {
	Date calendar.Day `json:"date"`
	Mood string       `json:"mood"`
}

type profilePayload struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	CurrentStreak int    `json:"currentStreak"`
	LongestStreak int    `json:"longestStreak"`
}

type reminderRunPayload struct {
	Message string `json:"message"`
	Date    string `json:"date"`
	Count   int    `json:"count"`
	Failed  int    `json:"failed"`
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleCurrentOwner(c *gin.Context) {
	ownerID := ownerFromContext(c)
	profile, err := h.diaryService.Profile(c.Request.Context(), ownerID)
	if errors.Is(err, diary.ErrOwnerNotFound) && ownerID == h.defaultOwner.OwnerID {
		profile, err = h.diaryService.RegisterOwner(c.Request.Context(), ownerID, h.defaultOwner.Email)
	}
	if err != nil {
		h.respondError(c, "profile_failed", err)
		return
	}
	c.JSON(http.StatusOK, profilePayload{
		ID:            profile.OwnerID,
		Email:         profile.Email,
		CurrentStreak: profile.CurrentStreak,
		LongestStreak: profile.LongestStreak,
	})
}

func (h *httpHandler) handleUpsertEntry(c *gin.Context) {
	var request upsertRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if strings.TrimSpace(request.Content) == "" || strings.TrimSpace(request.Mood) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_content_or_mood"})
		return
	}

	result, err := h.diaryService.UpsertEntry(c.Request.Context(), ownerFromContext(c), request.Content, diary.Mood(request.Mood))
	if err != nil {
		h.respondError(c, "entry_save_failed", err)
		return
	}
	if result.Streak.Degraded {
		h.logger.Warn("entry saved with stale streak", zap.String("owner_id", result.Entry.OwnerID))
	}

	c.JSON(http.StatusCreated, upsertResponsePayload{
		Entry: newEntryPayload(result.Entry),
		Streak: streakPayload{
			CurrentStreak: result.Streak.Current,
			LongestStreak: result.Streak.Longest,
			Degraded:      result.Streak.Degraded,
		},
	})
}

func (h *httpHandler) handleListEntries(c *gin.Context) {
	page := queryInt(c, "page")
	limit := queryInt(c, "limit")

	entryPage, err := h.diaryService.ListEntries(c.Request.Context(), ownerFromContext(c), page, limit)
	if err != nil {
		h.respondError(c, "list_failed", err)
		return
	}

	response := entryListPayload{
		Entries:      make([]entryPayload, 0, len(entryPage.Entries)),
		CurrentPage:  entryPage.Page,
		TotalPages:   entryPage.TotalPages,
		TotalEntries: entryPage.Total,
	}
	for _, entry := range entryPage.Entries {
		response.Entries = append(response.Entries, newEntryPayload(entry))
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleTodayEntry(c *gin.Context) {
	entry, err := h.diaryService.TodayEntry(c.Request.Context(), ownerFromContext(c))
	if err != nil {
		h.respondError(c, "entry_lookup_failed", err)
		return
	}
	c.JSON(http.StatusOK, newEntryPayload(entry))
}

func (h *httpHandler) handleEntryForDate(c *gin.Context) {
	day, err := calendar.ParseDay(c.Param("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_date"})
		return
	}
	entry, err := h.diaryService.EntryForDate(c.Request.Context(), ownerFromContext(c), day)
	if err != nil {
		h.respondError(c, "entry_lookup_failed", err)
		return
	}
	c.JSON(http.StatusOK, newEntryPayload(entry))
}

func (h *httpHandler) handleCalendarMonth(c *gin.Context) {
	year, yearErr := strconv.Atoi(c.Param("year"))
	month, monthErr := strconv.Atoi(c.Param("month"))
	if yearErr != nil || monthErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_month"})
		return
	}
	marks, err := h.diaryService.CalendarMonth(c.Request.Context(), ownerFromContext(c), year, time.Month(month))
	if err != nil {
		h.respondError(c, "calendar_failed", err)
		return
	}
	c.JSON(http.StatusOK, newMoodMarkPayloads(marks))
}

func (h *httpHandler) handleMoodHistory(c *gin.Context) {
	marks, err := h.diaryService.MoodHistory(c.Request.Context(), ownerFromContext(c), queryInt(c, "days"))
	if err != nil {
		h.respondError(c, "mood_history_failed", err)
		return
	}
	c.JSON(http.StatusOK, newMoodMarkPayloads(marks))
}

func (h *httpHandler) handleRunReminders(c *gin.Context) {
	result, err := h.reminders.Run(c.Request.Context())
	if err != nil {
		h.respondError(c, "reminder_sweep_failed", err)
		return
	}
	c.JSON(http.StatusOK, reminderRunPayload{
		Message: "reminder sweep completed",
		Date:    result.Day.String(),
		Count:   result.Sent,
		Failed:  result.Failed,
	})
}

// resolveOwner binds the owner named by the X-Owner-ID header, or the default owner.
func (h *httpHandler) resolveOwner(c *gin.Context) {
	raw := c.GetHeader(ownerHeader)
	if strings.TrimSpace(raw) == "" {
		c.Set(ownerIDContextKey, h.defaultOwner.OwnerID)
		c.Next()
		return
	}
	ownerID, err := diary.NewOwnerID(raw)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_owner_id"})
		return
	}
	c.Set(ownerIDContextKey, ownerID)
	c.Next()
}

func ownerFromContext(c *gin.Context) diary.OwnerID {
	value, _ := c.Get(ownerIDContextKey)
	ownerID, _ := value.(diary.OwnerID)
	return ownerID
}

func (h *httpHandler) respondError(c *gin.Context, fallback string, err error) {
	switch {
	case errors.Is(err, diary.ErrEmptyContent):
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_content_or_mood"})
	case errors.Is(err, diary.ErrInvalidMood):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_mood"})
	case errors.Is(err, diary.ErrInvalidMonth):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_month"})
	case errors.Is(err, diary.ErrInvalidOwnerID):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_owner_id"})
	case errors.Is(err, diary.ErrOwnerNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "owner_not_found"})
	case errors.Is(err, diary.ErrEntryNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "entry_not_found"})
	default:
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		payload := gin.H{"error": fallback}
		var serviceErr *diary.ServiceError
		if errors.As(err, &serviceErr) {
			payload["code"] = serviceErr.Code()
		}
		c.JSON(http.StatusInternalServerError, payload)
	}
}

func newEntryPayload(entry diary.Entry) entryPayload {
	return entryPayload{
		ID:        entry.EntryID,
		OwnerID:   entry.OwnerID,
		Date:      entry.EntryDate,
		Content:   entry.Content,
		Mood:      string(entry.Mood),
		CreatedAt: entry.CreatedAt,
		UpdatedAt: entry.UpdatedAt,
	}
}

func newMoodMarkPayloads(marks []diary.MoodMark) []moodMarkPayload {
	payloads := make([]moodMarkPayload, 0, len(marks))
	for _, mark := range marks {
		payloads = append(payloads, moodMarkPayload{Date: mark.Date, Mood: string(mark.Mood)})
	}
	return payloads
}

// queryInt returns zero for missing or malformed values so the service applies its defaults.
func queryInt(c *gin.Context, name string) int {
	value, err := strconv.Atoi(strings.TrimSpace(c.Query(name)))
	if err != nil {
		return 0
	}
	return value
}
