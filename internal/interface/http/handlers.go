package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/application/command"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/application/eventhandler"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/application/query"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/domain/progression"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"name":    "progressiond",
		"version": s.config.Version,
		"endpoints": map[string]string{
			"health":       "/health",
			"achievements": "/api/v1/achievements",
			"progress":     "/api/v1/users/{id}/progress",
		},
	}, nil)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, r, http.StatusOK, map[string]any{
			"status":  "healthy",
			"uptime":  s.Uptime().String(),
			"version": s.config.Version,
		}, nil)
		return
	}

	status := s.deps.HealthChecker.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status, nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// WRITE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// streakDTO is the wire form of a streak state.
type streakDTO struct {
	CurrentStreak    int    `json:"current_streak"`
	LongestStreak    int    `json:"longest_streak"`
	TotalDays        int    `json:"total_days"`
	LastActiveDate   string `json:"last_active_date,omitempty"`
	GraceUsed        bool   `json:"grace_used"`
	GraceLastUsed    string `json:"grace_last_used,omitempty"`
	PrayerCurrent    int    `json:"prayer_current"`
	PrayerLongest    int    `json:"prayer_longest"`
	PrayerLastActive string `json:"prayer_last_active,omitempty"`
}

func newStreakDTO(s *progression.StreakState) *streakDTO {
	if s == nil {
		return nil
	}
	return &streakDTO{
		CurrentStreak:    s.CurrentStreak,
		LongestStreak:    s.LongestStreak,
		TotalDays:        s.TotalDays,
		LastActiveDate:   s.LastActiveDate.String(),
		GraceUsed:        s.GraceUsed,
		GraceLastUsed:    s.GraceLastUsed.String(),
		PrayerCurrent:    s.PrayerCurrent,
		PrayerLongest:    s.PrayerLongest,
		PrayerLastActive: s.PrayerLastActive.String(),
	}
}

type recordActivityRequest struct {
	ActivityType string         `json:"activity_type"`
	Book         string         `json:"book,omitempty"`
	Chapter      int            `json:"chapter,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

type recordActivityResponse struct {
	Streak               *streakDTO `json:"streak"`
	Transition           string     `json:"transition"`
	Credited             bool       `json:"credited"`
	XPDelta              int        `json:"xp_delta"`
	LeveledUp            bool       `json:"leveled_up"`
	UnlockedAchievements []string   `json:"unlocked_achievements"`
}

func (s *Server) handleRecordActivity(w http.ResponseWriter, r *http.Request) {
	var req recordActivityRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.deps.RecordActivity.Handle(r.Context(), command.RecordActivityCommand{
		UserID:       progression.UserID(r.PathValue("id")),
		ActivityType: progression.ActivityType(req.ActivityType),
		Book:         req.Book,
		Chapter:      req.Chapter,
		Extra:        req.Extra,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	unlocked := res.UnlockedAchievements
	if unlocked == nil {
		unlocked = []string{}
	}
	writeJSON(w, r, http.StatusOK, recordActivityResponse{
		Streak:               newStreakDTO(res.StreakState),
		Transition:           string(res.Transition),
		Credited:             res.Credited,
		XPDelta:              res.XPDelta,
		LeveledUp:            res.LeveledUp,
		UnlockedAchievements: unlocked,
	}, nil)
}

type evaluateRequest struct {
	Type    string         `json:"type"`
	Streak  int            `json:"streak,omitempty"`
	Book    string         `json:"book,omitempty"`
	Chapter int            `json:"chapter,omitempty"`
	Extra   map[string]any `json:"extra,omitempty"`
}

type unlockDTO struct {
	Key       string `json:"key"`
	Name      string `json:"name"`
	XPValue   int    `json:"xp_value"`
	XPAwarded int    `json:"xp_awarded"`
	LeveledUp bool   `json:"leveled_up"`
}

func (s *Server) handleEvaluateAchievements(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if !s.decode(w, r, &req) {
		return
	}

	unlocks, err := s.deps.Achievements.Unlock(r.Context(), progression.UserID(r.PathValue("id")), progression.Trigger{
		Kind:    progression.TriggerKind(req.Type),
		Streak:  req.Streak,
		Book:    req.Book,
		Chapter: req.Chapter,
		Extra:   req.Extra,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]unlockDTO, 0, len(unlocks))
	for _, u := range unlocks {
		out = append(out, unlockDTO(u))
	}
	writeJSON(w, r, http.StatusOK, out, &ResponseMeta{TotalCount: len(out)})
}

type eventRequest struct {
	Event   string `json:"event"`
	Book    string `json:"book,omitempty"`
	Chapter int    `json:"chapter,omitempty"`
	Count   int    `json:"count,omitempty"`
}

// handleEvent is the integration boundary over HTTP. Failures inside the
// hook are reported in the summary, never as an error status.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if !s.decode(w, r, &req) {
		return
	}

	userID := progression.UserID(r.PathValue("id"))
	if !userID.IsValid() {
		s.writeError(w, r, shared.ErrInvalidUserID)
		return
	}
	kind := progression.EventType(req.Event)
	if err := kind.Validate(); err != nil || kind.IsAchievement() {
		s.writeError(w, r, shared.ErrUnknownEventType)
		return
	}

	summary := s.deps.Activity.Handle(r.Context(), eventhandler.ActivityEvent{
		UserID:  userID,
		Kind:    kind,
		Book:    req.Book,
		Chapter: req.Chapter,
		Count:   req.Count,
	})
	writeJSON(w, r, http.StatusAccepted, summary, nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// READ HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.GetProgress.Handle(r.Context(), query.GetProgressQuery{
		UserID: progression.UserID(r.PathValue("id")),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto, nil)
}

func (s *Server) handleListXPEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := getQueryParamInt(r, "limit", 50)
	if err != nil {
		s.writeError(w, r, shared.Validation("xp", "History", "limit must be an integer"))
		return
	}

	events, err := s.deps.ListXPHistory.Handle(r.Context(), query.ListXPHistoryQuery{
		UserID: progression.UserID(r.PathValue("id")),
		Limit:  limit,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, events, &ResponseMeta{TotalCount: len(events)})
}

func (s *Server) handleListAchievements(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.ListAchievements.Handle(r.Context(), query.ListAchievementsQuery{
		UserID: progression.UserID(r.URL.Query().Get("user_id")),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, list, &ResponseMeta{TotalCount: len(list)})
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// decode reads a JSON body into dst, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeJSONError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body too large")
		case errors.Is(err, io.EOF):
			writeJSONError(w, r, http.StatusBadRequest, "invalid_request", "Request body is required")
		default:
			writeJSONError(w, r, http.StatusBadRequest, "invalid_request", "Request body must be valid JSON")
		}
		return false
	}
	normalizeNumbers(dst)
	return true
}

// normalizeNumbers turns json.Number values in Extra maps into int64 or
// float64 so count-based rules can read them.
func normalizeNumbers(dst any) {
	var extra map[string]any
	switch v := dst.(type) {
	case *recordActivityRequest:
		extra = v.Extra
	case *evaluateRequest:
		extra = v.Extra
	}
	for k, val := range extra {
		n, ok := val.(json.Number)
		if !ok {
			continue
		}
		if i, err := n.Int64(); err == nil {
			extra[k] = i
		} else if f, err := n.Float64(); err == nil {
			extra[k] = f
		}
	}
}

// getQueryParamInt extracts an integer query parameter with a default value.
func getQueryParamInt(r *http.Request, key string, defaultValue int) (int, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(value)
}
