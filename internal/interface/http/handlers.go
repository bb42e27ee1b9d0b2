package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/practica-musical/progression-hub/internal/application/command"
	"github.com/practica-musical/progression-hub/internal/application/query"
	"github.com/practica-musical/progression-hub/internal/domain/backpack"
	"github.com/practica-musical/progression-hub/internal/domain/promotion"
	"github.com/practica-musical/progression-hub/internal/domain/shared"
	"github.com/practica-musical/progression-hub/internal/domain/xp"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{
		"status": "healthy",
		"uptime": s.Uptime().String(),
	})
}

// handleReady handles GET /ready
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		if err := s.deps.HealthChecker.Ping(r.Context()); err != nil {
			writeJSONError(w, r, http.StatusServiceUnavailable, "not_ready", err.Error())
			return
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type addXPRequest struct {
	Skill     string    `json:"skill"`
	Source    string    `json:"source"`
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
	EventKey  string    `json:"event_key"`
}

// totalsView is the wire shape of a ledger row.
type totalsView struct {
	Skill              shared.Skill `json:"skill"`
	PracticeXP         float64      `json:"practice_xp"`
	EvaluationXP       float64      `json:"evaluation_xp"`
	TotalXP            float64      `json:"total_xp"`
	LastUpdatedAt      *time.Time   `json:"last_updated_at,omitempty"`
	LastManualXPAt     *time.Time   `json:"last_manual_xp_at,omitempty"`
	LastManualXPAmount float64      `json:"last_manual_xp_amount"`
}

func viewTotals(t xp.Totals) totalsView {
	return totalsView{
		Skill:              t.Skill,
		PracticeXP:         t.PracticeXP,
		EvaluationXP:       t.EvaluationXP,
		TotalXP:            t.TotalXP,
		LastUpdatedAt:      optionalTime(t.LastUpdatedAt),
		LastManualXPAt:     optionalTime(t.LastManualXPAt),
		LastManualXPAmount: t.LastManualXPAmount,
	}
}

// handleAddXP handles POST /api/v1/students/{id}/xp
func (s *Server) handleAddXP(w http.ResponseWriter, r *http.Request) {
	var req addXPRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.deps.AddXP.Handle(r.Context(), command.AddXPCommand{
		StudentID: r.PathValue("id"),
		Skill:     shared.Skill(req.Skill),
		Source:    shared.Source(req.Source),
		Amount:    req.Amount,
		Timestamp: req.Timestamp,
		EventKey:  req.EventKey,
		ActorID:   actorID(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, r, status, map[string]any{
		"totals":    viewTotals(res.Totals),
		"duplicate": res.Duplicate,
		"changed":   res.Changed,
	})
}

type completeBlockRequest struct {
	BlockID       string    `json:"block_id"`
	Type          string    `json:"type"`
	TargetTempo   float64   `json:"target_tempo"`
	AchievedTempo float64   `json:"achieved_tempo"`
	CompletedAt   time.Time `json:"completed_at"`
}

// handleCompleteBlock handles POST /api/v1/students/{id}/blocks
func (s *Server) handleCompleteBlock(w http.ResponseWriter, r *http.Request) {
	var req completeBlockRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.deps.CompleteBlock.Handle(r.Context(), command.CompletePracticeBlockCommand{
		BlockID:       req.BlockID,
		StudentID:     r.PathValue("id"),
		Type:          req.Type,
		TargetTempo:   req.TargetTempo,
		AchievedTempo: req.AchievedTempo,
		CompletedAt:   req.CompletedAt,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	totals := make([]totalsView, 0, len(res.Totals))
	for _, skill := range shared.AllSkills() {
		if t, ok := res.Totals[skill]; ok {
			totals = append(totals, viewTotals(t))
		}
	}
	writeJSON(w, r, http.StatusCreated, map[string]any{
		"block_id": res.Block.ID,
		"award":    res.Award,
		"credited": res.Credited,
		"totals":   totals,
	})
}

// handlePracticeXP handles GET /api/v1/students/{id}/xp/practice?window=30
func (s *Server) handlePracticeXP(w http.ResponseWriter, r *http.Request) {
	window, ok := s.intParam(w, r, "window")
	if !ok {
		return
	}
	res, err := s.deps.PracticeXP.Handle(r.Context(), query.PracticeXPQuery{StudentID: r.PathValue("id"), WindowDays: window})
	s.respond(w, r, res, err)
}

// handleEvaluationXP handles GET /api/v1/students/{id}/xp/evaluation?window=30
func (s *Server) handleEvaluationXP(w http.ResponseWriter, r *http.Request) {
	window, ok := s.intParam(w, r, "window")
	if !ok {
		return
	}
	res, err := s.deps.EvaluationXP.Handle(r.Context(), query.EvaluationXPQuery{StudentID: r.PathValue("id"), WindowDays: window})
	s.respond(w, r, res, err)
}

// handleManualXP handles GET /api/v1/students/{id}/xp/manual?window=30
func (s *Server) handleManualXP(w http.ResponseWriter, r *http.Request) {
	window, ok := s.intParam(w, r, "window")
	if !ok {
		return
	}
	res, err := s.deps.ManualXP.Handle(r.Context(), query.ManualXPQuery{StudentID: r.PathValue("id"), WindowDays: window})
	s.respond(w, r, res, err)
}

// ══════════════════════════════════════════════════════════════════════════════
// PROMOTION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleCanPromote handles GET /api/v1/students/{id}/promotion?level=n
func (s *Server) handleCanPromote(w http.ResponseWriter, r *http.Request) {
	level, ok := s.intParam(w, r, "level")
	if !ok {
		return
	}
	res, err := s.deps.CanPromote.Handle(r.Context(), query.CanPromoteQuery{StudentID: r.PathValue("id"), Level: level})
	s.respond(w, r, res, err)
}

type reviewRequest struct {
	Level       int                    `json:"level"`
	Adjustments []promotion.Adjustment `json:"adjustments"`
	Toggles     []promotion.Toggle     `json:"toggles"`
	ReviewID    string                 `json:"review_id"`
}

// handlePreviewPromotion handles POST /api/v1/students/{id}/promotion/preview
func (s *Server) handlePreviewPromotion(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.deps.PreviewPromotion.Handle(r.Context(), query.PreviewPromotionQuery{
		StudentID:   r.PathValue("id"),
		Level:       req.Level,
		Adjustments: req.Adjustments,
		Toggles:     req.Toggles,
	})
	s.respond(w, r, res, err)
}

// handleCommitReview handles POST /api/v1/students/{id}/promotion/review
func (s *Server) handleCommitReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.deps.CommitReview.Handle(r.Context(), command.CommitProfessorReviewCommand{
		StudentID:   r.PathValue("id"),
		Level:       req.Level,
		Adjustments: req.Adjustments,
		Toggles:     req.Toggles,
		ReviewID:    req.ReviewID,
		ActorID:     actorID(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	statuses := make([]statusView, 0, len(res.Statuses))
	for _, st := range res.Statuses {
		statuses = append(statuses, viewStatus(st))
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"applied":  res.Applied,
		"statuses": statuses,
		"check":    res.Check,
	})
}

// statusView is the wire shape of a criterion status.
type statusView struct {
	CriterionID string                    `json:"criterion_id"`
	Status      promotion.CriterionStatus `json:"status"`
	AssessedBy  string                    `json:"assessed_by,omitempty"`
	AssessedAt  *time.Time                `json:"assessed_at,omitempty"`
}

func viewStatus(st promotion.CriteriaStatus) statusView {
	return statusView{
		CriterionID: st.CriterionID,
		Status:      st.Status,
		AssessedBy:  st.AssessedBy,
		AssessedAt:  optionalTime(st.AssessedAt),
	}
}

type promoteRequest struct {
	Level  int    `json:"level"`
	Reason string `json:"reason"`
	Force  bool   `json:"force"`
}

// handlePromoteLevel handles PUT /api/v1/students/{id}/level
func (s *Server) handlePromoteLevel(w http.ResponseWriter, r *http.Request) {
	var req promoteRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.deps.PromoteLevel.Handle(r.Context(), command.PromoteLevelCommand{
		StudentID: r.PathValue("id"),
		NewLevel:  req.Level,
		Reason:    req.Reason,
		ActorID:   actorID(r),
		Force:     req.Force,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"previous": res.Previous,
		"current":  res.Current,
		"changed":  res.Changed,
		"forced":   res.Forced,
		"check":    res.Check,
	})
}

type toggleRequest struct {
	Passed bool `json:"passed"`
}

// handleToggleCriterion handles PUT /api/v1/students/{id}/criteria/{criterion}
func (s *Server) handleToggleCriterion(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.deps.ToggleCriterion.Handle(r.Context(), command.ToggleCriterionCommand{
		StudentID:   r.PathValue("id"),
		CriterionID: r.PathValue("criterion"),
		Passed:      req.Passed,
		ActorID:     actorID(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, viewStatus(res.Status))
}

// handleLevelDiff handles GET /api/v1/levels/{level}/diff
func (s *Server) handleLevelDiff(w http.ResponseWriter, r *http.Request) {
	level, err := strconv.Atoi(r.PathValue("level"))
	if err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_request", "level must be an integer")
		return
	}
	res, err := s.deps.LevelDiff.Handle(r.Context(), query.LevelDiffQuery{Level: level})
	s.respond(w, r, res, err)
}

// ══════════════════════════════════════════════════════════════════════════════
// BACKPACK HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type sessionBlockRequest struct {
	Completed     bool    `json:"completed"`
	TargetTempo   float64 `json:"target_tempo"`
	AchievedTempo float64 `json:"achieved_tempo"`
	TargetSeconds float64 `json:"target_seconds"`
	ActualSeconds float64 `json:"actual_seconds"`
}

type sessionRequest struct {
	Blocks      map[string][]sessionBlockRequest `json:"blocks"`
	CompletedAt time.Time                        `json:"completed_at"`
}

// itemView is the wire shape of an updated backpack item.
type itemView struct {
	PracticeKey     string          `json:"practice_key"`
	Status          backpack.Status `json:"status"`
	MasteryScore    int             `json:"mastery_score"`
	MasteredWeeks   int             `json:"mastered_weeks"`
	ScoreDelta      int             `json:"score_delta"`
	WeekEarned      bool            `json:"week_earned"`
	Skipped         bool            `json:"skipped"`
	LastPracticedAt *time.Time      `json:"last_practiced_at,omitempty"`
}

// handleRecordSession handles POST /api/v1/students/{id}/sessions
func (s *Server) handleRecordSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !s.decode(w, r, &req) {
		return
	}

	blocks := make(map[string][]backpack.SessionBlock, len(req.Blocks))
	for key, list := range req.Blocks {
		for _, b := range list {
			blocks[key] = append(blocks[key], backpack.SessionBlock{
				Completed:      b.Completed,
				TargetTempo:    b.TargetTempo,
				AchievedTempo:  b.AchievedTempo,
				TargetDuration: seconds(b.TargetSeconds),
				ActualDuration: seconds(b.ActualSeconds),
			})
		}
	}

	res, err := s.deps.RecordSession.Handle(r.Context(), command.RecordPracticeSessionCommand{
		StudentID:   r.PathValue("id"),
		Blocks:      blocks,
		CompletedAt: req.CompletedAt,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	items := make([]itemView, 0, len(res.Updates))
	for _, u := range res.Updates {
		items = append(items, itemView{
			PracticeKey:     u.Item.PracticeKey,
			Status:          u.Item.Status,
			MasteryScore:    u.Item.MasteryScore,
			MasteredWeeks:   len(u.Item.MasteredWeeks),
			ScoreDelta:      u.ScoreDelta,
			WeekEarned:      u.WeekEarned,
			Skipped:         u.Skipped,
			LastPracticedAt: optionalTime(u.Item.LastPracticedAt),
		})
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"items": items})
}

// handleBackpack handles GET /api/v1/students/{id}/backpack?status=oxidado
func (s *Server) handleBackpack(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Backpack.Handle(r.Context(), query.BackpackViewQuery{
		StudentID: r.PathValue("id"),
		Status:    backpack.Status(r.URL.Query().Get("status")),
	})
	s.respond(w, r, res, err)
}

// ══════════════════════════════════════════════════════════════════════════════
// AGGREGATION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleSummaries handles GET /api/v1/summaries?students=a,b,c&fresh=true
func (s *Server) handleSummaries(w http.ResponseWriter, r *http.Request) {
	var ids []string
	for _, id := range strings.Split(r.URL.Query().Get("students"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_request", "students is required")
		return
	}

	res, err := s.deps.Summaries.Handle(r.Context(), query.StudentSummariesQuery{
		StudentIDs: ids,
		SkipCache:  getQueryParamBool(r, "fresh"),
	})
	s.respond(w, r, res, err)
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) respond(w http.ResponseWriter, r *http.Request, data any, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, data)
}

// decode reads a JSON body into dest. It writes the error response and
// returns false when the body is unusable.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	body := http.MaxBytesReader(w, r.Body, s.maxBody())
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeJSONError(w, r, http.StatusRequestEntityTooLarge, "body_too_large", "Request body is too large")
		case errors.Is(err, io.EOF):
			writeJSONError(w, r, http.StatusBadRequest, "invalid_request", "Request body is required")
		default:
			writeJSONError(w, r, http.StatusBadRequest, "invalid_request", fmt.Sprintf("Malformed JSON: %v", err))
		}
		return false
	}
	return true
}

func (s *Server) maxBody() int64 {
	if s.config.MaxBodyBytes > 0 {
		return s.config.MaxBodyBytes
	}
	return 1 << 20
}

// intParam parses an optional integer query parameter. Absent means zero.
func (s *Server) intParam(w http.ResponseWriter, r *http.Request, key string) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_request", key+" must be an integer")
		return 0, false
	}
	return v, true
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
