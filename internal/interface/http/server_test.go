package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practica-musical/progression-hub/internal/application/command"
	"github.com/practica-musical/progression-hub/internal/application/query"
	"github.com/practica-musical/progression-hub/internal/domain/backpack"
	"github.com/practica-musical/progression-hub/internal/domain/entity"
	"github.com/practica-musical/progression-hub/internal/domain/promotion"
	"github.com/practica-musical/progression-hub/internal/infrastructure/messaging"
	"github.com/practica-musical/progression-hub/internal/infrastructure/persistence/memory"
	"github.com/practica-musical/progression-hub/internal/infrastructure/persistence/repository"
)

// ══════════════════════════════════════════════════════════════════════════════
// FIXTURE
// ══════════════════════════════════════════════════════════════════════════════

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

type fixture struct {
	store   *memory.Store
	handler http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	bus := messaging.NewInMemoryEventBus(messaging.DefaultConfig())
	t.Cleanup(func() { _ = bus.Close() })

	ledger := repository.NewLedgerRepository(store)
	blocks := repository.NewBlockRepository(store)
	levels := repository.NewLevelRepository(store)
	statuses := repository.NewStatusRepository(store)
	students := repository.NewStudentRepository(store)
	items := repository.NewBackpackRepository(store)
	checker := promotion.NewChecker(ledger, levels, statuses)

	var cmdOpts command.Options
	var qOpts query.Options
	addXP := command.NewAddXPHandler(ledger, bus, cmdOpts)
	toggle := command.NewToggleCriterionHandler(levels, statuses, bus, cmdOpts)
	practice := query.NewPracticeXPHandler(blocks, qOpts)
	evaluation := query.NewEvaluationXPHandler(repository.NewQualitativeRepository(store), qOpts)
	manual := query.NewManualXPHandler(ledger, qOpts)

	deps := Dependencies{
		AddXP:           addXP,
		CompleteBlock:   command.NewCompletePracticeBlockHandler(blocks, addXP, cmdOpts),
		PromoteLevel:    command.NewPromoteLevelHandler(students, checker, bus, cmdOpts),
		ToggleCriterion: toggle,
		CommitReview:    command.NewCommitProfessorReviewHandler(levels, addXP, toggle, checker, cmdOpts),
		RecordSession:   command.NewRecordPracticeSessionHandler(items, bus, backpack.DefaultConfig(), cmdOpts),

		PracticeXP:       practice,
		EvaluationXP:     evaluation,
		ManualXP:         manual,
		CanPromote:       query.NewCanPromoteHandler(students, checker),
		PreviewPromotion: query.NewPreviewPromotionHandler(students, checker, qOpts),
		Backpack:         query.NewBackpackViewHandler(items, backpack.DefaultConfig(), qOpts),
		LevelDiff:        query.NewLevelDiffHandler(levels),
		Summaries: query.NewStudentSummariesHandler(
			ledger, students, checker, practice, evaluation, manual, nil,
			query.DefaultStudentSummariesConfig(), qOpts,
		),
	}
	return &fixture{store: store, handler: NewServer(DefaultConfig(), deps).Handler()}
}

func (f *fixture) seed(t *testing.T, name entity.Name, rec entity.Record) {
	t.Helper()
	_, err := f.store.Create(context.Background(), name, rec)
	require.NoError(t, err)
}

func (f *fixture) seedLevel(t *testing.T) {
	t.Helper()
	f.seed(t, entity.Student, entity.Record{"id": "s1", "level": 1})
	f.seed(t, entity.LevelConfig, entity.Record{"level": 1, "min_xp_flex": 0, "min_xp_motr": 0, "min_xp_art": 0})
	f.seed(t, entity.LevelKeyCriteria, entity.Record{"id": "c1", "level": 1, "skill": "motricidad", "description": "Escala de Do mayor", "required": true})
}

func (f *fixture) do(t *testing.T, method, path string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-ID", "prof-1")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

type failingPing struct{}

func (failingPing) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealth(t *testing.T) {
	f := newFixture(t)
	code, env := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)

	code, _ = f.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestReady_ReportsStoreOutage(t *testing.T) {
	srv := NewServer(DefaultConfig(), Dependencies{HealthChecker: failingPing{}})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUnwiredEndpoint(t *testing.T) {
	srv := NewServer(DefaultConfig(), Dependencies{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/summaries?students=s1", nil))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER
// ══════════════════════════════════════════════════════════════════════════════

func TestAddXP_DeduplicatesByEventKey(t *testing.T) {
	f := newFixture(t)
	body := map[string]any{"skill": "motricidad", "source": "PROF", "amount": 15, "event_key": "k1"}

	code, env := f.do(t, http.MethodPost, "/api/v1/students/s1/xp", body)
	require.Equal(t, http.StatusCreated, code)
	first := decodeData[struct {
		Totals    totalsView `json:"totals"`
		Duplicate bool       `json:"duplicate"`
	}](t, env)
	assert.Equal(t, 15.0, first.Totals.EvaluationXP)
	assert.Equal(t, 15.0, first.Totals.TotalXP)
	assert.False(t, first.Duplicate)

	code, env = f.do(t, http.MethodPost, "/api/v1/students/s1/xp", body)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, decodeData[struct {
		Duplicate bool `json:"duplicate"`
	}](t, env).Duplicate)
}

func TestAddXP_RejectsBadInput(t *testing.T) {
	f := newFixture(t)

	code, env := f.do(t, http.MethodPost, "/api/v1/students/s1/xp", `{"skill":`)
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "invalid_request", env.Error.Code)

	code, _ = f.do(t, http.MethodPost, "/api/v1/students/s1/xp", map[string]any{"skill": "ritmo", "source": "PROF", "amount": 1})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodPost, "/api/v1/students/s1/xp", map[string]any{"skill": "motricidad", "source": "PROF", "amount": 1, "bonus": true})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCompleteBlock_CreditsWeightedAward(t *testing.T) {
	f := newFixture(t)
	code, env := f.do(t, http.MethodPost, "/api/v1/students/s1/blocks", map[string]any{
		"block_id": "b1", "type": "tecnica", "target_tempo": 100, "achieved_tempo": 100,
	})
	require.Equal(t, http.StatusCreated, code)

	res := decodeData[struct {
		Award    float64            `json:"award"`
		Credited map[string]float64 `json:"credited"`
	}](t, env)
	assert.Equal(t, 100.0, res.Award)
	assert.InDelta(t, 60.0, res.Credited["motricidad"], 1e-9)
	assert.InDelta(t, 40.0, res.Credited["articulacion"], 1e-9)

	code, _ = f.do(t, http.MethodGet, "/api/v1/students/s1/xp/practice?window=abc", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodGet, "/api/v1/students/s1/xp/practice?window=-3", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

// ══════════════════════════════════════════════════════════════════════════════
// PROMOTION
// ══════════════════════════════════════════════════════════════════════════════

func TestPromotionFlow(t *testing.T) {
	f := newFixture(t)
	f.seedLevel(t)

	code, env := f.do(t, http.MethodGet, "/api/v1/students/s1/promotion", nil)
	require.Equal(t, http.StatusOK, code)
	check := decodeData[query.PromotionCheckDTO](t, env)
	assert.False(t, check.Allowed)
	assert.Equal(t, []string{"Criterio: Escala de Do mayor"}, check.Missing)

	code, env = f.do(t, http.MethodPut, "/api/v1/students/s1/level", map[string]any{"level": 2, "reason": "exam"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "not_allowed", env.Error.Code)

	code, env = f.do(t, http.MethodPut, "/api/v1/students/s1/criteria/c1", map[string]any{"passed": true})
	require.Equal(t, http.StatusOK, code)
	status := decodeData[statusView](t, env)
	assert.Equal(t, promotion.StatusPassed, status.Status)
	assert.Equal(t, "prof-1", status.AssessedBy)

	code, env = f.do(t, http.MethodPut, "/api/v1/students/s1/level", map[string]any{"level": 2, "reason": "exam"})
	require.Equal(t, http.StatusOK, code)
	res := decodeData[struct {
		Previous int  `json:"previous"`
		Current  int  `json:"current"`
		Changed  bool `json:"changed"`
	}](t, env)
	assert.Equal(t, 1, res.Previous)
	assert.Equal(t, 2, res.Current)
	assert.True(t, res.Changed)
}

func TestPreviewPromotion_DoesNotWrite(t *testing.T) {
	f := newFixture(t)
	f.seedLevel(t)

	code, env := f.do(t, http.MethodPost, "/api/v1/students/s1/promotion/preview", map[string]any{
		"toggles": []map[string]any{{"criterion_id": "c1", "passed": true}},
	})
	require.Equal(t, http.StatusOK, code)
	preview := decodeData[query.PreviewPromotionDTO](t, env)
	assert.True(t, preview.Allowed)
	assert.False(t, preview.Stored.Allowed)

	code, env = f.do(t, http.MethodGet, "/api/v1/students/s1/promotion", nil)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, decodeData[query.PromotionCheckDTO](t, env).Allowed)
}

func TestCommitReview_UnknownCriterion(t *testing.T) {
	f := newFixture(t)
	f.seedLevel(t)

	code, env := f.do(t, http.MethodPost, "/api/v1/students/s1/promotion/review", map[string]any{
		"review_id": "r1",
		"toggles":   []map[string]any{{"criterion_id": "missing", "passed": true}},
	})
	assert.Equal(t, http.StatusNotFound, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "not_found", env.Error.Code)
}

func TestLevelDiff_RejectsBadLevel(t *testing.T) {
	f := newFixture(t)
	code, _ := f.do(t, http.MethodGet, "/api/v1/levels/first/diff", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodGet, "/api/v1/levels/0/diff", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

// ══════════════════════════════════════════════════════════════════════════════
// BACKPACK AND SUMMARIES
// ══════════════════════════════════════════════════════════════════════════════

func TestSessionThenBackpack(t *testing.T) {
	f := newFixture(t)
	code, env := f.do(t, http.MethodPost, "/api/v1/students/s1/sessions", map[string]any{
		"blocks": map[string]any{
			"escala-do": []map[string]any{{"completed": true, "target_tempo": 100, "achieved_tempo": 100}},
		},
	})
	require.Equal(t, http.StatusOK, code)
	session := decodeData[struct {
		Items []itemView `json:"items"`
	}](t, env)
	require.Len(t, session.Items, 1)
	assert.Equal(t, "escala-do", session.Items[0].PracticeKey)
	assert.Positive(t, session.Items[0].ScoreDelta)

	code, env = f.do(t, http.MethodGet, "/api/v1/students/s1/backpack", nil)
	require.Equal(t, http.StatusOK, code)
	view := decodeData[query.BackpackViewDTO](t, env)
	require.Len(t, view.Items, 1)
	assert.Equal(t, "escala-do", view.Items[0].PracticeKey)
}

func TestSummaries(t *testing.T) {
	f := newFixture(t)
	f.seedLevel(t)

	code, env := f.do(t, http.MethodGet, "/api/v1/summaries?students=s1,%20s2", nil)
	require.Equal(t, http.StatusOK, code)
	res := decodeData[query.StudentSummariesDTO](t, env)
	require.Len(t, res.Students, 2)
	assert.Equal(t, "s1", res.Students[0].StudentID)
	assert.Equal(t, "s2", res.Students[1].StudentID)
	assert.NotNil(t, res.Students[0].Check)

	code, _ = f.do(t, http.MethodGet, "/api/v1/summaries", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}
