package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/kwestby/ciwatch/internal/datastore/entities"
	"github.com/kwestby/ciwatch/internal/datastore/repository"
	"github.com/kwestby/ciwatch/internal/ingest"
	"github.com/kwestby/ciwatch/internal/logger"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"
)

const testSecret = "test-webhook-secret"

// stubSource serves canned pages for sync endpoint tests.
type stubSource struct {
	pages     map[int][]ingest.SourceRun
	errOnPage int
}

func (s *stubSource) ListRuns(_ context.Context, _ string, page, _ int) ([]ingest.SourceRun, error) {
	if s.errOnPage != 0 && page == s.errOnPage {
		return nil, errors.New("upstream unavailable")
	}
	return s.pages[page], nil
}

type apiFixture struct {
	e     *echo.Echo
	rules repository.AlertRuleRepository
	runs  repository.RunRepository
}

func setupAPI(t *testing.T, secret string, source ingest.RunSource) apiFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_foreign_keys=ON"), &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&entities.WorkflowRun{},
		&entities.SyncCursor{},
		&entities.AlertRule{},
		&entities.AlertEvent{},
	))

	runRepo := repository.NewRunRepository(db)
	cursorRepo := repository.NewCursorRepository(db, false)
	ruleRepo := repository.NewAlertRuleRepository(db)

	log := logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
	if source == nil {
		source = &stubSource{}
	}
	pipeline := ingest.NewPipeline(source, runRepo, cursorRepo, nil, 5, 100, log)
	controller := NewController(pipeline, runRepo, ruleRepo, secret, log)

	e := echo.New()
	controller.RegisterRoutes(e)
	return apiFixture{e: e, rules: ruleRepo, runs: runRepo}
}

func (f apiFixture) request(method, target string, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func signBody(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

const completedDelivery = `{
	"action": "completed",
	"workflow_run": {
		"id": 700,
		"status": "completed",
		"conclusion": "success",
		"created_at": "2026-08-01T12:00:00Z",
		"updated_at": "2026-08-01T12:05:45Z",
		"run_started_at": "2026-08-01T12:00:45Z"
	},
	"repository": {"full_name": "octo/widgets"}
}`

func TestHealth(t *testing.T) {
	f := setupAPI(t, testSecret, nil)
	rec := f.request(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookIntake(t *testing.T) {
	t.Run("valid delivery ingests run", func(t *testing.T) {
		f := setupAPI(t, testSecret, nil)
		rec := f.request(http.MethodPost, "/api/v1/webhook", completedDelivery, map[string]string{
			"X-Hub-Signature-256": signBody(testSecret, completedDelivery),
			"X-GitHub-Event":      "workflow_run",
			"X-GitHub-Delivery":   "delivery-1",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var result ingest.DeliveryResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.True(t, result.Accepted)
		assert.Equal(t, int64(700), result.RunID)

		_, err := f.runs.GetRun(t.Context(), 700)
		require.NoError(t, err)
	})

	t.Run("no secret configured returns 503", func(t *testing.T) {
		f := setupAPI(t, "", nil)
		rec := f.request(http.MethodPost, "/api/v1/webhook", completedDelivery, map[string]string{
			"X-Hub-Signature-256": signBody("whatever", completedDelivery),
			"X-GitHub-Event":      "workflow_run",
		})
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("bad signature returns 401", func(t *testing.T) {
		f := setupAPI(t, testSecret, nil)
		rec := f.request(http.MethodPost, "/api/v1/webhook", completedDelivery, map[string]string{
			"X-Hub-Signature-256": signBody("wrong-secret", completedDelivery),
			"X-GitHub-Event":      "workflow_run",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		_, err := f.runs.GetRun(t.Context(), 700)
		require.ErrorIs(t, err, repository.ErrRunNotFound, "unauthenticated payload must not be ingested")
	})

	t.Run("missing signature returns 401", func(t *testing.T) {
		f := setupAPI(t, testSecret, nil)
		rec := f.request(http.MethodPost, "/api/v1/webhook", completedDelivery, map[string]string{
			"X-GitHub-Event": "workflow_run",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("non workflow_run event acknowledged with 202", func(t *testing.T) {
		f := setupAPI(t, testSecret, nil)
		body := `{"zen":"Keep it logically awesome."}`
		rec := f.request(http.MethodPost, "/api/v1/webhook", body, map[string]string{
			"X-Hub-Signature-256": signBody(testSecret, body),
			"X-GitHub-Event":      "ping",
		})
		assert.Equal(t, http.StatusAccepted, rec.Code)
	})

	t.Run("malformed payload returns 400", func(t *testing.T) {
		f := setupAPI(t, testSecret, nil)
		body := `{"action":"completed"}`
		rec := f.request(http.MethodPost, "/api/v1/webhook", body, map[string]string{
			"X-Hub-Signature-256": signBody(testSecret, body),
			"X-GitHub-Event":      "workflow_run",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestTriggerSync(t *testing.T) {
	conclusion := "success"
	page := []ingest.SourceRun{
		{ID: 700, Status: "completed", Conclusion: &conclusion},
		{ID: 650, Status: "completed", Conclusion: &conclusion},
	}

	t.Run("successful sync", func(t *testing.T) {
		f := setupAPI(t, testSecret, &stubSource{pages: map[int][]ingest.SourceRun{1: page}})
		rec := f.request(http.MethodPost, "/api/v1/repos/octo/widgets/sync", "", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var result ingest.SyncResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.Equal(t, 2, result.RowsUpserted)
		assert.Equal(t, int64(700), result.LatestRunID)
	})

	t.Run("invalid pages parameter", func(t *testing.T) {
		f := setupAPI(t, testSecret, nil)
		rec := f.request(http.MethodPost, "/api/v1/repos/octo/widgets/sync?pages=zero", "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("upstream failure returns 502 with partial result", func(t *testing.T) {
		full := make([]ingest.SourceRun, 0, 100)
		for id := int64(800); id > 700; id-- {
			full = append(full, ingest.SourceRun{ID: id, Status: "completed", Conclusion: &conclusion})
		}
		f := setupAPI(t, testSecret, &stubSource{
			pages:     map[int][]ingest.SourceRun{1: full},
			errOnPage: 2,
		})
		rec := f.request(http.MethodPost, "/api/v1/repos/octo/widgets/sync", "", nil)
		require.Equal(t, http.StatusBadGateway, rec.Code)

		var payload struct {
			Result ingest.SyncResult `json:"result"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
		assert.Equal(t, 100, payload.Result.RowsUpserted, "rows fetched before the failure stay committed")
	})
}

func TestListRuns(t *testing.T) {
	f := setupAPI(t, testSecret, nil)
	ctx := t.Context()
	conclusion := entities.RunConclusionSuccess
	for id := int64(1); id <= 3; id++ {
		run := entities.WorkflowRun{
			ID:         id,
			Repo:       "octo/widgets",
			Status:     entities.RunStatusCompleted,
			Conclusion: &conclusion,
		}
		require.NoError(t, f.runs.UpsertRun(ctx, &run))
	}

	rec := f.request(http.MethodGet, "/api/v1/repos/octo/widgets/runs?limit=2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Runs  []entities.WorkflowRun `json:"runs"`
		Total int64                  `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Len(t, payload.Runs, 2)
	assert.Equal(t, int64(3), payload.Total)
	assert.Equal(t, int64(3), payload.Runs[0].ID, "newest first")
}

func TestAlertRuleEndpoints(t *testing.T) {
	validRule := `{
		"name": "High failure rate",
		"scope": "octo/widgets",
		"metric": "failure_rate",
		"threshold": 25,
		"window_hours": 24,
		"channel": "browser",
		"enabled": true
	}`

	t.Run("create and get", func(t *testing.T) {
		f := setupAPI(t, testSecret, nil)
		rec := f.request(http.MethodPost, "/api/v1/alerts/rules", validRule, nil)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var created entities.AlertRule
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
		assert.NotZero(t, created.ID)

		rec = f.request(http.MethodGet, "/api/v1/alerts/rules/1", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("validation failures", func(t *testing.T) {
		f := setupAPI(t, testSecret, nil)
		for name, body := range map[string]string{
			"missing name":    `{"scope":"o/r","metric":"failure_rate","threshold":1,"window_hours":1,"channel":"browser"}`,
			"missing scope":   `{"name":"x","metric":"failure_rate","threshold":1,"window_hours":1,"channel":"browser"}`,
			"unknown metric":  `{"name":"x","scope":"o/r","metric":"cpu_usage","threshold":1,"window_hours":1,"channel":"browser"}`,
			"unknown channel": `{"name":"x","scope":"o/r","metric":"failure_rate","threshold":1,"window_hours":1,"channel":"pager"}`,
			"zero window":     `{"name":"x","scope":"o/r","metric":"failure_rate","threshold":1,"window_hours":0,"channel":"browser"}`,
		} {
			t.Run(name, func(t *testing.T) {
				rec := f.request(http.MethodPost, "/api/v1/alerts/rules", body, nil)
				assert.Equal(t, http.StatusBadRequest, rec.Code)
			})
		}
	})

	t.Run("get missing rule returns 404", func(t *testing.T) {
		f := setupAPI(t, testSecret, nil)
		rec := f.request(http.MethodGet, "/api/v1/alerts/rules/99", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("update", func(t *testing.T) {
		f := setupAPI(t, testSecret, nil)
		rec := f.request(http.MethodPost, "/api/v1/alerts/rules", validRule, nil)
		require.Equal(t, http.StatusCreated, rec.Code)

		updated := strings.Replace(validRule, "25", "40", 1)
		rec = f.request(http.MethodPut, "/api/v1/alerts/rules/1", updated, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rule, err := f.rules.GetRule(t.Context(), 1)
		require.NoError(t, err)
		assert.InDelta(t, 40.0, rule.Threshold, 0.001)
	})

	t.Run("toggle", func(t *testing.T) {
		f := setupAPI(t, testSecret, nil)
		rec := f.request(http.MethodPost, "/api/v1/alerts/rules", validRule, nil)
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = f.request(http.MethodPatch, "/api/v1/alerts/rules/1/toggle", `{"enabled":false}`, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rule, err := f.rules.GetRule(t.Context(), 1)
		require.NoError(t, err)
		assert.False(t, rule.Enabled)
	})

	t.Run("delete", func(t *testing.T) {
		f := setupAPI(t, testSecret, nil)
		rec := f.request(http.MethodPost, "/api/v1/alerts/rules", validRule, nil)
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = f.request(http.MethodDelete, "/api/v1/alerts/rules/1", "", nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = f.request(http.MethodDelete, "/api/v1/alerts/rules/1", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestListAlertEvents(t *testing.T) {
	f := setupAPI(t, testSecret, nil)
	ctx := t.Context()

	rule := &entities.AlertRule{
		Name: "r", Scope: "octo/widgets", Metric: "failure_rate",
		Threshold: 25, WindowHours: 24, Channel: "browser", Enabled: true,
	}
	require.NoError(t, f.rules.CreateRule(ctx, rule))
	for i := range 3 {
		event := &entities.AlertEvent{
			RuleID: rule.ID, Repo: "octo/widgets", Metric: "failure_rate",
			Value: float64(30 + i), Threshold: 25,
		}
		require.NoError(t, f.rules.SaveEvent(ctx, event))
	}

	rec := f.request(http.MethodGet, "/api/v1/alerts/events?repo=octo/widgets&limit=2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Events []entities.AlertEvent `json:"events"`
		Total  int64                 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Len(t, payload.Events, 2)
	assert.Equal(t, int64(3), payload.Total)
}
