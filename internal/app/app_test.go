package app

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"savecsv/internal/journal"
	"savecsv/internal/metrics"
	"savecsv/internal/storage"
	u "savecsv/internal/utils"
)

func testConfig() u.Config {
	cfg := u.DefaultConfig()
	cfg.Storage.Driver = u.DriverMemory
	return cfg
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(raw)
}

func TestSetupApp_SaveCSVEndToEnd(t *testing.T) {
	u.SetLoggerForTest(zerolog.New(io.Discard))
	mem := storage.NewMemoryStore()
	app := SetupApp(testConfig(), Deps{Store: mem, Metrics: metrics.New()})

	req := httptest.NewRequest("POST", "/api/save-csv",
		strings.NewReader(`{"member_code":"M1","selected":[{"seq":1,"item_id":"X"}]}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 but got %d", resp.StatusCode)
	}
	body := readBody(t, resp)
	assert.Contains(t, body, `"saved_to":"csv/recgo/M1.csv"`)
	assert.Contains(t, body, `"download_url":"memory://csv/recgo/M1.csv?expires=`)
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	obj, ok := mem.Get("csv", "recgo/M1.csv")
	require.True(t, ok)
	assert.Equal(t, "\"member_code\",\"seq\",\"item_id\"\r\n\"M1\",\"1\",\"X\"", string(obj.Data))
}

func TestSetupApp_MethodNotAllowed(t *testing.T) {
	u.SetLoggerForTest(zerolog.New(io.Discard))
	app := SetupApp(testConfig(), Deps{Store: storage.NewMemoryStore()})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/save-csv", strings.NewReader(`{"member_code":"M1"}`)), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 but got %d", resp.StatusCode)
	}
	assert.JSONEq(t, `{"error":"Method not allowed"}`, readBody(t, resp))
}

func TestSetupApp_MissingStorageConfiguration(t *testing.T) {
	u.SetLoggerForTest(zerolog.New(io.Discard))
	cfg := u.DefaultConfig()
	app := SetupApp(cfg, Deps{})

	req := httptest.NewRequest("POST", "/api/save-csv", strings.NewReader(`{"member_code":"M1","selected":[]}`))
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500 but got %d", resp.StatusCode)
	}
	assert.JSONEq(t, `{"error":"Missing env SUPABASE_URL"}`, readBody(t, resp))
}

func TestSetupApp_CORSPreflight(t *testing.T) {
	u.SetLoggerForTest(zerolog.New(io.Discard))
	app := SetupApp(testConfig(), Deps{Store: storage.NewMemoryStore()})

	req := httptest.NewRequest("OPTIONS", "/api/save-csv", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		t.Fatalf("expected 2xx preflight but got %d", resp.StatusCode)
	}
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "Content-Type")
}

func TestSetupApp_JSON404AndHealth(t *testing.T) {
	u.SetLoggerForTest(zerolog.New(io.Discard))
	app := SetupApp(testConfig(), Deps{})

	resp, err := app.Test(httptest.NewRequest("GET", "/does-not-exist", nil), -1)
	if err != nil {
		t.Fatalf("404 request failed: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	assert.JSONEq(t, `{"error":"Not Found"}`, readBody(t, resp))

	for _, path := range []string{"/livez", "/readyz"} {
		resp, err := app.Test(httptest.NewRequest("GET", path, nil), -1)
		if err != nil {
			t.Fatalf("%s failed: %v", path, err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected %s 200, got %d", path, resp.StatusCode)
		}
	}
}

func TestSetupApp_MetricsEndpoint(t *testing.T) {
	u.SetLoggerForTest(zerolog.New(io.Discard))
	app := SetupApp(testConfig(), Deps{Store: storage.NewMemoryStore(), Metrics: metrics.New()})

	req := httptest.NewRequest("POST", "/api/save-csv", strings.NewReader(`{"member_code":"M1","selected":[]}`))
	if _, err := app.Test(req, -1); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil), -1)
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := readBody(t, resp)
	assert.Contains(t, body, `csv_exports_total{outcome="ok"} 1`)
	assert.Contains(t, body, `http_requests_total{method="POST",path="/api/save-csv",status="200"} 1`)
}

func TestSetupApp_MetricLabelsSurviveLaterRequests(t *testing.T) {
	u.SetLoggerForTest(zerolog.New(io.Discard))
	app := SetupApp(testConfig(), Deps{Store: storage.NewMemoryStore(), Metrics: metrics.New()})

	req := httptest.NewRequest("POST", "/api/save-csv", strings.NewReader(`{"member_code":"M1","selected":[]}`))
	if _, err := app.Test(req, -1); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if _, err := app.Test(httptest.NewRequest("PUT", "/nope", nil), -1); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil), -1)
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	body := readBody(t, resp)
	assert.Contains(t, body, `http_requests_total{method="POST",path="/api/save-csv",status="200"} 1`)
	assert.Contains(t, body, `http_requests_total{method="PUT",path="unmatched",status="404"} 1`)
	assert.NotContains(t, body, `method="GETT"`)
}

func TestSetupApp_MetricsDisabledIs404(t *testing.T) {
	u.SetLoggerForTest(zerolog.New(io.Discard))
	app := SetupApp(testConfig(), Deps{})
	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestSetupApp_ExportHistoryFromRedisJournal(t *testing.T) {
	u.SetLoggerForTest(zerolog.New(io.Discard))
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Journal.Driver = u.JournalRedis
	cfg.Redis.Addr = mr.Addr()
	j, err := journal.New(cfg)
	require.NoError(t, err)
	defer j.Close()

	app := SetupApp(cfg, Deps{Store: storage.NewMemoryStore(), Journal: j})
	req := httptest.NewRequest("POST", "/api/save-csv", strings.NewReader(`{"member_code":"M5","selected":[{"seq":3}]}`))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/exports/M5", nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), `"path":"recgo/M5.csv"`)
}

func TestSetupApp_UserLimiterEnabled(t *testing.T) {
	u.SetLoggerForTest(zerolog.New(io.Discard))
	cfg := testConfig()
	cfg.RateLimiter.EnableUserLimiter = true
	cfg.RateLimiter.UserLimit = 1
	app := SetupApp(cfg, Deps{Store: storage.NewMemoryStore()})

	body := `{"member_code":"M1","selected":[]}`
	resp, err := app.Test(httptest.NewRequest("POST", "/api/save-csv", strings.NewReader(body)), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("POST", "/api/save-csv", strings.NewReader(body)), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Too Many Requests"}`, readBody(t, resp))
}
