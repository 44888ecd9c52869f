package frontend

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/dashboard/internal/validation"
)

var clientConfigPattern = regexp.MustCompile(`(?s)<script id="client-config" type="application/json">(.*?)</script>`)

func TestPageRoutes(t *testing.T) {
	frontend, err := New()
	require.NoError(t, err)

	for _, path := range []string{"/", "/login", "/dashboard"} {
		t.Run(path, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			frontend.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, path, nil))

			assert.Equal(t, http.StatusOK, recorder.Code)
			assert.Contains(t, recorder.Header().Get("Content-Type"), "text/html")
			body := recorder.Body.String()
			assert.Contains(t, body, "Login to Dashboard")
			assert.Contains(t, body, "Welcome to Company Dashboard")
			assert.Contains(t, body, `src="/static/app.js"`)
		})
	}
}

func TestPageCarriesValidationRules(t *testing.T) {
	frontend, err := New()
	require.NoError(t, err)

	recorder := httptest.NewRecorder()
	frontend.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/login", nil))

	match := clientConfigPattern.FindStringSubmatch(recorder.Body.String())
	require.Len(t, match, 2)

	var config clientConfig
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(match[1])), &config))

	assert.Equal(t, validation.CurrentRules(), config.Rules)
	assert.Equal(t, validation.MsgInvalidEmail, config.Messages.InvalidEmail)
	assert.Equal(t, validation.MsgInvalidPassword, config.Messages.InvalidPassword)
	assert.Equal(t, validation.MsgInvalidName, config.Messages.InvalidName)
	assert.Equal(t, validation.MsgMissingCredentials, config.Messages.MissingCredentials)
	assert.Equal(t, StorageKeyToken, config.TokenKey)
	assert.Equal(t, StorageKeyUser, config.UserKey)
}

func TestDashboardTiles(t *testing.T) {
	frontend, err := New()
	require.NoError(t, err)

	recorder := httptest.NewRecorder()
	frontend.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	body := recorder.Body.String()

	for _, tile := range []string{"<h4>Projects</h4><p>12</p>", "<h4>Tasks</h4><p>8</p>", "<h4>Team</h4><p>24</p>"} {
		assert.Contains(t, body, tile)
	}
}

func TestStaticAssets(t *testing.T) {
	frontend, err := New()
	require.NoError(t, err)

	testCases := []struct {
		path        string
		wantStatus  int
		contentType string
		contains    string
	}{
		{path: "/static/app.js", wantStatus: http.StatusOK, contentType: "javascript", contains: "localStorage"},
		{path: "/static/styles.css", wantStatus: http.StatusOK, contentType: "text/css", contains: ".container"},
		{path: "/static/missing.js", wantStatus: http.StatusNotFound},
	}

	for _, testCase := range testCases {
		t.Run(testCase.path, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			frontend.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, testCase.path, nil))

			assert.Equal(t, testCase.wantStatus, recorder.Code)
			if testCase.contentType != "" {
				assert.Contains(t, recorder.Header().Get("Content-Type"), testCase.contentType)
			}
			if testCase.contains != "" {
				assert.Contains(t, recorder.Body.String(), testCase.contains)
			}
		})
	}
}
