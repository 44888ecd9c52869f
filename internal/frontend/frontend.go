// Package frontend serves the single-page login and dashboard UI.
//
// The page shell is rendered once with the validation rules of the backend so
// the browser checks input with the same pattern and lengths the API applies.
package frontend

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/patric-chuzhbe/dashboard/internal/logger"
	"github.com/patric-chuzhbe/dashboard/internal/validation"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static/*.css static/*.js
var staticFS embed.FS

const staticPrefix = "/static/"

// Keys the browser keeps the session under.
const (
	StorageKeyToken = "token"
	StorageKeyUser  = "user"
)

type clientMessages struct {
	InvalidEmail       string `json:"invalidEmail"`
	InvalidPassword    string `json:"invalidPassword"`
	InvalidName        string `json:"invalidName"`
	MissingCredentials string `json:"missingCredentials"`
	Fallback           string `json:"fallback"`
}

type clientConfig struct {
	Rules       validation.Rules `json:"rules"`
	Messages    clientMessages   `json:"messages"`
	TokenKey    string           `json:"tokenKey"`
	UserKey     string           `json:"userKey"`
	APIBasePath string           `json:"apiBasePath"`
}

type pageData struct {
	Config clientConfig
}

// Frontend is an http.Handler for the page routes and /static/ assets.
type Frontend struct {
	page   []byte
	assets http.Handler
}

// New renders the page shell and prepares the asset server.
func New() (*Frontend, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("in internal/frontend/frontend.go/New(): error while `template.ParseFS()` calling: %w", err)
	}

	var page bytes.Buffer
	err = tmpl.ExecuteTemplate(&page, "index.html", pageData{
		Config: clientConfig{
			Rules: validation.CurrentRules(),
			Messages: clientMessages{
				InvalidEmail:       validation.MsgInvalidEmail,
				InvalidPassword:    validation.MsgInvalidPassword,
				InvalidName:        validation.MsgInvalidName,
				MissingCredentials: validation.MsgMissingCredentials,
				Fallback:           "An error occurred. Please try again.",
			},
			TokenKey:    StorageKeyToken,
			UserKey:     StorageKeyUser,
			APIBasePath: "/auth",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("in internal/frontend/frontend.go/New(): error while `tmpl.ExecuteTemplate()` calling: %w", err)
	}

	assets, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("in internal/frontend/frontend.go/New(): error while `fs.Sub()` calling: %w", err)
	}

	return &Frontend{
		page:   page.Bytes(),
		assets: http.StripPrefix(staticPrefix, http.FileServer(http.FS(assets))),
	}, nil
}

func (f *Frontend) ServeHTTP(res http.ResponseWriter, req *http.Request) {
	if strings.HasPrefix(req.URL.Path, staticPrefix) {
		f.assets.ServeHTTP(res, req)
		return
	}

	res.Header().Set("Content-Type", "text/html; charset=utf-8")
	res.Header().Set("Cache-Control", "no-cache")
	res.WriteHeader(http.StatusOK)
	if _, err := res.Write(f.page); err != nil {
		logger.Log.Debugw("page write failed", zap.Error(err))
	}
}
