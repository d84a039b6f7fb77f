// Package api serves the WRG explorer page and its JSON API.
package api

import (
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/wrg-explorer/internal/crs"
	"github.com/banshee-data/wrg-explorer/internal/geotiff"
	"github.com/banshee-data/wrg-explorer/internal/httputil"
	"github.com/banshee-data/wrg-explorer/internal/layer"
	"github.com/banshee-data/wrg-explorer/internal/monitoring"
	"github.com/banshee-data/wrg-explorer/internal/session"
	"github.com/banshee-data/wrg-explorer/internal/wrg"
)

// ANSI escape codes for the request log.
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// SessionCookie carries the session id.
const SessionCookie = "wrg_session"

// DefaultMaxUploadBytes limits WRG uploads when no limit is configured.
const DefaultMaxUploadBytes = 256 << 20

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.New("index.html").Funcs(template.FuncMap{
	"sub": func(a, b int) int { return a - b },
}).ParseFS(templateFS, "templates/index.html"))

// Server holds the handlers' dependencies.
type Server struct {
	store     *session.Store
	catalogue *crs.Catalogue
	maxUpload int64
}

// NewServer wires the handlers to a session store and CRS catalogue. A
// non-positive maxUpload uses DefaultMaxUploadBytes.
func NewServer(store *session.Store, catalogue *crs.Catalogue, maxUpload int64) *Server {
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}
	return &Server{store: store, catalogue: catalogue, maxUpload: maxUpload}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status and duration of each request.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the page and API routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/upload", s.handleUpload)
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/attributes", s.handleAttributes)
	mux.HandleFunc("/api/variables", s.handleVariables)
	mux.HandleFunc("/api/selection", s.handleSelection)
	mux.HandleFunc("/api/crs", s.handleCRS)
	mux.HandleFunc("/api/filename", s.handleFilename)
	mux.HandleFunc("/api/image.png", s.handleImagePNG)
	mux.HandleFunc("/api/image.html", s.handleImageHTML)
	mux.HandleFunc("/api/download", s.handleDownload)
	mux.HandleFunc("/api/sectors", s.handleSectors)
	mux.HandleFunc("/api/version", s.handleVersion)
	return mux
}

// session returns the caller's session, starting a new one and setting the
// cookie when the request carries no live id.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *session.Session {
	var id string
	if c, err := r.Cookie(SessionCookie); err == nil {
		id = c.Value
	}
	sess, created := s.store.GetOrCreate(id)
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    sess.ID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return sess
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		httputil.WriteJSONError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, session.ErrNoFile):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, crs.ErrNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, wrg.ErrMalformed),
		errors.Is(err, layer.ErrSectorRange),
		errors.Is(err, layer.ErrNoSectors),
		errors.Is(err, layer.ErrUnknownVariable),
		errors.Is(err, session.ErrNotDirectional),
		errors.Is(err, crs.ErrInvalidKey),
		errors.Is(err, geotiff.ErrUnsupportedDType):
		httputil.BadRequest(w, err.Error())
	default:
		monitoring.Logf("internal error: %v", err)
		httputil.InternalServerError(w, err.Error())
	}
}
