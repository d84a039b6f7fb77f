package api

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"mime"
	"net/http"
	"strconv"

	"github.com/banshee-data/wrg-explorer/internal/crs"
	"github.com/banshee-data/wrg-explorer/internal/geotiff"
	"github.com/banshee-data/wrg-explorer/internal/httputil"
	"github.com/banshee-data/wrg-explorer/internal/layer"
	"github.com/banshee-data/wrg-explorer/internal/monitoring"
	"github.com/banshee-data/wrg-explorer/internal/security"
	"github.com/banshee-data/wrg-explorer/internal/session"
	"github.com/banshee-data/wrg-explorer/internal/version"
)

// multipartMemory is how much of an upload is buffered in memory before
// spilling to a temporary file.
const multipartMemory = 32 << 20

const (
	defaultCRSLimit = 50
	maxCRSLimit     = 1000
)

type pageData struct {
	View    session.View
	Image   template.HTML
	Error   string
	Version version.Info
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		httputil.NotFound(w, "not found")
		return
	}
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	sess := s.session(w, r)
	data := pageData{View: sess.View(), Version: version.Get()}
	if data.View.State == session.Loaded {
		img, err := sess.ImageHTML()
		if err != nil {
			data.Error = err.Error()
		}
		data.Image = img
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render page: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	sess := s.session(w, r)
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, fmt.Errorf("upload exceeds %d bytes: %w", s.maxUpload, err))
			return
		}
		httputil.BadRequest(w, fmt.Sprintf("invalid upload: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, hdr, err := r.FormFile("file")
	if err != nil {
		httputil.BadRequest(w, "missing form file \"file\"")
		return
	}
	defer file.Close()

	if err := sess.Upload(hdr.Filename, file); err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, sess.View())
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.session(w, r).View())
}

func (s *Server) handleAttributes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	attrs, err := s.session(w, r).Attributes()
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, attrs)
}

func (s *Server) handleVariables(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	g, err := s.session(w, r).Grid()
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, layer.Options(g))
}

// selectionRequest changes the variable, the sector or both.
type selectionRequest struct {
	Variable *layer.Variable `json:"variable"`
	Sector   *int            `json:"sector"`
}

func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	sess := s.session(w, r)
	var req selectionRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	var err error
	switch {
	case req.Variable != nil && req.Sector != nil:
		err = sess.Select(session.Selection{Variable: *req.Variable, Sector: *req.Sector})
	case req.Variable != nil:
		err = sess.SelectVariable(*req.Variable)
	case req.Sector != nil:
		err = sess.SelectSector(*req.Sector)
	default:
		httputil.BadRequest(w, "variable or sector is required")
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, sess.View())
}

// crsRequest picks a catalogue entry by authority and code, or by
// "AUTH:CODE" key. An empty request clears the CRS.
type crsRequest struct {
	AuthName string `json:"auth_name"`
	Code     string `json:"code"`
	Key      string `json:"key"`
}

func (s *Server) handleCRS(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.searchCRS(w, r)
	case http.MethodPost:
		s.selectCRS(w, r)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) searchCRS(w http.ResponseWriter, r *http.Request) {
	limit := defaultCRSLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 || n > maxCRSLimit {
			httputil.BadRequest(w, fmt.Sprintf("limit must be an integer in [1, %d]", maxCRSLimit))
			return
		}
		limit = n
	}
	entries, err := s.catalogue.Search(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []crs.Entry{}
	}
	httputil.WriteJSONOK(w, entries)
}

func (s *Server) selectCRS(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	var req crsRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	var entry *crs.Entry
	switch {
	case req.Key != "":
		e, err := s.catalogue.LookupKey(r.Context(), req.Key)
		if err != nil {
			writeError(w, err)
			return
		}
		entry = &e
	case req.AuthName != "" || req.Code != "":
		e, err := s.catalogue.Lookup(r.Context(), req.AuthName, req.Code)
		if err != nil {
			writeError(w, err)
			return
		}
		entry = &e
	}
	if err := sess.SelectCRS(entry); err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, sess.View())
}

type filenameRequest struct {
	Filename string `json:"filename"`
}

func (s *Server) handleFilename(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	sess := s.session(w, r)
	var req filenameRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err := sess.EditFilename(security.SanitizeFilename(req.Filename)); err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, sess.View())
}

func (s *Server) handleImagePNG(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	png, err := s.session(w, r).Image()
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	_, _ = w.Write(png)
}

func (s *Server) handleImageHTML(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	img, err := s.session(w, r).ImageHTML()
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(img))
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	sess := s.session(w, r)
	data, name, err := sess.Export()
	if err != nil {
		writeError(w, err)
		return
	}
	monitoring.Logf("[api] %s exporting %s (%d bytes)", sess.ID, name, len(data))
	w.Header().Set("Content-Type", geotiff.MIMEType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, version.Get())
}
