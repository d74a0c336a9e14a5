// Package supabasetest provides an in-memory stand-in for the PostgREST
// and storage endpoints used by package supabase. It understands only
// what Libula sends: eq filters, id ordering, JSON inserts and patches,
// object upload, and URL signing.
package supabasetest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// Request records one call received by the server.
type Request struct {
	Method string
	Path   string
	Query  string
	Auth   string
	APIKey string
	Prefer string
}

// Server is a fake Supabase project.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	tables   map[string][]map[string]any
	nextID   map[string]int64
	objects  map[string][]byte
	failures map[string]int
	requests []Request
}

// NewServer starts a fake project that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		tables:   make(map[string][]map[string]any),
		nextID:   make(map[string]int64),
		objects:  make(map[string][]byte),
		failures: make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Seed appends rows to table. Rows without an "id" get the next
// sequence value; explicit ids advance the sequence.
func (s *Server) Seed(table string, rows ...map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.insertLocked(table, r)
	}
}

// Rows returns a copy of the rows currently in table.
func (s *Server) Rows(table string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, 0, len(s.tables[table]))
	for _, r := range s.tables[table] {
		out = append(out, copyRow(r))
	}
	return out
}

// Object returns the bytes stored at bucket/path.
func (s *Server) Object(bucket, path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[bucket+"/"+path]
	return b, ok
}

// Objects returns the number of stored objects.
func (s *Server) Objects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// Fail makes every request with method against target answer status.
// target is a table name, "storage", or "sign".
func (s *Server) Fail(method, target string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+target] = status
}

// Requests returns the calls received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, Request{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Auth:   r.Header.Get("Authorization"),
		APIKey: r.Header.Get("apikey"),
		Prefer: r.Header.Get("Prefer"),
	})

	switch {
	case strings.HasPrefix(r.URL.Path, "/rest/v1/"):
		s.handleRest(w, r, strings.TrimPrefix(r.URL.Path, "/rest/v1/"))
	case strings.HasPrefix(r.URL.Path, "/storage/v1/object/sign/"):
		s.handleSign(w, r, strings.TrimPrefix(r.URL.Path, "/storage/v1/object/sign/"))
	case strings.HasPrefix(r.URL.Path, "/storage/v1/object/"):
		s.handleUpload(w, r, strings.TrimPrefix(r.URL.Path, "/storage/v1/object/"))
	default:
		writeError(w, http.StatusNotFound, "unknown path "+r.URL.Path)
	}
}

func (s *Server) handleRest(w http.ResponseWriter, r *http.Request, table string) {
	if status, ok := s.failures[r.Method+" "+table]; ok {
		writeError(w, status, "forced failure")
		return
	}

	conds, order, err := parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch r.Method {
	case http.MethodGet:
		rows := s.matchLocked(table, conds)
		sortRows(rows, order)
		writeJSON(w, http.StatusOK, rows)

	case http.MethodPost:
		body, err := decodeRows(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		created := make([]map[string]any, 0, len(body))
		for _, row := range body {
			created = append(created, copyRow(s.insertLocked(table, row)))
		}
		writeJSON(w, http.StatusCreated, created)

	case http.MethodPatch:
		patches, err := decodeRows(r.Body)
		if err != nil || len(patches) != 1 {
			writeError(w, http.StatusBadRequest, "patch body must be one object")
			return
		}
		updated := []map[string]any{}
		for _, row := range s.tables[table] {
			if !matches(row, conds) {
				continue
			}
			for k, v := range patches[0] {
				row[k] = v
			}
			updated = append(updated, copyRow(row))
		}
		writeJSON(w, http.StatusOK, updated)

	default:
		writeError(w, http.StatusMethodNotAllowed, r.Method)
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, key string) {
	if status, ok := s.failures[r.Method+" storage"]; ok {
		writeError(w, status, "forced failure")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, r.Method)
		return
	}
	if _, exists := s.objects[key]; exists {
		writeError(w, http.StatusConflict, "The resource already exists")
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.objects[key] = data
	writeJSON(w, http.StatusOK, map[string]string{"Key": key, "Id": strconv.Itoa(len(s.objects))})
}

func (s *Server) handleSign(w http.ResponseWriter, r *http.Request, key string) {
	if status, ok := s.failures[r.Method+" sign"]; ok {
		writeError(w, status, "forced failure")
		return
	}
	var body struct {
		ExpiresIn int64 `json:"expiresIn"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ExpiresIn <= 0 {
		writeError(w, http.StatusBadRequest, "expiresIn required")
		return
	}
	if _, ok := s.objects[key]; !ok {
		writeError(w, http.StatusNotFound, "Object not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"signedURL": fmt.Sprintf("/object/sign/%s?token=signed-%d", key, body.ExpiresIn),
	})
}

type condition struct {
	column string
	value  string
}

func parseQuery(r *http.Request) ([]condition, string, error) {
	var conds []condition
	var order string
	for key, vals := range r.URL.Query() {
		for _, v := range vals {
			switch key {
			case "order":
				order = v
			case "select":
			default:
				val, ok := strings.CutPrefix(v, "eq.")
				if !ok {
					return nil, "", fmt.Errorf("unsupported operator in %s=%s", key, v)
				}
				conds = append(conds, condition{column: key, value: val})
			}
		}
	}
	return conds, order, nil
}

func (s *Server) matchLocked(table string, conds []condition) []map[string]any {
	out := []map[string]any{}
	for _, row := range s.tables[table] {
		if matches(row, conds) {
			out = append(out, copyRow(row))
		}
	}
	return out
}

func matches(row map[string]any, conds []condition) bool {
	for _, c := range conds {
		v, ok := row[c.column]
		if !ok || v == nil || fmt.Sprint(v) != c.value {
			return false
		}
	}
	return true
}

func sortRows(rows []map[string]any, order string) {
	switch order {
	case "id.desc":
		sort.SliceStable(rows, func(i, j int) bool { return toInt(rows[i]["id"]) > toInt(rows[j]["id"]) })
	case "id.asc":
		sort.SliceStable(rows, func(i, j int) bool { return toInt(rows[i]["id"]) < toInt(rows[j]["id"]) })
	}
}

func (s *Server) insertLocked(table string, row map[string]any) map[string]any {
	row = copyRow(row)
	if id, ok := row["id"]; ok && id != nil {
		if n := toInt(id); n > s.nextID[table] {
			s.nextID[table] = n
		}
	} else {
		s.nextID[table]++
		row["id"] = s.nextID[table]
	}
	s.tables[table] = append(s.tables[table], row)
	return row
}

func decodeRows(r io.Reader) ([]map[string]any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if len(data) > 0 && data[0] == '[' {
		var rows []map[string]any
		if err := dec.Decode(&rows); err != nil {
			return nil, err
		}
		return rows, nil
	}
	var row map[string]any
	if err := dec.Decode(&row); err != nil {
		return nil, err
	}
	return []map[string]any{row}, nil
}

func toInt(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	}
	return 0
}

func copyRow(r map[string]any) map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
