package tripsync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// fakeServer はサーバーAPIの最小限の振る舞いを再現する。
type fakeServer struct {
	mu          sync.Mutex
	tokens      []string
	rejectFirst bool
	puts        []tripRequest
	deletes     []string
}

func (s *fakeServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/csrf-token", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		token := "token-" + string(rune('a'+len(s.tokens)))
		s.tokens = append(s.tokens, token)
		s.mu.Unlock()

		http.SetCookie(w, &http.Cookie{Name: "csrf_token", Value: token, Path: "/"})
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"token": token})
	})

	mux.HandleFunc("GET /api/trips", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session_id"); err != nil || c.Value != "sess-1" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"code": "UNAUTHORIZED", "message": "ログインが必要です"})
			return
		}
		writeJSON(w, http.StatusOK, []map[string]any{{
			"id":        "trip-1",
			"trip_name": "京都",
			"role":      "owner",
			"members":   []map[string]string{{"user_id": "u1", "email": "a@example.com", "role": "owner"}},
		}})
	})

	mux.HandleFunc("GET /api/trips/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "trip-1" {
			writeJSON(w, http.StatusNotFound, map[string]string{"code": "TRIP_NOT_FOUND", "message": "旅行が見つかりません"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":             "trip-1",
			"trip_name":      "京都",
			"data":           map[string]any{"days": []int{1}},
			"schema_version": 1,
			"role":           "editor",
		})
	})

	mux.HandleFunc("PUT /api/trips/{id}", func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("csrf_token")
		header := r.Header.Get("X-CSRF-Token")
		s.mu.Lock()
		reject := s.rejectFirst
		s.rejectFirst = false
		s.mu.Unlock()
		if err != nil || header == "" || cookie.Value != header || reject {
			writeJSON(w, http.StatusForbidden, map[string]string{"code": "CSRF_TOKEN_INVALID", "message": "CSRFトークンが不正です"})
			return
		}

		var req tripRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		s.mu.Lock()
		s.puts = append(s.puts, req)
		s.mu.Unlock()

		writeJSON(w, http.StatusOK, map[string]any{
			"id":             r.PathValue("id"),
			"owner_user_id":  "u1",
			"trip_name":      req.TripName,
			"data":           req.Data,
			"schema_version": 1,
			"role":           "owner",
		})
	})

	mux.HandleFunc("DELETE /api/trips/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "trip-1" {
			writeJSON(w, http.StatusForbidden, map[string]string{"code": "FORBIDDEN", "message": "権限がありません"})
			return
		}
		s.mu.Lock()
		s.deletes = append(s.deletes, r.PathValue("id"))
		s.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func newTestTransport(t *testing.T, fs *fakeServer) *HTTPTransport {
	t.Helper()
	srv := httptest.NewServer(fs.handler(t))
	t.Cleanup(srv.Close)

	tr, err := NewHTTPTransport(srv.URL+"/", nil)
	if err != nil {
		t.Fatalf("NewHTTPTransport() error = %v", err)
	}
	tr.SetSession("sess-1")
	return tr
}

func TestNewHTTPTransport_InvalidBaseURL(t *testing.T) {
	for _, raw := range []string{"", "localhost", "://bad"} {
		if _, err := NewHTTPTransport(raw, nil); err == nil {
			t.Errorf("NewHTTPTransport(%q) error = nil, want error", raw)
		}
	}
}

func TestNewHTTPTransport_RequiresCookieJar(t *testing.T) {
	if _, err := NewHTTPTransport("http://localhost:8080", &http.Client{}); err == nil {
		t.Error("NewHTTPTransport() error = nil, want error for client without jar")
	}
}

func TestHTTPTransport_ListTrips(t *testing.T) {
	tr := newTestTransport(t, &fakeServer{})

	list, err := tr.ListTrips(context.Background())
	if err != nil {
		t.Fatalf("ListTrips() error = %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("len(list) = %d, want 1", len(list))
	}
	if list[0].TripName != "京都" || list[0].Role != "owner" {
		t.Errorf("list[0] = %+v", list[0])
	}
	if len(list[0].Members) != 1 || list[0].Members[0].Email != "a@example.com" {
		t.Errorf("Members = %+v", list[0].Members)
	}
}

func TestHTTPTransport_Unauthenticated(t *testing.T) {
	tr := newTestTransport(t, &fakeServer{})
	tr.SetSession("expired")

	_, err := tr.ListTrips(context.Background())
	re, ok := err.(*ResponseError)
	if !ok {
		t.Fatalf("error type = %T, want *ResponseError", err)
	}
	if re.Status != http.StatusUnauthorized || re.Code != "UNAUTHORIZED" {
		t.Errorf("error = %+v", re)
	}
}

func TestHTTPTransport_GetTrip(t *testing.T) {
	tr := newTestTransport(t, &fakeServer{})

	doc, err := tr.GetTrip(context.Background(), "trip-1")
	if err != nil {
		t.Fatalf("GetTrip() error = %v", err)
	}
	if doc.Role != "editor" || doc.SchemaVersion != 1 {
		t.Errorf("doc = %+v", doc)
	}
	if string(doc.Data) != `{"days":[1]}` {
		t.Errorf("Data = %s", doc.Data)
	}

	_, err = tr.GetTrip(context.Background(), "missing")
	if !IsNotFound(err) {
		t.Errorf("GetTrip(missing) error = %v, want not found", err)
	}
}

func TestHTTPTransport_ReplaceSendsCSRFToken(t *testing.T) {
	fs := &fakeServer{}
	tr := newTestTransport(t, fs)
	ctx := context.Background()

	doc := testDoc("trip-1", "京都", "owner")
	if err := tr.ReplaceTrip(ctx, doc); err != nil {
		t.Fatalf("ReplaceTrip() error = %v", err)
	}
	if err := tr.ReplaceTrip(ctx, doc); err != nil {
		t.Fatalf("ReplaceTrip() error = %v", err)
	}

	if len(fs.tokens) != 1 {
		t.Errorf("csrf token fetches = %d, want 1", len(fs.tokens))
	}
	if len(fs.puts) != 2 {
		t.Fatalf("puts = %d, want 2", len(fs.puts))
	}
	if fs.puts[0].TripName != "京都" || fs.puts[0].StartDate != "2026-04-01" {
		t.Errorf("request = %+v", fs.puts[0])
	}
}

func TestHTTPTransport_RefetchesRejectedToken(t *testing.T) {
	fs := &fakeServer{rejectFirst: true}
	tr := newTestTransport(t, fs)

	if err := tr.ReplaceTrip(context.Background(), testDoc("trip-1", "京都", "owner")); err != nil {
		t.Fatalf("ReplaceTrip() error = %v", err)
	}
	if len(fs.tokens) != 2 {
		t.Errorf("csrf token fetches = %d, want 2", len(fs.tokens))
	}
	if len(fs.puts) != 1 {
		t.Errorf("puts = %d, want 1", len(fs.puts))
	}
}

func TestHTTPTransport_CreateTripUsesClientID(t *testing.T) {
	fs := &fakeServer{}
	tr := newTestTransport(t, fs)

	created, err := tr.CreateTrip(context.Background(), testDoc("trip-new", "沖縄", ""))
	if err != nil {
		t.Fatalf("CreateTrip() error = %v", err)
	}
	if created.ID != "trip-new" || created.OwnerUserID != "u1" || created.Role != "owner" {
		t.Errorf("created = %+v", created)
	}

	if _, err := tr.CreateTrip(context.Background(), &Document{}); err == nil {
		t.Error("CreateTrip() without id error = nil, want error")
	}
}

func TestHTTPTransport_DeleteTrip(t *testing.T) {
	fs := &fakeServer{}
	tr := newTestTransport(t, fs)
	ctx := context.Background()

	if err := tr.DeleteTrip(ctx, "trip-1"); err != nil {
		t.Fatalf("DeleteTrip() error = %v", err)
	}
	if len(fs.deletes) != 1 {
		t.Errorf("deletes = %d, want 1", len(fs.deletes))
	}

	err := tr.DeleteTrip(ctx, "trip-2")
	re, ok := err.(*ResponseError)
	if !ok || re.Status != http.StatusForbidden || re.Code != "FORBIDDEN" {
		t.Errorf("DeleteTrip(trip-2) error = %v, want 403 FORBIDDEN", err)
	}
}

// 403のエラーコードはCSRF判定後もそのまま呼び出し元へ返し、再送しない。
func TestHTTPTransport_ForbiddenKeepsErrorCode(t *testing.T) {
	tests := []struct {
		code    string
		message string
	}{
		{"FORBIDDEN", "権限がありません"},
		{"EMAIL_MISMATCH", "招待されたメールアドレスと一致しません"},
		{"OWNER_PROTECTED", "オーナーは変更できません"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			var mu sync.Mutex
			writes := 0
			mux := http.NewServeMux()
			mux.HandleFunc("GET /api/csrf-token", func(w http.ResponseWriter, r *http.Request) {
				http.SetCookie(w, &http.Cookie{Name: "csrf_token", Value: "tok", Path: "/"})
				writeJSON(w, http.StatusOK, map[string]string{"token": "tok"})
			})
			mux.HandleFunc("DELETE /api/trips/{id}", func(w http.ResponseWriter, r *http.Request) {
				mu.Lock()
				writes++
				mu.Unlock()
				writeJSON(w, http.StatusForbidden, map[string]string{"code": tt.code, "message": tt.message})
			})
			srv := httptest.NewServer(mux)
			defer srv.Close()

			tr, err := NewHTTPTransport(srv.URL, nil)
			if err != nil {
				t.Fatalf("NewHTTPTransport() error = %v", err)
			}

			err = tr.DeleteTrip(context.Background(), "trip-1")
			re, ok := err.(*ResponseError)
			if !ok {
				t.Fatalf("error = %T %v, want *ResponseError", err, err)
			}
			if re.Status != http.StatusForbidden || re.Code != tt.code || re.Message != tt.message {
				t.Errorf("error = %+v, want 403 %s %q", re, tt.code, tt.message)
			}
			mu.Lock()
			defer mu.Unlock()
			if writes != 1 {
				t.Errorf("DELETE requests = %d, want 1", writes)
			}
		})
	}
}

func TestHTTPTransport_WithStore(t *testing.T) {
	fs := &fakeServer{}
	tr := newTestTransport(t, fs)
	timers := &fakeTimers{}
	s := NewStore(tr, withAfterFunc(timers.afterFunc))
	ctx := context.Background()

	if _, err := s.Open(ctx, "trip-1"); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := s.Apply(appendName("・嵐山")); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	timers.fireActive()

	if len(fs.puts) != 1 || fs.puts[0].TripName != "京都・嵐山" {
		t.Errorf("puts = %+v", fs.puts)
	}
}
