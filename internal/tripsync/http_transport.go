package tripsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	sessionCookieName  = "session_id"
	csrfHeaderName     = "X-CSRF-Token"
	// maxErrorBodySize はエラーレスポンスとして読み取る最大バイト数。
	maxErrorBodySize = 64 * 1024
)

// ResponseError はサーバーが2xx以外を返した場合のエラー。
type ResponseError struct {
	Status  int
	Code    string
	Message string
}

func (e *ResponseError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("tripsync: server returned %d", e.Status)
	}
	return fmt.Sprintf("tripsync: server returned %d %s: %s", e.Status, e.Code, e.Message)
}

// IsNotFound はerrが404を表すかを返す。
func IsNotFound(err error) bool {
	var re *ResponseError
	return errors.As(err, &re) && re.Status == http.StatusNotFound
}

// tripRequest は作成・置換リクエストのボディ。
type tripRequest struct {
	TripName      string          `json:"trip_name"`
	StartDate     string          `json:"start_date"`
	EndDate       string          `json:"end_date"`
	Data          json.RawMessage `json:"data"`
	SchemaVersion int             `json:"schema_version"`
}

// HTTPTransport はサーバーのREST APIを使うTransport。
// 認証はCookieのセッション、状態変更はダブルサブミットのCSRFトークンで行う。
type HTTPTransport struct {
	baseURL *url.URL
	client  *http.Client

	mu        sync.Mutex
	csrfToken string
}

var _ Transport = (*HTTPTransport)(nil)

// NewHTTPTransport はHTTPTransportを生成する。
// clientがnilの場合はCookieJar付きのクライアントを生成する。
// 独自のクライアントを渡す場合はJarを設定しておく必要がある。
func NewHTTPTransport(baseURL string, client *http.Client) (*HTTPTransport, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL: %q", baseURL)
	}
	if client == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		client = &http.Client{Jar: jar, Timeout: defaultHTTPTimeout}
	}
	if client.Jar == nil {
		return nil, errors.New("http client must have a cookie jar")
	}
	return &HTTPTransport{baseURL: u, client: client}, nil
}

// SetSession はログイン済みのセッションIDをCookieJarに設定する。
func (t *HTTPTransport) SetSession(sessionID string) {
	t.client.Jar.SetCookies(t.baseURL, []*http.Cookie{{
		Name:  sessionCookieName,
		Value: sessionID,
		Path:  "/",
	}})
}

// ListTrips は GET /api/trips を呼ぶ。
func (t *HTTPTransport) ListTrips(ctx context.Context) ([]Summary, error) {
	var list []Summary
	if err := t.do(ctx, http.MethodGet, "/api/trips", nil, &list); err != nil {
		return nil, err
	}
	if list == nil {
		list = []Summary{}
	}
	return list, nil
}

// GetTrip は GET /api/trips/{id} を呼ぶ。
func (t *HTTPTransport) GetTrip(ctx context.Context, id string) (*Document, error) {
	var doc Document
	if err := t.do(ctx, http.MethodGet, tripPath(id), nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// CreateTrip はクライアントで割り当てたIDで PUT /api/trips/{id} を呼ぶ。
// サーバーは存在しないIDへの置換を作成として扱う。
func (t *HTTPTransport) CreateTrip(ctx context.Context, doc *Document) (*Document, error) {
	if doc.ID == "" {
		return nil, errors.New("trip id is required")
	}
	var created Document
	if err := t.do(ctx, http.MethodPut, tripPath(doc.ID), requestOf(doc), &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// ReplaceTrip は PUT /api/trips/{id} を呼ぶ。
func (t *HTTPTransport) ReplaceTrip(ctx context.Context, doc *Document) error {
	return t.do(ctx, http.MethodPut, tripPath(doc.ID), requestOf(doc), nil)
}

// DeleteTrip は DELETE /api/trips/{id} を呼ぶ。
func (t *HTTPTransport) DeleteTrip(ctx context.Context, id string) error {
	return t.do(ctx, http.MethodDelete, tripPath(id), nil, nil)
}

func tripPath(id string) string {
	return "/api/trips/" + url.PathEscape(id)
}

func requestOf(doc *Document) tripRequest {
	return tripRequest{
		TripName:      doc.TripName,
		StartDate:     doc.StartDate,
		EndDate:       doc.EndDate,
		Data:          doc.Data,
		SchemaVersion: doc.SchemaVersion,
	}
}

// do はリクエストを送信し、2xxならレスポンスをoutにデコードする。
// CSRFトークンが拒否された場合は1回だけ取り直して再送する。
func (t *HTTPTransport) do(ctx context.Context, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	needsToken := method != http.MethodGet && method != http.MethodHead
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, t.baseURL.String()+path, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if needsToken {
			token, err := t.token(ctx)
			if err != nil {
				return err
			}
			req.Header.Set(csrfHeaderName, token)
		}

		resp, err := t.client.Do(req)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}

		if resp.StatusCode == http.StatusForbidden && needsToken && attempt == 0 && isCSRFFailure(resp) {
			resp.Body.Close()
			t.resetToken()
			continue
		}
		return decodeResponse(resp, out)
	}
}

// token はCSRFトークンを返す。未取得の場合は GET /api/csrf-token で取得する。
func (t *HTTPTransport) token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.csrfToken != "" {
		return t.csrfToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL.String()+"/api/csrf-token", nil)
	if err != nil {
		return "", fmt.Errorf("failed to build csrf request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch csrf token: %w", err)
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := decodeResponse(resp, &body); err != nil {
		return "", err
	}
	if body.Token == "" {
		return "", errors.New("server returned an empty csrf token")
	}
	t.csrfToken = body.Token
	return t.csrfToken, nil
}

func (t *HTTPTransport) resetToken() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.csrfToken = ""
}

// isCSRFFailure はCSRF検証失敗による403かを判定する。
// 読んだボディはresp.Bodyに戻すため、続けてdecodeResponseでエラーコードを取り出せる。
func isCSRFFailure(resp *http.Response) bool {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(data))

	var body struct {
		Code string `json:"code"`
	}
	_ = json.Unmarshal(data, &body)
	return body.Code == "CSRF_TOKEN_INVALID"
}

func decodeResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respErr := &ResponseError{Status: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		var body struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &body) == nil {
			respErr.Code = body.Code
			respErr.Message = body.Message
		}
		return respErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
