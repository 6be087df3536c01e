package middleware

import (
	"net/http"
	"strings"
)

// corsAllowedMethods は旅行エディタのフロントエンドが使うメソッド。
var corsAllowedMethods = strings.Join([]string{
	http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions,
}, ", ")

// NewCORSMiddleware は旅行エディタのフロントエンド（CORS_ALLOWED_ORIGIN）からのAPI呼び出しを許可する。
// セッションCookieを送らせるためオリジンは固定値で、ワイルドカードは使わない。
// 書き込み系はX-CSRF-Tokenヘッダーを伴い、429応答のRetry-Afterはフロントエンドから読めるよう公開する。
// プリフライトはハンドラーに渡さず204で応答する。
func NewCORSMiddleware(allowedOrigin string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allowedOrigin)
			h.Set("Access-Control-Allow-Methods", corsAllowedMethods)
			h.Set("Access-Control-Allow-Headers", "Content-Type, "+csrfHeaderName)
			h.Set("Access-Control-Expose-Headers", "Retry-After")
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Max-Age", "86400")
			h.Add("Vary", "Origin")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
