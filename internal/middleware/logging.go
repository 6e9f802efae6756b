package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/cvbuilder/internal/auth"
	"github.com/hitoshi/cvbuilder/internal/metrics"
)

// アクセスログのauth属性の値。
const (
	authMethodCookie = "cookie"
	authMethodBearer = "bearer"
	authMethodNone   = "none"
)

type requestLogKey struct{}

// requestLog はロギングより内側のミドルウェアがアクセスログに追記する属性。
// コンテキストは内側にしか伝わらないため、ポインタを共有して書き戻す。
type requestLog struct {
	userID     string
	authMethod string
}

// annotateRequestLog はセッション解決の結果をアクセスログに反映する。
// ロギングミドルウェアを通っていない場合は何もしない。
func annotateRequestLog(ctx context.Context, rc *RequestContext) {
	rl, ok := ctx.Value(requestLogKey{}).(*requestLog)
	if !ok {
		return
	}
	rl.userID = rc.UserID()
	rl.authMethod = authMethod(rc.Credentials())
}

func authMethod(creds auth.Credentials) string {
	switch {
	case creds.SessionID != "":
		return authMethodCookie
	case creds.BearerToken != "":
		return authMethodBearer
	default:
		return authMethodNone
	}
}

// statusRecorder はステータスコードを記録するResponseWriter。
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status == 0 {
		sr.status = code
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	return sr.ResponseWriter.Write(b)
}

// Unwrap はhttp.ResponseControllerが元のWriterに到達できるようにする。
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func (sr *statusRecorder) code() int {
	if sr.status == 0 {
		return http.StatusOK
	}
	return sr.status
}

// NewLoggingMiddleware はリクエストごとにJSON構造化ログを1行出力するミドルウェアを返す。
// ログにはmethod、path、route、status、duration_ms、auth、user_id（認証済みの場合）を含む。
// ステータスが5xxならError、4xxならWarn、それ以外はInfoで出力する。
// collectorがnilでなければリクエスト数と処理時間も記録する。
func NewLoggingMiddleware(logger *slog.Logger, collector metrics.MetricsCollector) func(next http.Handler) http.Handler {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			rl := &requestLog{}

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestLogKey{}, rl)))

			duration := time.Since(start)
			status := rec.code()
			collector.RecordHTTPRequest(r.Method, status, duration)

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Float64("duration_ms", float64(duration.Microseconds())/1000),
			}
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				attrs = append(attrs, slog.String("route", rctx.RoutePattern()))
			}
			if rl.authMethod != "" {
				attrs = append(attrs, slog.String("auth", rl.authMethod))
			}

			userID := rl.userID
			if userID == "" {
				userID = UserIDFromContext(r.Context())
			}
			if userID != "" {
				attrs = append(attrs, slog.String("user_id", userID))
			}

			level := slog.LevelInfo
			switch {
			case status >= 500:
				level = slog.LevelError
			case status >= 400:
				level = slog.LevelWarn
			}
			logger.LogAttrs(r.Context(), level, "http_request", attrs...)
		})
	}
}
