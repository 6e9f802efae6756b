package handler

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/cvbuilder/internal/guard"
	"github.com/hitoshi/cvbuilder/internal/model"
)

//go:embed pages/*.html
var pageFS embed.FS

var pageTemplates = template.Must(template.ParseFS(pageFS, "pages/*.html"))

type resultKind int

const (
	resultRender resultKind = iota
	resultRedirect
	resultFail
)

// Result はページハンドラーの結果。描画、リダイレクト、失敗のいずれか。
// リダイレクトはエラーレスポンスとは別に扱い、失敗に畳み込まない。
type Result struct {
	kind        resultKind
	status      int
	contentType string
	body        func(io.Writer) error
	location    string
	err         error
}

// Render はbodyの出力をstatusで返すResultを生成する。
func Render(status int, body func(io.Writer) error) Result {
	return Result{kind: resultRender, status: status, contentType: "text/html; charset=utf-8", body: body}
}

// RenderPage は埋め込みページテンプレートを描画するResultを生成する。
func RenderPage(name string, data any) Result {
	return Render(http.StatusOK, func(w io.Writer) error {
		return pageTemplates.ExecuteTemplate(w, name, data)
	})
}

// Redirect は303リダイレクトのResultを生成する。
func Redirect(location string) Result {
	return Result{kind: resultRedirect, status: http.StatusSeeOther, location: location}
}

// Fail はエラーページを返すResultを生成する。
func Fail(err error) Result {
	return Result{kind: resultFail, err: err}
}

// PageFunc はResultを返すページハンドラー。
type PageFunc func(w http.ResponseWriter, r *http.Request) Result

// servePage はPageFuncをhttp.HandlerFuncに変換する。
// 描画はバッファに行い、途中で失敗した場合は500のエラーページに差し替える。
func servePage(op string, fn PageFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := fn(w, r)

		switch res.kind {
		case resultRedirect:
			http.Redirect(w, r, res.location, res.status)

		case resultRender:
			var buf bytes.Buffer
			if err := res.body(&buf); err != nil {
				slog.Error("page render failed",
					slog.String("op", op),
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				writeErrorPage(w, http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", res.contentType)
			w.WriteHeader(res.status)
			w.Write(buf.Bytes())

		default:
			writeErrorPage(w, pageErrorStatus(op, r, res.err))
		}
	}
}

// pageErrorStatus はページの失敗をステータスコードに変換する。
func pageErrorStatus(op string, r *http.Request, err error) int {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return mapAPIErrorToHTTPStatus(apiErr)
	}
	status := http.StatusInternalServerError
	if isUnknownTemplate(err) {
		status = http.StatusNotFound
	} else {
		slog.Error("page failed",
			slog.String("op", op),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	return status
}

type errorPage struct {
	Title   string
	Message string
}

func writeErrorPage(w http.ResponseWriter, status int) {
	message := "問題が発生しました。しばらく待ってから再度お試しください。"
	if status == http.StatusNotFound {
		message = "お探しのページは見つかりませんでした。"
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	pageTemplates.ExecuteTemplate(w, "error.html", errorPage{
		Title:   http.StatusText(status),
		Message: message,
	})
}

// authRedirect はSession Guardのエラーをログイン画面へのリダイレクトに変換する。
func authRedirect(err error, r *http.Request) Result {
	if errors.Is(err, guard.ErrUnrecoverable) {
		return Redirect("/login?error=profile_unavailable")
	}
	return Redirect("/login?redirect=" + url.QueryEscape(r.URL.RequestURI()))
}

// safeRedirectPath はログイン後の遷移先として許可できる相対パスかを判定する。
// 外部サイトへのオープンリダイレクトを防ぐ。
func safeRedirectPath(p string) bool {
	if p == "" || !strings.HasPrefix(p, "/") {
		return false
	}
	if strings.HasPrefix(p, "//") || strings.HasPrefix(p, "/\\") {
		return false
	}
	return !strings.ContainsAny(p, "\r\n")
}
