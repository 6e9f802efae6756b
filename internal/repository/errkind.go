package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// Kind はバックエンドエラーの分類。ドライバ固有のエラーコードはこの境界で閉じた列挙に変換する。
type Kind int

const (
	// KindOther は既知のどの分類にも当てはまらないエラー。Messageに元のメッセージを保持する。
	KindOther Kind = iota
	// KindNotFound は対象行が存在しない。
	KindNotFound
	// KindUniqueViolation は一意制約違反（SQLSTATE 23505）。
	KindUniqueViolation
	// KindPermissionDenied は権限不足（SQLSTATE 42501）またはユーザースコープ更新の拒否。
	KindPermissionDenied
	// KindUnavailable は接続断やタイムアウト（SQLSTATE 08xxx）。
	KindUnavailable
)

// String はログ出力用の分類名を返す。
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindUniqueViolation:
		return "unique_violation"
	case KindPermissionDenied:
		return "permission_denied"
	case KindUnavailable:
		return "unavailable"
	default:
		return "other"
	}
}

// BackendError は分類済みのバックエンドエラー。
// Opは失敗した操作名、Codeはドライバが返したエラーコード（SQLSTATE）。
type BackendError struct {
	Kind    Kind
	Code    string
	Op      string
	Message string
	Err     error
}

// Error はerrorインターフェースを実装する。
func (e *BackendError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s [%s]: %s", e.Op, e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
}

// Unwrap は元のエラーを返す。
func (e *BackendError) Unwrap() error {
	return e.Err
}

// Classify はドライバのエラーをBackendErrorに変換する。nilはnilのまま返す。
// すでに分類済みのエラーはOpを保ったまま返す。
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var be *BackendError
	if errors.As(err, &be) {
		return be
	}

	out := &BackendError{Kind: KindOther, Op: op, Message: err.Error(), Err: err}

	var pqErr *pq.Error
	switch {
	case errors.Is(err, sql.ErrNoRows):
		out.Kind = KindNotFound
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, sql.ErrConnDone):
		out.Kind = KindUnavailable
	case errors.As(err, &pqErr):
		out.Code = string(pqErr.Code)
		out.Message = pqErr.Message
		switch {
		case pqErr.Code == "23505":
			out.Kind = KindUniqueViolation
		case pqErr.Code == "42501":
			out.Kind = KindPermissionDenied
		case pqErr.Code.Class() == "08":
			out.Kind = KindUnavailable
		}
	}

	return out
}

// KindOf はエラーの分類を返す。分類されていないエラーはKindOther。
func KindOf(err error) Kind {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindOther
}

// IsNotFound は対象行が存在しないエラーかどうかを返す。
func IsNotFound(err error) bool {
	return err != nil && KindOf(err) == KindNotFound
}

// CodeOf はログ用にエラーコードを返す。分類されていない場合は空文字。
func CodeOf(err error) string {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

// notFound は行が存在しない場合の分類済みエラーを生成する。
func notFound(op string) error {
	return &BackendError{Kind: KindNotFound, Op: op, Message: "no rows", Err: sql.ErrNoRows}
}
