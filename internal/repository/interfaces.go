// Package repository はデータ永続化のインターフェースとPostgreSQL実装を提供する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/cvbuilder/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// DeleteByID は指定IDのユーザーを削除する。
	// profiles、sessions、cv_variants等はCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	Create(ctx context.Context, session *model.Session) error
	// FindByID は有効期限内のセッションをユーザーのメールアドレス付きで取得する。
	// 見つからない、または期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	DeleteByID(ctx context.Context, id string) error
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// ProfileRepository はプロフィールの永続化インターフェース。
// エラーはClassifyで分類済みのBackendErrorとして返す。
type ProfileRepository interface {
	// FindByID は指定ユーザーのプロフィールを取得する。存在しない場合はKindNotFound。
	FindByID(ctx context.Context, id string) (*model.Profile, error)

	// Insert はプロフィールを作成する。既に存在する場合はKindUniqueViolation。
	Insert(ctx context.Context, profile *model.Profile) error

	// FindPublicBySlug は公開設定のプロフィールをslugで取得する。
	// 非公開または存在しない場合はKindNotFound。
	FindPublicBySlug(ctx context.Context, slug string) (*model.Profile, error)

	// ListPublicSlugs は公開プロフィールのslugと更新日時を返す。
	ListPublicSlugs(ctx context.Context) ([]PublicSlug, error)

	// UpdatePhotoScoped はユーザースコープ（app.current_user_id）でphoto_urlのみを更新する。
	// 行が更新されなかった場合はKindPermissionDenied。
	UpdatePhotoScoped(ctx context.Context, userID, photoURL string) error

	// UpdatePhotoPrivileged はスコープ制限なしでphoto_urlのみを更新する。
	// 行が存在しない場合はKindNotFound。
	UpdatePhotoPrivileged(ctx context.Context, userID, photoURL string) error
}

// PublicSlug はサイトマップ生成用の公開プロフィール情報。
type PublicSlug struct {
	Slug      string
	UpdatedAt time.Time
}

// CVVariantRepository はCVバリエーションの永続化インターフェース。
type CVVariantRepository interface {
	// FindByIDForUser は所有者が一致するバリエーションを取得する。
	// 存在しない、または他ユーザーの所有の場合はKindNotFound。
	FindByIDForUser(ctx context.Context, id, userID string) (*model.CVVariant, error)

	// ListByUserID はユーザーのバリエーション一覧を更新日時の降順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.CVVariant, error)

	// UpdateData はバリエーションのCVデータを置き換える。所有者不一致はKindNotFound。
	UpdateData(ctx context.Context, id, userID string, doc model.CVDocument) error
}

// BillingRepository は課金状態とWebhookイベントの永続化インターフェース。
type BillingRepository interface {
	// FindByUserID はユーザーの課金状態を取得する。存在しない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.BillingSubscription, error)

	// ApplyPaymentSucceeded はイベントIDを記録し、サブスクリプションを有効化する。
	// 同じイベントIDが処理済みの場合は何もせずfalseを返す。
	ApplyPaymentSucceeded(ctx context.Context, event WebhookEvent, sub *model.BillingSubscription) (bool, error)

	// RecordEvent は状態変更を伴わないイベントを記録する。処理済みの場合はfalse。
	RecordEvent(ctx context.Context, event WebhookEvent) (bool, error)

	// DeleteEventsBefore は指定日時より前に受信したイベント記録を削除する。
	DeleteEventsBefore(ctx context.Context, before time.Time) (int64, error)
}

// WebhookEvent は処理済みの決済プロバイダーイベント。
type WebhookEvent struct {
	ID         string
	Type       string
	ReceivedAt time.Time
}

// OrganisationRepository は組織メンバーと招待の永続化インターフェース。
type OrganisationRepository interface {
	// FindMember は組織内のメンバー情報を取得する。所属していない場合はnilを返す。
	FindMember(ctx context.Context, organisationID, userID string) (*model.OrganisationMember, error)

	// FindInvitation は種別ごとのテーブルから招待を取得する。存在しない場合はKindNotFound。
	FindInvitation(ctx context.Context, typ model.InvitationType, id string) (*model.Invitation, error)

	// CancelInvitation は保留中の招待をキャンセル状態にする。
	// 保留中の招待が存在しない場合はKindNotFound。
	CancelInvitation(ctx context.Context, typ model.InvitationType, id string) error
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
