package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, trip, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeEmailMismatch       = "EMAIL_MISMATCH"
	ErrCodeTripNotFound        = "TRIP_NOT_FOUND"
	ErrCodeInvitationNotFound  = "INVITATION_NOT_FOUND"
	ErrCodeMemberNotFound      = "MEMBER_NOT_FOUND"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeAlreadyMember       = "ALREADY_MEMBER"
	ErrCodeInvitationProcessed = "INVITATION_PROCESSED"
	ErrCodeInvitationExpired   = "INVITATION_EXPIRED"
	ErrCodeOwnerProtected      = "OWNER_PROTECTED"
	ErrCodeInvalidRole         = "INVALID_ROLE"
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeUpstreamFailure     = "UPSTREAM_FAILURE"
	ErrCodeCSRFTokenInvalid    = "CSRF_TOKEN_INVALID"
	ErrCodeRateLimitExceeded   = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// NewUnauthorizedError は未認証エラーを生成する。
// セッション欠落・期限切れ・不明トークンのいずれでも同じエラーを返す。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError(operation string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  fmt.Sprintf("この操作を行う権限がありません: %s", operation),
		Category: "auth",
		Action:   "旅行のオーナーに権限の変更を依頼してください。",
	}
}

// NewEmailMismatchError は招待先メールアドレスとログイン中アカウントが一致しない場合のエラーを生成する。
func NewEmailMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailMismatch,
		Message:  "この招待は別のメールアドレス宛てに送信されています。",
		Category: "auth",
		Action:   "一度ログアウトし、招待を受け取ったアカウントでログインし直してください。",
	}
}

// NewTripNotFoundError は旅行未検出エラーを生成する。
// 閲覧権限のない旅行についても存在を漏らさないためこのエラーを返す。
func NewTripNotFoundError(tripID string) *APIError {
	return &APIError{
		Code:     ErrCodeTripNotFound,
		Message:  fmt.Sprintf("指定された旅行が見つかりません: %s", tripID),
		Category: "trip",
		Action:   "旅行IDを確認してください。",
	}
}

// NewInvitationNotFoundError は招待未検出エラーを生成する。
func NewInvitationNotFoundError(invitationID string) *APIError {
	return &APIError{
		Code:     ErrCodeInvitationNotFound,
		Message:  fmt.Sprintf("指定された招待が見つかりません: %s", invitationID),
		Category: "trip",
		Action:   "招待メールのリンクを確認してください。",
	}
}

// NewMemberNotFoundError はメンバー未検出エラーを生成する。
func NewMemberNotFoundError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeMemberNotFound,
		Message:  fmt.Sprintf("指定されたメンバーが見つかりません: %s", userID),
		Category: "trip",
		Action:   "メンバー一覧を再読み込みしてください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewAlreadyMemberError は招待先が既にメンバーである場合のエラーを生成する。
func NewAlreadyMemberError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyMember,
		Message:  fmt.Sprintf("%s は既にこの旅行のメンバーです。", email),
		Category: "trip",
		Action:   "権限を変更する場合はメンバー一覧から操作してください。",
	}
}

// NewInvitationProcessedError は処理済みの招待を再度承諾・辞退しようとした場合のエラーを生成する。
func NewInvitationProcessedError(status InvitationStatus) *APIError {
	return &APIError{
		Code:     ErrCodeInvitationProcessed,
		Message:  fmt.Sprintf("この招待は既に処理されています（状態: %s）。", status),
		Category: "trip",
		Action:   "旅行一覧を確認してください。",
	}
}

// NewInvitationExpiredError は期限切れの招待を承諾しようとした場合のエラーを生成する。
func NewInvitationExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeInvitationExpired,
		Message:  "この招待は有効期限が切れています。",
		Category: "trip",
		Action:   "旅行のオーナーに再招待を依頼してください。",
	}
}

// NewOwnerProtectedError はオーナーの削除・権限変更を拒否する場合のエラーを生成する。
func NewOwnerProtectedError() *APIError {
	return &APIError{
		Code:     ErrCodeOwnerProtected,
		Message:  "オーナーを削除したり、オーナーの権限を変更することはできません。",
		Category: "trip",
		Action:   "旅行が不要になった場合は旅行自体を削除してください。",
	}
}

// NewInvalidRoleError は無効な権限指定のエラーを生成する。
func NewInvalidRoleError(role string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRole,
		Message:  fmt.Sprintf("無効な権限です: %s", role),
		Category: "validation",
		Action:   "権限には editor または viewer を指定してください。",
	}
}

// NewInvalidRequestError はリクエスト内容が不正な場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewUpstreamFailureError は外部IdPとの通信に失敗した場合のエラーを生成する。
// 詳細はログにのみ出力し、ユーザーには再試行を促す。
func NewUpstreamFailureError() *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamFailure,
		Message:  "ログイン処理中に外部サービスとの通信に失敗しました。",
		Category: "system",
		Action:   "しばらく待ってから再度ログインしてください。",
	}
}

// NewCSRFTokenInvalidError はCSRFトークンの検証に失敗した場合のエラーを生成する。
func NewCSRFTokenInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFTokenInvalid,
		Message:  "CSRFトークンの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewRateLimitExceededError はレート制限を超えた場合のエラーを生成する。
func NewRateLimitExceededError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ出力する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
