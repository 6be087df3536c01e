package model

import "fmt"

// Role は旅行に対するユーザーの権限を表す。
// 値の大小がそのまま権限の強さを表す全順序（viewer < editor < owner）。
type Role int

const (
	// RoleNone はアクセス権がないことを表す。
	RoleNone Role = iota
	// RoleViewer は閲覧のみ可能な権限。
	RoleViewer
	// RoleEditor は旅行ドキュメントを編集可能な権限。
	RoleEditor
	// RoleOwner はメンバー管理・削除を含む全操作が可能な権限。
	RoleOwner
)

var roleNames = map[Role]string{
	RoleViewer: "viewer",
	RoleEditor: "editor",
	RoleOwner:  "owner",
}

// String は権限の文字列表現を返す。RoleNoneは空文字列。
func (r Role) String() string {
	return roleNames[r]
}

// Level は権限の強さを返す（viewer=1, editor=2, owner=3, なし=0）。
func (r Role) Level() int {
	if r < RoleNone || r > RoleOwner {
		return 0
	}
	return int(r)
}

// IsValid はrが実在する権限（viewer/editor/owner）かどうかを返す。
func (r Role) IsValid() bool {
	return r >= RoleViewer && r <= RoleOwner
}

// IsInvitable は招待・権限変更で付与可能な権限かどうかを返す。
// ownerは招待やメンバー管理では付与できない。
func (r Role) IsInvitable() bool {
	return r == RoleEditor || r == RoleViewer
}

// ParseRole は文字列から権限を解析する。
func ParseRole(s string) (Role, error) {
	for role, name := range roleNames {
		if name == s {
			return role, nil
		}
	}
	return RoleNone, fmt.Errorf("unknown role: %q", s)
}

// MarshalText はencoding.TextMarshalerを実装する。
func (r Role) MarshalText() ([]byte, error) {
	if !r.IsValid() {
		return nil, fmt.Errorf("cannot marshal role %d", int(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText はencoding.TextUnmarshalerを実装する。
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// HasMinRole はroleがrequired以上の権限を持つかどうかを返す。
// RoleNoneは常にfalse。
func HasMinRole(role, required Role) bool {
	return role != RoleNone && role.Level() >= required.Level()
}
