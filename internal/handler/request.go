package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hitoshi/tripshare/internal/model"
)

// maxRequestBodySize はリクエストボディの上限（旅行ドキュメント全体を含むため大きめ）。
const maxRequestBodySize = 5 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// エラーメッセージにはJSONのフィールド名を使う
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationMessages はタグごとのエラーメッセージ。
var validationMessages = map[string]string{
	"required": "%s は必須です",
	"email":    "%s はメールアドレスの形式で指定してください",
	"max":      "%s は%s文字以内で指定してください",
	"min":      "%s は%s以上で指定してください",
	"gte":      "%s は%s以上で指定してください",
	"datetime": "%s はYYYY-MM-DD形式で指定してください",
}

// decodeRequest はJSONボディをdstにデコードし、validateタグで検証する。
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) *model.APIError {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return model.NewInvalidRequestError("リクエストボディが大きすぎます")
		}
		return model.NewInvalidRequestError("リクエストボディの解析に失敗しました")
	}
	if _, err := dec.Token(); err != io.EOF {
		return model.NewInvalidRequestError("リクエストボディに余分なデータがあります")
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return model.NewInvalidRequestError(validationMessage(verrs[0]))
		}
		return model.NewInvalidRequestError("リクエストの検証に失敗しました")
	}
	return nil
}

// validationMessage はFieldErrorから利用者向けのメッセージを組み立てる。
func validationMessage(e validator.FieldError) string {
	msg, ok := validationMessages[e.Tag()]
	if !ok {
		return fmt.Sprintf("%s の値が不正です", e.Field())
	}
	if strings.Count(msg, "%s") == 2 {
		return fmt.Sprintf(msg, e.Field(), e.Param())
	}
	return fmt.Sprintf(msg, e.Field())
}

// parseRoleParam はリクエストの権限文字列を解析する。不明な値はINVALID_ROLE。
func parseRoleParam(s string) (model.Role, *model.APIError) {
	role, err := model.ParseRole(s)
	if err != nil {
		return model.RoleNone, model.NewInvalidRoleError(s)
	}
	return role, nil
}

// isValidID はパスパラメータがUUID形式かどうかを返す。
func isValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
