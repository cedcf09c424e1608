// Package validation はvalidator/v10による入力検証を提供する。
// 検証エラーはフィールド単位の詳細を持つmodel.APIErrorに変換する。
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/biblioteca/internal/model"
)

// Validator はvalidator/v10をラップし、検証エラーをAPIErrorに変換する。
type Validator struct {
	v *validator.Validate
}

// New は検証エラーのフィールド名にJSONタグ名を使うValidatorを生成する。
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	return &Validator{v: v}
}

// Validate は構造体を検証する。
// 検証に失敗した場合はDetailsにフィールドごとのメッセージを持つAPIErrorを返す。
func (v *Validator) Validate(s any) error {
	if err := v.v.Struct(s); err != nil {
		return v.formatError(err)
	}
	return nil
}

func (v *Validator) formatError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return fmt.Errorf("failed to validate input: %w", err)
	}

	details := make(map[string]string, len(validationErrs))
	for _, e := range validationErrs {
		details[e.Field()] = friendlyMessage(e)
	}
	return model.NewValidationError(details)
}

func friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "必須項目です"
	case "email":
		return "メールアドレスの形式が正しくありません"
	case "max":
		return fmt.Sprintf("%s文字以内で入力してください", e.Param())
	case "min":
		return fmt.Sprintf("%s文字以上で入力してください", e.Param())
	case "gte":
		return fmt.Sprintf("%s以上の値を指定してください", e.Param())
	case "lte":
		return fmt.Sprintf("%s以下の値を指定してください", e.Param())
	case "uuid":
		return "UUID形式で指定してください"
	default:
		return "値が正しくありません"
	}
}
