// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
	"strconv"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string            // エラーコード
	Message  string            // エラーメッセージ
	Category string            // カテゴリ: not_found, conflict, validation, system
	Action   string            // ユーザー向け対処方法
	Details  map[string]string // フィールド単位の検証エラー（validationのみ）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// エラーカテゴリ
const (
	CategoryNotFound   = "not_found"
	CategoryConflict   = "conflict"
	CategoryValidation = "validation"
	CategorySystem     = "system"
)

// 定義済みエラーコード
const (
	ErrCodeBookNotFound       = "BOOK_NOT_FOUND"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeLoanNotFound       = "LOAN_NOT_FOUND"
	ErrCodeISBNAlreadyExists  = "ISBN_ALREADY_EXISTS"
	ErrCodeEmailAlreadyExists = "EMAIL_ALREADY_EXISTS"
	ErrCodeBookUnavailable    = "BOOK_UNAVAILABLE"
	ErrCodeBookAlreadyOnLoan  = "BOOK_ALREADY_ON_LOAN"
	ErrCodeLoanNotActive      = "LOAN_NOT_ACTIVE"
	ErrCodeBookOnLoan         = "BOOK_ON_LOAN"
	ErrCodeUserHasActiveLoans = "USER_HAS_ACTIVE_LOANS"
	ErrCodeHasLoanHistory     = "HAS_LOAN_HISTORY"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeInvalidReturnDate  = "INVALID_RETURN_DATE"
	ErrCodeSweepIncomplete    = "SWEEP_INCOMPLETE"
)

// CategoryOf はエラーがAPIErrorの場合にそのカテゴリを返す。
// APIError以外のエラーにはCategorySystemを返す。
func CategoryOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Category
	}
	return CategorySystem
}

// HasCode はエラーが指定コードのAPIErrorかどうかを判定する。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// NewBookNotFoundError は書籍未検出エラーを生成する。
func NewBookNotFoundError(bookID string) *APIError {
	return &APIError{
		Code:     ErrCodeBookNotFound,
		Message:  fmt.Sprintf("指定された書籍が見つかりません: %s", bookID),
		Category: CategoryNotFound,
		Action:   "書籍IDを確認してください。",
	}
}

// NewUserNotFoundError は利用者未検出エラーを生成する。
func NewUserNotFoundError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  fmt.Sprintf("指定された利用者が見つかりません: %s", userID),
		Category: CategoryNotFound,
		Action:   "利用者IDを確認してください。",
	}
}

// NewLoanNotFoundError は貸出未検出エラーを生成する。
func NewLoanNotFoundError(loanID string) *APIError {
	return &APIError{
		Code:     ErrCodeLoanNotFound,
		Message:  fmt.Sprintf("指定された貸出が見つかりません: %s", loanID),
		Category: CategoryNotFound,
		Action:   "貸出IDを確認してください。",
	}
}

// NewISBNAlreadyExistsError はISBN重複エラーを生成する。
func NewISBNAlreadyExistsError(isbn string) *APIError {
	return &APIError{
		Code:     ErrCodeISBNAlreadyExists,
		Message:  fmt.Sprintf("このISBNは既に登録されています: %s", isbn),
		Category: CategoryConflict,
		Action:   "登録済みの書籍を確認するか、別のISBNを指定してください。",
	}
}

// NewEmailAlreadyExistsError はメールアドレス重複エラーを生成する。
func NewEmailAlreadyExistsError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeEmailAlreadyExists,
		Message:  fmt.Sprintf("このメールアドレスは既に登録されています: %s", email),
		Category: CategoryConflict,
		Action:   "別のメールアドレスを指定してください。",
	}
}

// NewBookUnavailableError は貸出不可エラーを生成する。
// 書籍が存在しない場合も同じエラーとして扱う。
func NewBookUnavailableError(bookID string) *APIError {
	return &APIError{
		Code:     ErrCodeBookUnavailable,
		Message:  fmt.Sprintf("この書籍は貸出できません: %s", bookID),
		Category: CategoryConflict,
		Action:   "返却されるまでお待ちください。",
	}
}

// NewBookAlreadyOnLoanError は有効な貸出が既に存在する場合のエラーを生成する。
func NewBookAlreadyOnLoanError(bookID string) *APIError {
	return &APIError{
		Code:     ErrCodeBookAlreadyOnLoan,
		Message:  fmt.Sprintf("この書籍には有効な貸出が既に存在します: %s", bookID),
		Category: CategoryConflict,
		Action:   "返却されるまでお待ちください。",
	}
}

// NewLoanNotActiveError は貸出が有効状態でない場合のエラーを生成する。
func NewLoanNotActiveError(loanID string, status LoanStatus) *APIError {
	return &APIError{
		Code:     ErrCodeLoanNotActive,
		Message:  fmt.Sprintf("貸出は有効状態ではありません: %s (%s)", loanID, status),
		Category: CategoryConflict,
		Action:   "返却済みまたは期限切れの貸出は操作できません。",
	}
}

// NewBookOnLoanError は貸出中の書籍を削除する、または貸出可能に戻そうとした場合のエラーを生成する。
func NewBookOnLoanError(bookID string) *APIError {
	return &APIError{
		Code:     ErrCodeBookOnLoan,
		Message:  fmt.Sprintf("この書籍は貸出中です: %s", bookID),
		Category: CategoryConflict,
		Action:   "返却を処理してから操作してください。",
	}
}

// NewUserHasActiveLoansError は有効な貸出を持つ利用者を削除しようとした場合のエラーを生成する。
func NewUserHasActiveLoansError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeUserHasActiveLoans,
		Message:  fmt.Sprintf("有効な貸出がある利用者は削除できません: %s", userID),
		Category: CategoryConflict,
		Action:   "すべての貸出を返却してから削除してください。",
	}
}

// NewHasLoanHistoryError は貸出記録から参照されている書籍・利用者を削除しようとした場合のエラーを生成する。
// 貸出記録は削除しないため、参照元が残る限り削除できない。
func NewHasLoanHistoryError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeHasLoanHistory,
		Message:  fmt.Sprintf("貸出記録から参照されているため削除できません: %s", id),
		Category: CategoryConflict,
		Action:   "無効化（利用者）または貸出不可（書籍）として更新してください。",
	}
}

// NewValidationError は入力検証エラーを生成する。
// detailsにはフィールド名とエラー内容の対応を格納する。
func NewValidationError(details map[string]string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  "入力内容に誤りがあります。",
		Category: CategoryValidation,
		Action:   "各フィールドの内容を確認してください。",
		Details:  details,
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: CategoryValidation,
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewInvalidReturnDateError は返却予定日が貸出日より前の場合のエラーを生成する。
func NewInvalidReturnDateError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidReturnDate,
		Message:  "返却予定日は貸出日以降の日付を指定してください。",
		Category: CategoryValidation,
		Action:   "返却予定日を確認してください。",
	}
}

// NewSweepIncompleteError は延滞スイープが一部の貸出で失敗した場合のエラーを生成する。
// expiredには失敗までにコミット済みの期限切れ件数を入れる。
func NewSweepIncompleteError(expired int) *APIError {
	return &APIError{
		Code:     ErrCodeSweepIncomplete,
		Message:  "一部の貸出の期限切れ処理に失敗しました。",
		Category: CategorySystem,
		Action:   "しばらく待ってから再度スイープを実行してください。",
		Details:  map[string]string{"expired": strconv.Itoa(expired)},
	}
}
