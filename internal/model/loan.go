// Package model はドメインモデルを定義する。
package model

import "time"

// DefaultLoanDays は返却予定日が指定されない場合の貸出日数。
const DefaultLoanDays = 14

// LoanStatus は貸出の状態を表す。
type LoanStatus string

const (
	// LoanStatusActive は貸出中の状態。
	LoanStatusActive LoanStatus = "ACTIVE"
	// LoanStatusReturned は返却済みの状態。終端状態。
	LoanStatusReturned LoanStatus = "RETURNED"
	// LoanStatusExpired は返却予定日を過ぎた状態。終端状態。
	LoanStatusExpired LoanStatus = "EXPIRED"
)

// Valid はステータスが定義済みの値かどうかを返す。
func (s LoanStatus) Valid() bool {
	switch s {
	case LoanStatusActive, LoanStatusReturned, LoanStatusExpired:
		return true
	default:
		return false
	}
}

// Terminal はそれ以上状態遷移しないステータスかどうかを返す。
func (s LoanStatus) Terminal() bool {
	return s == LoanStatusReturned || s == LoanStatusExpired
}

// Loan は書籍と利用者の貸出記録を表す。
// BookIDは作成後に変更されない。
type Loan struct {
	ID               string
	BookID           string
	UserID           string
	LoanDate         time.Time
	ExpectReturnDate time.Time
	ActualReturnDate *time.Time // 返却されるまでnil
	Status           LoanStatus
}

// IsOverdue はasOf時点で返却予定日を過ぎた有効な貸出かどうかを返す。
func (l *Loan) IsOverdue(asOf time.Time) bool {
	return l.Status == LoanStatusActive && Date(l.ExpectReturnDate).Before(Date(asOf))
}

// Date は時刻を暦日（UTCの0時）に切り詰める。
// 貸出関連の日付はすべて日単位で比較する。
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
