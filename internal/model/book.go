// Package model はドメインモデルを定義する。
package model

import "time"

// Book は蔵書を表す。
// Availableは有効な貸出（ACTIVE）が存在しない場合にのみtrueとなる。
type Book struct {
	ID              string
	Title           string
	Author          string
	ISBN            *string // 指定された場合は全書籍で一意
	PublicationYear int
	Publisher       *string
	Available       bool
	RegisteredAt    time.Time
}
