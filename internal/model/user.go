// Package model はドメインモデルを定義する。
package model

import "time"

// User は図書館の利用者を表す。
// 貸出から参照されるのみで、貸出のライフサイクルとは連動しない。
type User struct {
	ID           string
	Name         string
	LastName     string
	Email        string
	Phone        *string
	RegisteredAt time.Time
	Active       bool
}
