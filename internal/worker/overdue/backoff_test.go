package overdue

import (
	"testing"
	"time"
)

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		name   string
		base   time.Duration
		errors int
		want   time.Duration
	}{
		{"初回はbaseのまま", 30 * time.Second, 0, 30 * time.Second},
		{"1回失敗で2倍", 30 * time.Second, 1, time.Minute},
		{"3回失敗で8倍", 30 * time.Second, 3, 4 * time.Minute},
		{"上限で頭打ち", 30 * time.Second, 10, maxBackoff},
		{"baseが上限を超える場合も上限", time.Hour, 0, maxBackoff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CalculateBackoff(tt.base, tt.errors); got != tt.want {
				t.Errorf("CalculateBackoff(%v, %d) = %v, want %v", tt.base, tt.errors, got, tt.want)
			}
		})
	}
}
