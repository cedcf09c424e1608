package overdue

import "time"

// maxBackoff は再試行間隔の上限。
const maxBackoff = 10 * time.Minute

// CalculateBackoff は連続失敗回数に基づいて指数バックオフ遅延を計算する。
// base から2倍ずつ増加し、最大10分。
func CalculateBackoff(base time.Duration, consecutiveErrors int) time.Duration {
	delay := base
	for i := 0; i < consecutiveErrors; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	if delay > maxBackoff {
		return maxBackoff
	}
	return delay
}
