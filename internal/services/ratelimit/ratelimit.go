// Package ratelimit ограничивает частоту запросов на пользователя,
// независимо от триала и подписки.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter хранит лимитер на каждого пользователя. Записи без
// обращений вычищаются фоновым проходом, чтобы карта не росла
// бесконечно.
type Limiter struct {
	mu       sync.Mutex
	users    map[int64]*userLimiter
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
	stopOnce sync.Once
	stop     chan struct{}
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New создает лимитер: perMinute запросов в минуту на пользователя.
// Burst равен единице, то есть лимит задает минимальный интервал
// между сообщениями (60/perMinute секунд), а не бюджет на окно.
func New(perMinute int) *Limiter {
	l := &Limiter{
		users:   make(map[int64]*userLimiter),
		limit:   rate.Limit(float64(perMinute) / 60.0),
		burst:   1,
		idleTTL: 10 * time.Minute,
		stop:    make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Allow сообщает, проходит ли запрос пользователя сейчас. Отказ не
// расходует триал и не трогает состояние в базе.
func (l *Limiter) Allow(userID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	ul, ok := l.users[userID]
	if !ok {
		ul = &userLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.users[userID] = ul
	}
	ul.lastSeen = time.Now()
	return ul.limiter.Allow()
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.evictIdle()
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) evictIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := time.Now().Add(-l.idleTTL)
	for id, ul := range l.users {
		if ul.lastSeen.Before(cutoff) {
			delete(l.users, id)
		}
	}
}

// Close останавливает фоновую очистку.
func (l *Limiter) Close() {
	l.stopOnce.Do(func() { close(l.stop) })
}
