// Package entitlement содержит движок триала: чистую функцию решения
// Allow/Deny и применение расхода квоты к состоянию пользователя.
// Последовательность "прочитать-решить-записать" для одного пользователя
// сериализуется мьютексом на пользователя; блокировка держится только
// на время решения и записи, но не на время генерации контента.
package entitlement

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dreamgf-ru/companion-bot/internal/config"
	"github.com/dreamgf-ru/companion-bot/internal/lib/sl"
	"github.com/dreamgf-ru/companion-bot/internal/models"
)

// Reason причина отказа, по ней подбирается сообщение пользователю.
type Reason string

const (
	ReasonTrialExhausted Reason = "trial_exhausted"
	ReasonPhotoQuota     Reason = "photo_quota_exhausted"
	ReasonVoiceQuota     Reason = "voice_quota_exhausted"
	ReasonDailyPhotoCap  Reason = "daily_photo_limit"
	ReasonBanned         Reason = "banned"
)

// DenyMessages фиксированные тексты отказов. Пользователь никогда
// не видит сырой текст ошибки.
var DenyMessages = map[Reason]string{
	ReasonTrialExhausted: "❌ Триал закончился, котёнок 😘\n" +
		"Хочешь безлимит + кастом фото каждый день?\n" +
		"/vip — 990 руб/мес (первые 100 человек — 495 руб со скидкой 50%)",
	ReasonPhotoQuota: "📸 Одно фото в триале, милый 😏\n" +
		"Хочешь сколько угодно? Стань VIP!\n/vip",
	ReasonVoiceQuota: "🔊 Один голос в триале, красавчик 🥰\n" +
		"VIP говорит каждый раз + шлёт фотки без водяного знака\n/vip",
	ReasonDailyPhotoCap: "Без VIP только 3 фото в день! /vip",
	ReasonBanned:        "Извини, доступ к боту закрыт 😔",
}

// Decision результат проверки квоты.
type Decision struct {
	Allowed bool
	Reason  Reason
}

// Message возвращает текст отказа для пользователя.
func (d Decision) Message() string {
	return DenyMessages[d.Reason]
}

func allow() Decision { return Decision{Allowed: true} }

func deny(r Reason) Decision { return Decision{Allowed: false, Reason: r} }

// Evaluate чистая функция решения по состоянию пользователя и типу
// запроса. Счетчики здесь не трогаются.
func Evaluate(u *models.User, kind models.RequestKind, now time.Time) Decision {
	// Подписчики без лимитов, истечение — ленивый предикат.
	if u.IsVIP(now) {
		return allow()
	}
	// Самое первое обращение разрешается независимо от типа.
	if u.IsFirstInteraction() {
		return allow()
	}
	if u.TrialMessages >= config.TrialMessageLimit {
		return deny(ReasonTrialExhausted)
	}
	if kind == models.RequestPhoto && u.TrialPhotoUsed {
		return deny(ReasonPhotoQuota)
	}
	if kind == models.RequestVoice && u.TrialVoiceUsed {
		return deny(ReasonVoiceQuota)
	}
	return allow()
}

// UserRepository методы хранилища, нужные движку. Поля триала пишет
// только этот пакет.
type UserRepository interface {
	GetOrCreateUser(ctx context.Context, id int64, username, firstName string) (*models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	UpdateTrialState(ctx context.Context, u *models.User) error
	TouchActivity(ctx context.Context, userID int64) error
}

// PhotoCounter суточный счетчик фото в кеше.
type PhotoCounter interface {
	GetPhotoCounter(ctx context.Context, userID int64) (int64, error)
	IncrementPhotoCounter(ctx context.Context, userID int64) (int64, error)
}

// lockStripes число полос блокировок. Фиксированный набор вместо
// карты "мьютекс на пользователя": память не растет с числом когда-либо
// виденных пользователей, а ложное совпадение полосы лишь ненадолго
// сериализует двух посторонних пользователей.
const lockStripes = 256

// Service применяет решения движка к состоянию пользователя.
type Service struct {
	repo            UserRepository
	photos          PhotoCounter
	log             *slog.Logger
	dailyPhotoLimit int

	locks [lockStripes]sync.Mutex
}

// New создает движок квот.
func New(repo UserRepository, photos PhotoCounter, dailyPhotoLimit int, log *slog.Logger) *Service {
	return &Service{
		repo:            repo,
		photos:          photos,
		log:             log,
		dailyPhotoLimit: dailyPhotoLimit,
	}
}

func (s *Service) userLock(userID int64) *sync.Mutex {
	return &s.locks[uint64(userID)%lockStripes]
}

// Reservation зарезервированный слот квоты. Слот резервируется до
// генерации контента: если генерация не удалась или истек таймаут,
// Release возвращает расход обратно и попытка не стоит пользователю
// ничего. Commit фиксирует расход после успешной доставки.
type Reservation struct {
	svc  *Service
	user *models.User
	kind models.RequestKind

	// Что именно применила эта резервация, для точного отката.
	tookMessage   bool
	setPhotoUsed  bool
	setVoiceUsed  bool
	setTrialEnded bool
	settled       bool
}

// User возвращает состояние пользователя на момент резервирования.
func (r *Reservation) User() *models.User { return r.user }

// Reserve проверяет квоту и при разрешении атомарно применяет расход.
// Ошибка записи состояния — это отказ, а не разрешение: пользователь
// не должен получить контент, расход которого не записан.
func (s *Service) Reserve(ctx context.Context, userID int64, username, firstName string, kind models.RequestKind) (*Reservation, Decision, error) {
	const op = "entitlement.Reserve"

	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	u, err := s.repo.GetOrCreateUser(ctx, userID, username, firstName)
	if err != nil {
		return nil, Decision{}, fmt.Errorf("%s: %w", op, err)
	}
	if u.Banned {
		return nil, deny(ReasonBanned), nil
	}

	now := time.Now()
	d := Evaluate(u, kind, now)
	if !d.Allowed {
		return nil, d, nil
	}

	if u.IsVIP(now) {
		// Подписчик: счетчики триала не трогаются, только активность.
		if err := s.repo.TouchActivity(ctx, userID); err != nil {
			s.log.Warn("failed to touch activity", sl.UserID(userID), sl.Err(err))
		}
		return &Reservation{svc: s, user: u, kind: kind, settled: false}, d, nil
	}

	// Суточная квота фото для не-VIP, независимая от триального
	// одноразового фото.
	if kind == models.RequestPhoto {
		count, err := s.photos.GetPhotoCounter(ctx, userID)
		if err != nil {
			s.log.Warn("failed to read photo counter, treating as zero", sl.UserID(userID), sl.Err(err))
			count = 0
		}
		if count >= int64(s.dailyPhotoLimit) {
			return nil, deny(ReasonDailyPhotoCap), nil
		}
	}

	res := &Reservation{svc: s, user: u, kind: kind}

	u.TrialMessages++
	res.tookMessage = true
	if kind == models.RequestPhoto && !u.TrialPhotoUsed {
		u.TrialPhotoUsed = true
		res.setPhotoUsed = true
	}
	if kind == models.RequestVoice && !u.TrialVoiceUsed {
		u.TrialVoiceUsed = true
		res.setVoiceUsed = true
	}
	if !u.TrialEnded &&
		(u.TrialMessages >= config.TrialMessageLimit || (u.TrialPhotoUsed && u.TrialVoiceUsed)) {
		u.TrialEnded = true
		res.setTrialEnded = true
	}

	if err := s.repo.UpdateTrialState(ctx, u); err != nil {
		return nil, Decision{}, fmt.Errorf("%s: %w", op, err)
	}
	return res, d, nil
}

// Commit фиксирует расход после успешной генерации: для фото
// увеличивает суточный счетчик (VIP тоже считается, но не ограничен).
func (r *Reservation) Commit(ctx context.Context) {
	if r.settled {
		return
	}
	r.settled = true
	if r.kind == models.RequestPhoto {
		if _, err := r.svc.photos.IncrementPhotoCounter(ctx, r.user.ID); err != nil {
			r.svc.log.Warn("failed to increment photo counter", sl.UserID(r.user.ID), sl.Err(err))
		}
	}
}

// Release возвращает зарезервированный слот после неудачной генерации.
// Откатываются ровно те изменения, которые применила эта резервация:
// состояние перечитывается под блокировкой, чтобы не затереть
// параллельно примененный расход.
func (r *Reservation) Release(ctx context.Context) error {
	const op = "entitlement.Release"
	if r.settled {
		return nil
	}
	r.settled = true
	if !r.tookMessage {
		// VIP-слот ничего не расходовал.
		return nil
	}

	mu := r.svc.userLock(r.user.ID)
	mu.Lock()
	defer mu.Unlock()

	u, err := r.svc.repo.GetUser(ctx, r.user.ID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if u.TrialMessages > 0 {
		u.TrialMessages--
	}
	if r.setPhotoUsed {
		u.TrialPhotoUsed = false
	}
	if r.setVoiceUsed {
		u.TrialVoiceUsed = false
	}
	if r.setTrialEnded {
		u.TrialEnded = false
	}
	if err := r.svc.repo.UpdateTrialState(ctx, u); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// PhotoCountToday информационный счетчик фото за сутки.
func (s *Service) PhotoCountToday(ctx context.Context, userID int64) int64 {
	count, err := s.photos.GetPhotoCounter(ctx, userID)
	if err != nil {
		s.log.Warn("failed to read photo counter", sl.UserID(userID), sl.Err(err))
		return 0
	}
	return count
}
