package locker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"smart-locker-backend/config"
	"smart-locker-backend/internal/hardware"
	"smart-locker-backend/internal/model"
	"smart-locker-backend/internal/store"
)

// Hardware is the slice of hardware.Router the lifecycle depends on.
type Hardware interface {
	Actuate(ctx context.Context, id int64) error
	ReadSensor(ctx context.Context, id int64) (bool, error)
	ReadAll(ctx context.Context) (map[int64]bool, error)
	Layout() *hardware.Layout
	Apply(layout *hardware.Layout) error
	ForceClose(id int64) error
	Simulated() bool
	FallbackReason() string
}

// DoorWatcher is told about every locker whose door was just released.
type DoorWatcher interface {
	Dispatch(lockerID int64)
}

// Service runs the deposit/pickup state machine of every locker.
type Service struct {
	store   store.Store
	hw      Hardware
	cfg     config.CodesConfig
	logger  *slog.Logger
	watcher DoorWatcher

	now     func() time.Time
	codeGen func(n int) (string, error)

	locks    keyedMutex
	configMu sync.Mutex
}

// NewService wires the lifecycle to its persistence and hardware.
func NewService(s store.Store, hw Hardware, cfg config.CodesConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   s,
		hw:      hw,
		cfg:     cfg,
		logger:  logger.With("component", "locker"),
		now:     func() time.Time { return time.Now().UTC() },
		codeGen: randomDigits,
		locks:   keyedMutex{locks: make(map[int64]*sync.Mutex)},
	}
}

// SetWatcher registers the door-close watcher. Must be called before serving.
func (s *Service) SetWatcher(w DoorWatcher) {
	s.watcher = w
}

// DepositResult is returned to the courier.
type DepositResult struct {
	LockerID  int64     `json:"locker_id"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Deposit opens an empty locker and issues a fresh one-time code. The locker
// is actuated before anything is persisted: if actuation fails the locker
// stays empty and no code exists.
func (s *Service) Deposit(ctx context.Context, id int64) (*DepositResult, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	l, err := s.getLocker(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.Occupied {
		return nil, ErrLockerOccupied
	}

	code, err := s.newCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("deposit locker %d: %w", id, err)
	}

	if err := s.hw.Actuate(ctx, id); err != nil {
		s.logger.Error("actuation failed, deposit not recorded", "locker", id, "error", err)
		return nil, fmt.Errorf("deposit locker %d: %w", id, err)
	}

	now := s.now()
	expiresAt := now.Add(s.cfg.TTL)
	if err := s.store.OccupyLocker(ctx, id, code, now, expiresAt); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrConcurrentModification
		}
		return nil, fmt.Errorf("deposit locker %d: %w", id, err)
	}

	s.logger.Info("parcel deposited", "locker", id, "expires_at", expiresAt)
	s.watch(id)
	return &DepositResult{LockerID: id, Code: code, ExpiresAt: expiresAt}, nil
}

// PickupResult tells the customer which locker opened.
type PickupResult struct {
	LockerID int64  `json:"locker_id"`
	Match    string `json:"match"`
}

// Pickup releases whichever locker currently holds code, checking live
// one-time codes before special codes. A one-time code is consumed; a special
// code is not.
func (s *Service) Pickup(ctx context.Context, code string) (*PickupResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrInvalidCode
	}

	l, match, err := s.store.FindLockerByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCode
	}
	if err != nil {
		return nil, fmt.Errorf("pickup: %w", err)
	}

	unlock := s.locks.lock(l.ID)
	defer unlock()

	// Re-read under the locker lock: a concurrent pickup may have consumed it.
	fresh, err := s.getLocker(ctx, l.ID)
	if err != nil {
		return nil, err
	}
	if !codeStillMatches(fresh, code, match) {
		return nil, ErrConcurrentModification
	}

	if err := s.hw.Actuate(ctx, l.ID); err != nil {
		s.logger.Error("actuation failed, pickup not recorded", "locker", l.ID, "error", err)
		return nil, fmt.Errorf("pickup locker %d: %w", l.ID, err)
	}

	now := s.now()
	switch match {
	case store.MatchOTP:
		err = s.store.ReleaseWithOTP(ctx, l.ID, code, now)
	case store.MatchSpecial:
		err = s.store.ReleaseWithSpecialCode(ctx, l.ID, code, now)
	}
	if errors.Is(err, store.ErrConflict) {
		return nil, ErrConcurrentModification
	}
	if err != nil {
		return nil, fmt.Errorf("pickup locker %d: %w", l.ID, err)
	}

	s.logger.Info("parcel picked up", "locker", l.ID, "match", match.String())
	s.watch(l.ID)
	return &PickupResult{LockerID: l.ID, Match: match.String()}, nil
}

func codeStillMatches(l *model.Locker, code string, match store.CodeMatch) bool {
	switch match {
	case store.MatchOTP:
		return l.OTPCode != nil && *l.OTPCode == code
	case store.MatchSpecial:
		return l.SpecialCode != nil && *l.SpecialCode == code
	}
	return false
}

// ReconfigureRequest rewrites one locker's wiring. A nil SpecialCode keeps the
// current one; an empty string clears it.
type ReconfigureRequest struct {
	LockerID    int64
	BackendKind string
	ActuatorPin int
	SensorPin   *int
	SpecialCode *string
}

// Reconfigure validates the new wiring against the whole fleet, swaps it into
// the hardware router and persists it. If persisting fails the router is put
// back on the previous layout.
func (s *Service) Reconfigure(ctx context.Context, req ReconfigureRequest) (*model.Locker, error) {
	s.configMu.Lock()
	defer s.configMu.Unlock()

	l, err := s.getLocker(ctx, req.LockerID)
	if err != nil {
		return nil, err
	}

	kind, err := hardware.ParseKind(req.BackendKind)
	if err != nil {
		return nil, err
	}

	special := l.SpecialCode
	if req.SpecialCode != nil {
		special, err = s.validateSpecialCode(ctx, req.LockerID, *req.SpecialCode)
		if err != nil {
			return nil, err
		}
	}

	prev := s.hw.Layout()
	next, err := prev.With(hardware.Mapping{
		Locker:      req.LockerID,
		Kind:        kind,
		ActuatorPin: req.ActuatorPin,
		SensorPin:   req.SensorPin,
	})
	if err != nil {
		return nil, err
	}
	if err := s.hw.Apply(next); err != nil {
		return nil, err
	}

	l.BackendKind = string(kind)
	l.ActuatorPin = req.ActuatorPin
	l.SensorPin = req.SensorPin
	l.SpecialCode = special
	l.UpdatedAt = s.now()
	if err := s.store.UpsertLocker(ctx, l); err != nil {
		if rbErr := s.hw.Apply(prev); rbErr != nil {
			s.logger.Error("failed to restore previous layout", "locker", req.LockerID, "error", rbErr)
		}
		return nil, fmt.Errorf("reconfigure locker %d: %w", req.LockerID, err)
	}

	s.logger.Info("locker reconfigured", "locker", req.LockerID, "backend", kind,
		"actuator_pin", req.ActuatorPin, "has_sensor", req.SensorPin != nil, "has_special_code", special != nil)
	return l, nil
}

func (s *Service) validateSpecialCode(ctx context.Context, id int64, raw string) (*string, error) {
	code := strings.TrimSpace(raw)
	if code == "" {
		return nil, nil
	}
	if len(code) > 32 {
		return nil, &hardware.ConfigurationError{Reason: "special code longer than 32 characters"}
	}
	other, _, err := s.store.FindLockerByCode(ctx, code)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return &code, nil
	case err != nil:
		return nil, fmt.Errorf("check special code: %w", err)
	case other.ID != id:
		return nil, &hardware.ConfigurationError{Reason: fmt.Sprintf("code is already in use by locker %d", other.ID)}
	}
	return &code, nil
}

// ForceClose closes a simulated door and records it.
func (s *Service) ForceClose(ctx context.Context, id int64) error {
	if _, err := s.getLocker(ctx, id); err != nil {
		return err
	}
	if err := s.hw.ForceClose(id); err != nil {
		return err
	}
	if err := s.store.SetDoorClosed(ctx, id, true); err != nil {
		return fmt.Errorf("force close locker %d: %w", id, err)
	}
	s.logger.Info("simulated door closed", "locker", id)
	return nil
}

// AuthenticateDelivery resolves a courier by PIN.
func (s *Service) AuthenticateDelivery(ctx context.Context, pin string) (*model.DeliveryUser, error) {
	pin = strings.TrimSpace(pin)
	if pin == "" {
		return nil, ErrInvalidPIN
	}
	u, err := s.store.FindDeliveryUserByPIN(ctx, pin)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidPIN
	}
	if err != nil {
		return nil, fmt.Errorf("authenticate delivery: %w", err)
	}
	return u, nil
}

func (s *Service) getLocker(ctx context.Context, id int64) (*model.Locker, error) {
	l, err := s.store.GetLocker(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrLockerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load locker %d: %w", id, err)
	}
	return l, nil
}

func (s *Service) watch(id int64) {
	if s.watcher != nil {
		s.watcher.Dispatch(id)
	}
}

// keyedMutex serialises operations on the same locker within this process.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func (k *keyedMutex) lock(id int64) func() {
	k.mu.Lock()
	m, ok := k.locks[id]
	if !ok {
		m = &sync.Mutex{}
		k.locks[id] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
