package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-scheduler-api/internal/models"
	"github.com/noah-isme/tutor-scheduler-api/internal/repository"
	"github.com/noah-isme/tutor-scheduler-api/pkg/clock"
	"github.com/noah-isme/tutor-scheduler-api/pkg/retry"
)

// memStore is an in-memory stand-in for the Postgres schema. Transactions are
// serialized and rolled back by snapshot; lesson and slot inserts enforce the same
// overlap and occurrence uniqueness the database constraints do.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex
	seq  int

	settings     map[string]models.TeacherSettings
	settingsErr  map[string]error
	roster       map[string]map[string]bool
	availability map[string][]models.TeacherAvailability
	blocked      []models.BlockedTime
	lessons      map[string]models.Lesson
	slots        map[string]models.RecurringSlot
	subs         map[string]models.SlotSubscription
	billings     map[string]models.MonthlyBilling
}

func newMemStore() *memStore {
	return &memStore{
		settings:     map[string]models.TeacherSettings{},
		settingsErr:  map[string]error{},
		roster:       map[string]map[string]bool{},
		availability: map[string][]models.TeacherAvailability{},
		lessons:      map[string]models.Lesson{},
		slots:        map[string]models.RecurringSlot{},
		subs:         map[string]models.SlotSubscription{},
		billings:     map[string]models.MonthlyBilling{},
	}
}

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *memStore) addTeacher(id, tz string, students ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[id] = models.TeacherSettings{TeacherID: id, Timezone: tz, BookingHorizonDays: 90}
	s.roster[id] = map[string]bool{}
	for _, st := range students {
		s.roster[id][st] = true
	}
}

func (s *memStore) addAvailability(teacherID string, day int, start, end string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.availability[teacherID] = append(s.availability[teacherID], models.TeacherAvailability{
		ID: s.nextID("avail"), TeacherID: teacherID, DayOfWeek: day, StartTime: start, EndTime: end, IsActive: true,
	})
}

func (s *memStore) addBlocked(teacherID string, start, end time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocked = append(s.blocked, models.BlockedTime{ID: s.nextID("blocked"), TeacherID: teacherID, StartTime: start, EndTime: end})
}

func (s *memStore) snapshot() *memStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := &memStore{
		seq:          s.seq,
		blocked:      append([]models.BlockedTime(nil), s.blocked...),
		lessons:      make(map[string]models.Lesson, len(s.lessons)),
		slots:        make(map[string]models.RecurringSlot, len(s.slots)),
		subs:         make(map[string]models.SlotSubscription, len(s.subs)),
		billings:     make(map[string]models.MonthlyBilling, len(s.billings)),
		availability: make(map[string][]models.TeacherAvailability, len(s.availability)),
	}
	for k, v := range s.lessons {
		cp.lessons[k] = v
	}
	for k, v := range s.slots {
		cp.slots[k] = v
	}
	for k, v := range s.subs {
		cp.subs[k] = v
	}
	for k, v := range s.billings {
		cp.billings[k] = v
	}
	for k, v := range s.availability {
		cp.availability[k] = append([]models.TeacherAvailability(nil), v...)
	}
	return cp
}

func (s *memStore) restore(cp *memStore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocked = cp.blocked
	s.lessons = cp.lessons
	s.slots = cp.slots
	s.subs = cp.subs
	s.billings = cp.billings
	s.availability = cp.availability
}

func (s *memStore) lessonsOfSlot(slotID string) []models.Lesson {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Lesson
	for _, l := range s.lessons {
		if l.RecurringSlotID != nil && *l.RecurringSlotID == slotID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out
}

func (s *memStore) lesson(id string) models.Lesson {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lessons[id]
}

func (s *memStore) billingFor(slotID, month string) (models.MonthlyBilling, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.SlotID != slotID {
			continue
		}
		if b, ok := s.billings[sub.ID+"|"+month]; ok {
			return b, true
		}
	}
	return models.MonthlyBilling{}, false
}

func (s *memStore) setBilling(slotID, month string, mutate func(*models.MonthlyBilling)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.SlotID != slotID {
			continue
		}
		key := sub.ID + "|" + month
		b := s.billings[key]
		mutate(&b)
		s.billings[key] = b
	}
}

// memTx serializes transactions and rolls back on error.
type memTx struct{ s *memStore }

func (t memTx) WithinTx(ctx context.Context, fn func(exec sqlx.ExtContext) error) error {
	t.s.txMu.Lock()
	defer t.s.txMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := t.s.snapshot()
	if err := fn(nil); err != nil {
		t.s.restore(cp)
		return err
	}
	return nil
}

type memTeachers struct{ s *memStore }

func (r memTeachers) GetSettings(_ context.Context, _ sqlx.ExtContext, teacherID string) (*models.TeacherSettings, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.settingsErr[teacherID]; err != nil {
		return nil, err
	}
	settings, ok := r.s.settings[teacherID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &settings, nil
}

func (r memTeachers) IsRostered(_ context.Context, _ sqlx.ExtContext, teacherID, studentID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.roster[teacherID][studentID], nil
}

type memAvailability struct{ s *memStore }

func (r memAvailability) ListByTeacher(_ context.Context, _ sqlx.ExtContext, teacherID string) ([]models.TeacherAvailability, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]models.TeacherAvailability(nil), r.s.availability[teacherID]...), nil
}

func (r memAvailability) ReplaceForTeacher(_ context.Context, _ sqlx.ExtContext, teacherID string, windows []models.TeacherAvailability) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.availability[teacherID] = append([]models.TeacherAvailability(nil), windows...)
	return nil
}

type memBlocked struct{ s *memStore }

func (r memBlocked) ListOverlapping(_ context.Context, _ sqlx.ExtContext, teacherID string, from, to time.Time) ([]models.BlockedTime, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.BlockedTime
	for _, b := range r.s.blocked {
		if b.TeacherID == teacherID && b.StartTime.Before(to) && b.EndTime.After(from) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r memBlocked) Create(_ context.Context, _ sqlx.ExtContext, blocked *models.BlockedTime) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	blocked.ID = r.s.nextID("blocked")
	r.s.blocked = append(r.s.blocked, *blocked)
	return nil
}

func (r memBlocked) Delete(_ context.Context, _ sqlx.ExtContext, teacherID, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, b := range r.s.blocked {
		if b.ID == id && b.TeacherID == teacherID {
			r.s.blocked = append(r.s.blocked[:i], r.s.blocked[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

type memLessons struct{ s *memStore }

func (r memLessons) conflict(lesson *models.Lesson) error {
	for _, l := range r.s.lessons {
		if l.TeacherID != lesson.TeacherID || l.Status == models.LessonStatusCancelled {
			continue
		}
		if l.StartsAt.Before(lesson.EndsAt) && lesson.StartsAt.Before(l.EndsAt) {
			return &repository.ConstraintError{Constraint: "lessons_no_overlap", Err: fmt.Errorf("overlap with %s", l.ID)}
		}
	}
	if lesson.RecurringSlotID != nil {
		for _, l := range r.s.lessons {
			if l.RecurringSlotID != nil && *l.RecurringSlotID == *lesson.RecurringSlotID && l.StartsAt.Equal(lesson.StartsAt) {
				return &repository.ConstraintError{Constraint: "lessons_slot_occurrence", Err: fmt.Errorf("duplicate occurrence")}
			}
		}
	}
	return nil
}

func (r memLessons) prepare(lesson *models.Lesson) {
	lesson.ID = r.s.nextID("lesson")
	lesson.EndsAt = lesson.StartsAt.Add(time.Duration(lesson.Duration) * time.Minute)
	if lesson.Version == 0 {
		lesson.Version = 1
	}
	if lesson.Status == "" {
		lesson.Status = models.LessonStatusScheduled
	}
}

func (r memLessons) Insert(_ context.Context, _ sqlx.ExtContext, lesson *models.Lesson) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	lesson.EndsAt = lesson.StartsAt.Add(time.Duration(lesson.Duration) * time.Minute)
	if err := r.conflict(lesson); err != nil {
		return err
	}
	r.prepare(lesson)
	r.s.lessons[lesson.ID] = *lesson
	return nil
}

func (r memLessons) InsertIfAbsent(_ context.Context, _ sqlx.ExtContext, lesson *models.Lesson) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	lesson.EndsAt = lesson.StartsAt.Add(time.Duration(lesson.Duration) * time.Minute)
	if r.conflict(lesson) != nil {
		return false, nil
	}
	r.prepare(lesson)
	r.s.lessons[lesson.ID] = *lesson
	return true, nil
}

func (r memLessons) FindOverlapping(_ context.Context, _ sqlx.ExtContext, teacherID string, start, end time.Time) ([]models.Lesson, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Lesson
	for _, l := range r.s.lessons {
		if l.TeacherID == teacherID && l.Status != models.LessonStatusCancelled && l.StartsAt.Before(end) && l.EndsAt.After(start) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r memLessons) FindByID(_ context.Context, _ sqlx.ExtContext, id string) (*models.Lesson, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.lessons[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &l, nil
}

func (r memLessons) ListSlotOccurrences(_ context.Context, _ sqlx.ExtContext, teacherID, slotID string, from, to time.Time) ([]time.Time, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []time.Time
	for _, l := range r.s.lessons {
		if l.TeacherID == teacherID && l.RecurringSlotID != nil && *l.RecurringSlotID == slotID && !l.StartsAt.Before(from) && l.StartsAt.Before(to) {
			out = append(out, l.StartsAt)
		}
	}
	return out, nil
}

func (r memLessons) FindSlotOccurrence(_ context.Context, _ sqlx.ExtContext, teacherID, slotID string, start time.Time) (*models.Lesson, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, l := range r.s.lessons {
		if l.TeacherID == teacherID && l.RecurringSlotID != nil && *l.RecurringSlotID == slotID && l.StartsAt.Equal(start) {
			return &l, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r memLessons) UpdateOptimistic(_ context.Context, _ sqlx.ExtContext, id string, expectedVersion int, patch models.LessonPatch) (*models.Lesson, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.lessons[id]
	if !ok || l.Version != expectedVersion {
		return nil, sql.ErrNoRows
	}
	if patch.Notes != nil {
		l.Notes = *patch.Notes
	}
	if patch.Homework != nil {
		l.Homework = *patch.Homework
	}
	if patch.Status != nil {
		l.Status = *patch.Status
	}
	l.Version++
	r.s.lessons[id] = l
	return &l, nil
}

func (r memLessons) CancelFutureBySlot(_ context.Context, _ sqlx.ExtContext, slotID string, from time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, l := range r.s.lessons {
		if l.RecurringSlotID != nil && *l.RecurringSlotID == slotID && l.Status == models.LessonStatusScheduled && !l.StartsAt.Before(from) {
			l.Status = models.LessonStatusCancelled
			l.Version++
			r.s.lessons[id] = l
			n++
		}
	}
	return n, nil
}

func (r memLessons) ListByTeacher(_ context.Context, filter models.LessonFilter) ([]models.Lesson, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Lesson
	for _, l := range r.s.lessons {
		if l.TeacherID != filter.TeacherID {
			continue
		}
		if !filter.From.IsZero() && l.StartsAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !l.StartsAt.Before(filter.To) {
			continue
		}
		if filter.Status != "" && l.Status != filter.Status {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

type memSlots struct{ s *memStore }

func (r memSlots) Create(_ context.Context, _ sqlx.ExtContext, slot *models.RecurringSlot) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if slot.Status == models.SlotStatusActive {
		start, _ := models.ParseClock(slot.StartTime)
		for _, other := range r.s.slots {
			if other.TeacherID != slot.TeacherID || other.DayOfWeek != slot.DayOfWeek || other.Status != models.SlotStatusActive {
				continue
			}
			otherStart, _ := models.ParseClock(other.StartTime)
			if start < otherStart+other.Duration && otherStart < start+slot.Duration {
				return &repository.ConstraintError{Constraint: "recurring_slots_no_overlap", Err: fmt.Errorf("overlap with %s", other.ID)}
			}
		}
	}
	if slot.ID == "" {
		slot.ID = r.s.nextID("slot")
	}
	r.s.slots[slot.ID] = *slot
	return nil
}

func (r memSlots) FindByID(_ context.Context, _ sqlx.ExtContext, id string) (*models.RecurringSlot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	slot, ok := r.s.slots[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &slot, nil
}

func (r memSlots) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.RecurringSlot, error) {
	return r.FindByID(ctx, exec, id)
}

func (r memSlots) ListActive(_ context.Context) ([]models.RecurringSlot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.RecurringSlot
	for _, slot := range r.s.slots {
		if slot.Status == models.SlotStatusActive {
			out = append(out, slot)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TeacherID != out[j].TeacherID {
			return out[i].TeacherID < out[j].TeacherID
		}
		return out[i].StartDate.Before(out[j].StartDate)
	})
	return out, nil
}

func (r memSlots) ListActiveByTeacherDay(_ context.Context, _ sqlx.ExtContext, teacherID string, dayOfWeek int) ([]models.RecurringSlot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.RecurringSlot
	for _, slot := range r.s.slots {
		if slot.TeacherID == teacherID && slot.DayOfWeek == dayOfWeek && slot.Status == models.SlotStatusActive {
			out = append(out, slot)
		}
	}
	return out, nil
}

func (r memSlots) MarkCancelled(_ context.Context, _ sqlx.ExtContext, id string, cancelledAt time.Time, reason *string, refundCents int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	slot, ok := r.s.slots[id]
	if !ok || slot.Status != models.SlotStatusActive {
		return sql.ErrNoRows
	}
	slot.Status = models.SlotStatusCancelled
	slot.CancelledAt = &cancelledAt
	slot.CancelReason = reason
	slot.RefundCents = refundCents
	r.s.slots[id] = slot
	return nil
}

type memSubs struct{ s *memStore }

func (r memSubs) Create(_ context.Context, _ sqlx.ExtContext, sub *models.SlotSubscription) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub.ID = r.s.nextID("sub")
	r.s.subs[sub.ID] = *sub
	return nil
}

func (r memSubs) CancelActiveBySlot(_ context.Context, _ sqlx.ExtContext, slotID string, at time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, sub := range r.s.subs {
		if sub.SlotID == slotID && sub.Status == models.SubscriptionStatusActive {
			sub.Status = models.SubscriptionStatusCancelled
			sub.CancelledAt = &at
			sub.PeriodEnd = &at
			r.s.subs[id] = sub
			n++
		}
	}
	return n, nil
}

func (r memSubs) activeSub(slotID string) (models.SlotSubscription, bool) {
	for _, sub := range r.s.subs {
		if sub.SlotID == slotID && sub.Status == models.SubscriptionStatusActive {
			return sub, true
		}
	}
	return models.SlotSubscription{}, false
}

func (r memSubs) FindBilling(_ context.Context, _ sqlx.ExtContext, slotID, month string) (*models.MonthlyBilling, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.activeSub(slotID)
	if !ok {
		return nil, nil
	}
	b, ok := r.s.billings[sub.ID+"|"+month]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (r memSubs) IncrementExpected(_ context.Context, _ sqlx.ExtContext, slotID, month string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.activeSub(slotID)
	if !ok {
		return nil
	}
	key := sub.ID + "|" + month
	b, ok := r.s.billings[key]
	if !ok {
		b = models.MonthlyBilling{ID: r.s.nextID("billing"), SubscriptionID: sub.ID, Month: month, Status: models.BillingStatusPending}
	}
	b.ExpectedLessons++
	r.s.billings[key] = b
	return nil
}

func (r memSubs) IncrementActual(_ context.Context, _ sqlx.ExtContext, slotID, month string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, sub := range r.s.subs {
		if sub.SlotID != slotID {
			continue
		}
		key := sub.ID + "|" + month
		if b, ok := r.s.billings[key]; ok {
			b.ActualLessons++
			r.s.billings[key] = b
		}
	}
	return nil
}

type notifierStub struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (n *notifierStub) Notify(note models.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
}

func (n *notifierStub) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

var (
	// Monday 2025-01-06 08:00 UTC.
	fixtureNow = time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)

	testPolicies = BookingPolicies{
		Write: retry.Policy{Name: "test", MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
		Read:  retry.None,
	}

	teacherActor = models.Actor{ID: "t-1", Role: models.RoleTeacher}
	studentActor = models.Actor{ID: "s-1", Role: models.RoleStudent}
	adminActor   = models.Actor{ID: "admin", Role: models.RoleAdmin}
)

// schedulerFixture wires the services over one memStore: teacher t-1 in UTC with
// students s-1 and s-2, available Mondays 13:00-17:00.
type schedulerFixture struct {
	store      *memStore
	clock      *clock.Fixed
	notifier   *notifierStub
	creator    *LessonCreator
	bookings   *BookingService
	recurring  *RecurringSlotService
	generation *LessonGenerationService
	lessons    *LessonService
}

func newSchedulerFixture(t *testing.T) *schedulerFixture {
	t.Helper()
	store := newMemStore()
	store.addTeacher("t-1", "UTC", "s-1", "s-2")
	store.addAvailability("t-1", int(time.Monday), "13:00", "17:00")

	clk := &clock.Fixed{At: fixtureNow, Loc: time.UTC}
	notes := &notifierStub{}
	tx := memTx{s: store}
	teachers := memTeachers{s: store}
	lessons := memLessons{s: store}
	subs := memSubs{s: store}
	slots := memSlots{s: store}

	detector := NewConflictDetector(memAvailability{s: store}, memBlocked{s: store}, lessons, clk, 90, 0)
	creator := NewLessonCreator(detector, lessons, subs, tx, clk, zap.NewNop())

	return &schedulerFixture{
		store:     store,
		clock:     clk,
		notifier:  notes,
		creator:   creator,
		bookings:  NewBookingService(teachers, creator, notes, nil, clk, testPolicies, time.Second, nil, nil),
		recurring: NewRecurringSlotService(slots, subs, lessons, teachers, creator, tx, nil, notes, nil, clk, RecurringSlotConfig{InitialWeeks: 4, StoreTimeout: time.Second, Policies: testPolicies}, nil, nil),
		generation: NewLessonGenerationService(slots, lessons, memAvailability{s: store}, memBlocked{s: store}, teachers, creator, nil, clk,
			LessonGenerationConfig{HorizonWeeks: 12, StoreTimeout: time.Second, Policies: testPolicies}, nil),
		lessons: NewLessonService(lessons, slots, subs, teachers, tx, nil, clk, testPolicies, time.Second, nil, nil),
	}
}

func utc(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}
