// Package session drives one meal-logging flow from capture to a confirmed meal.
//
//	Idle -> Capturing -> Estimating -> Reviewing -> Confirmed (back to Idle)
//	                                    |  ^
//	                                    v  |
//	                          Editing -> Reestimating
//
// Only one estimate may be in flight. While the estimator runs the session is
// in Estimating or Reestimating and every other operation returns ErrBusy.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"nutrilog"
	"nutrilog/estimation"
)

var (
	ErrBusy              = errors.New("an estimate is already in progress")
	ErrInvalidTransition = errors.New("invalid session transition")
)

type State int

const (
	Idle State = iota
	Capturing
	Estimating
	Reviewing
	Editing
	Reestimating
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Capturing:
		return "Capturing"
	case Estimating:
		return "Estimating"
	case Reviewing:
		return "Reviewing"
	case Editing:
		return "Editing"
	case Reestimating:
		return "Reestimating"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) busy() bool {
	return s == Estimating || s == Reestimating
}

// Outcome records how the last flow ended.
type Outcome int

const (
	OutcomeNone Outcome = iota
	Confirmed
	Discarded
)

func (o Outcome) String() string {
	switch o {
	case Confirmed:
		return "Confirmed"
	case Discarded:
		return "Discarded"
	default:
		return "None"
	}
}

type Estimator interface {
	Estimate(ctx context.Context, in estimation.Input) (nutrilog.NutritionEstimate, error)
}

// MealSink receives confirmed meals. It is the only way a meal reaches the ledger.
type MealSink interface {
	RecordMeal(ctx context.Context, meal nutrilog.Meal) error
}

type Options struct {
	NewID func() string
	Now   func() time.Time
}

type Session struct {
	estimator Estimator
	sink      MealSink
	newID     func() string
	now       func() time.Time

	mu       sync.Mutex
	state    State
	estimate *nutrilog.NutritionEstimate
	draft    string
	outcome  Outcome
}

func New(estimator Estimator, sink MealSink, opts Options) *Session {
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Session{
		estimator: estimator,
		sink:      sink,
		newID:     opts.NewID,
		now:       opts.Now,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) LastOutcome() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

// Estimate returns a copy of the working estimate, if any.
func (s *Session) Estimate() (nutrilog.NutritionEstimate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.estimate == nil {
		return nutrilog.NutritionEstimate{}, false
	}
	return copyEstimate(*s.estimate), true
}

// Draft returns the correction text being edited.
func (s *Session) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// Begin starts a capture from Idle.
func (s *Session) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.busy() {
		return ErrBusy
	}
	if s.state != Idle {
		return s.invalid("begin")
	}
	s.state = Capturing
	return nil
}

// Submit hands the captured input to the estimator. Manual text entry may
// submit straight from Idle. On failure the session returns to Idle with
// nothing retained.
func (s *Session) Submit(ctx context.Context, in estimation.Input) (nutrilog.NutritionEstimate, error) {
	s.mu.Lock()
	if s.state.busy() {
		s.mu.Unlock()
		return nutrilog.NutritionEstimate{}, ErrBusy
	}
	if s.state != Idle && s.state != Capturing {
		err := s.invalid("submit")
		s.mu.Unlock()
		return nutrilog.NutritionEstimate{}, err
	}
	s.state = Estimating
	s.mu.Unlock()

	est, err := s.estimator.Estimate(ctx, in)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		slog.Warn("SESSION: Estimate failed, discarding capture", "error", err)
		s.reset(Discarded)
		return nutrilog.NutritionEstimate{}, err
	}

	s.estimate = &est
	s.state = Reviewing
	slog.Info("SESSION: Reviewing estimate", "name", est.Name, "calories", est.Calories)
	return copyEstimate(est), nil
}

// Edit opens a free-text correction of the working estimate. The draft starts
// as "name: item, item" so quantities can be corrected in place.
func (s *Session) Edit() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.busy() {
		return "", ErrBusy
	}
	if s.state != Reviewing {
		return "", s.invalid("edit")
	}
	s.state = Editing
	s.draft = editDraft(*s.estimate)
	return s.draft, nil
}

func editDraft(est nutrilog.NutritionEstimate) string {
	if len(est.Items) == 0 {
		return est.Name
	}
	return est.Name + ": " + strings.Join(est.Items, ", ")
}

// CancelEdit returns to Reviewing without touching the estimate.
func (s *Session) CancelEdit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.busy() {
		return ErrBusy
	}
	if s.state != Editing {
		return s.invalid("cancel edit")
	}
	s.state = Reviewing
	s.draft = ""
	return nil
}

// Recalculate re-estimates from the corrected text only. Success replaces the
// working estimate; failure keeps the previous one untouched and leaves the
// session in Editing so the correction can be retried.
func (s *Session) Recalculate(ctx context.Context, text string) (nutrilog.NutritionEstimate, error) {
	s.mu.Lock()
	if s.state.busy() {
		s.mu.Unlock()
		return nutrilog.NutritionEstimate{}, ErrBusy
	}
	if s.state != Editing {
		err := s.invalid("recalculate")
		s.mu.Unlock()
		return nutrilog.NutritionEstimate{}, err
	}
	if strings.TrimSpace(text) == "" {
		s.mu.Unlock()
		return nutrilog.NutritionEstimate{}, fmt.Errorf("%w: correction text is empty", nutrilog.ErrInvalidInput)
	}
	s.state = Reestimating
	s.draft = text
	s.mu.Unlock()

	est, err := s.estimator.Estimate(ctx, estimation.Input{Text: text})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		slog.Warn("SESSION: Recalculation failed, keeping previous estimate", "error", err)
		s.state = Editing
		return nutrilog.NutritionEstimate{}, err
	}

	s.estimate = &est
	s.draft = ""
	s.state = Reviewing
	slog.Info("SESSION: Estimate recalculated", "name", est.Name, "calories", est.Calories)
	return copyEstimate(est), nil
}

// Confirm turns the working estimate into a Meal and hands it to the sink.
// With no working estimate it is a no-op and reports false. If the sink fails
// the estimate is kept and the session stays where it was.
func (s *Session) Confirm(ctx context.Context) (nutrilog.Meal, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.busy() {
		return nutrilog.Meal{}, false, ErrBusy
	}
	if s.estimate == nil {
		return nutrilog.Meal{}, false, nil
	}
	if s.state != Reviewing {
		return nutrilog.Meal{}, false, s.invalid("confirm")
	}

	meal := NewMeal(s.newID(), s.now(), *s.estimate)
	if err := s.sink.RecordMeal(ctx, meal); err != nil {
		slog.Error("SESSION: Failed to record meal", "meal_id", meal.ID, "error", err)
		return nutrilog.Meal{}, false, fmt.Errorf("recording meal: %w", err)
	}

	slog.Info("SESSION: Meal confirmed", "meal_id", meal.ID, "name", meal.Name)
	s.reset(Confirmed)
	return meal, true, nil
}

// Discard drops the working estimate without touching the ledger.
func (s *Session) Discard() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.busy() {
		return ErrBusy
	}
	if s.state == Idle {
		return nil
	}
	s.reset(Discarded)
	return nil
}

func (s *Session) reset(outcome Outcome) {
	s.state = Idle
	s.estimate = nil
	s.draft = ""
	s.outcome = outcome
}

func (s *Session) invalid(op string) error {
	return fmt.Errorf("%w: cannot %s while %s", ErrInvalidTransition, op, s.state)
}

// NewMeal materializes a confirmed estimate.
func NewMeal(id string, ts time.Time, est nutrilog.NutritionEstimate) nutrilog.Meal {
	return nutrilog.Meal{
		ID:         id,
		Timestamp:  ts,
		Name:       est.Name,
		Calories:   est.Calories,
		Macros:     est.Macros,
		Items:      append([]string(nil), est.Items...),
		Confidence: est.Confidence,
	}
}

func copyEstimate(e nutrilog.NutritionEstimate) nutrilog.NutritionEstimate {
	e.Items = append([]string(nil), e.Items...)
	return e
}
