// Package tracker owns one user's persisted state: the meal and hydration
// ledgers, goal, profile, saved plans and coach transcript.
//
// Everything is loaded once in Open. Each mutation rewrites the affected
// namespace as a whole, so concurrent writers resolve last-write-wins.
package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"nutrilog"
	"nutrilog/calibration"
	"nutrilog/store"
)

// Calibrator derives a goal from a profile. calibration.Service implements it.
type Calibrator interface {
	Calibrate(ctx context.Context, p nutrilog.UserProfile) (nutrilog.UserGoal, calibration.Source, error)
}

type Options struct {
	Now func() time.Time
}

type Tracker struct {
	userID     string
	store      store.Store
	calibrator Calibrator
	now        func() time.Time

	mu        sync.RWMutex
	meals     []nutrilog.Meal
	hydration []nutrilog.HydrationEntry
	goal      nutrilog.UserGoal
	profile   *nutrilog.UserProfile
	onboarded bool
	plans     []nutrilog.MealPlan
	chat      []nutrilog.ChatMessage
}

// profileRecord is the persisted shape of the profile namespace.
type profileRecord struct {
	Profile   nutrilog.UserProfile `json:"profile"`
	Onboarded bool                 `json:"onboarded"`
}

// Summary is the day view: totals derived from the ledgers plus what remains.
type Summary struct {
	Day       time.Time            `json:"day"`
	Meals     []nutrilog.Meal      `json:"meals"`
	Totals    nutrilog.DailyTotals `json:"totals"`
	WaterML   float64              `json:"water"`
	Goal      nutrilog.UserGoal    `json:"goal"`
	Remaining nutrilog.DailyTotals `json:"remaining"`
	WaterLeft float64              `json:"waterLeft"`
}

// Open loads every namespace for userID. Missing namespaces start empty and
// the goal starts at nutrilog.DefaultGoal.
func Open(ctx context.Context, s store.Store, userID string, calibrator Calibrator, opts Options) (*Tracker, error) {
	if _, err := store.Key(store.NamespaceMeals, userID); err != nil {
		return nil, err
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	t := &Tracker{
		userID:     userID,
		store:      s,
		calibrator: calibrator,
		now:        opts.Now,
		goal:       nutrilog.DefaultGoal,
	}

	var rec *profileRecord
	loads := []struct {
		ns  string
		dst any
	}{
		{store.NamespaceMeals, &t.meals},
		{store.NamespaceHydration, &t.hydration},
		{store.NamespaceGoal, &t.goal},
		{store.NamespaceProfile, &rec},
		{store.NamespacePlans, &t.plans},
		{store.NamespaceChat, &t.chat},
	}
	for _, l := range loads {
		if err := t.load(ctx, l.ns, l.dst); err != nil {
			return nil, err
		}
	}
	if rec != nil {
		p := rec.Profile
		t.profile = &p
		t.onboarded = rec.Onboarded
	}

	slog.Info("TRACKER: Loaded user state",
		"user_id", userID,
		"meals", len(t.meals),
		"hydration_entries", len(t.hydration),
		"plans", len(t.plans),
		"onboarded", t.onboarded,
	)
	return t, nil
}

func (t *Tracker) load(ctx context.Context, ns string, dst any) error {
	key, err := store.Key(ns, t.userID)
	if err != nil {
		return err
	}
	data, err := t.store.Load(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading %s: %w", ns, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decoding %s: %w", ns, err)
	}
	return nil
}

// save must be called with t.mu held.
func (t *Tracker) save(ctx context.Context, ns string, v any) error {
	key, err := store.Key(ns, t.userID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", ns, err)
	}
	if err := t.store.Save(ctx, key, data); err != nil {
		slog.Error("TRACKER: Save failed", "namespace", ns, "user_id", t.userID, "error", err)
		return fmt.Errorf("saving %s: %w", ns, err)
	}
	return nil
}

func (t *Tracker) UserID() string { return t.userID }

// RecordMeal prepends meal to the ledger, newest first. It is the MealSink
// used by the logging session and nothing else appends meals.
func (t *Tracker) RecordMeal(ctx context.Context, meal nutrilog.Meal) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := make([]nutrilog.Meal, 0, len(t.meals)+1)
	next = append(next, meal)
	next = append(next, t.meals...)
	if err := t.save(ctx, store.NamespaceMeals, next); err != nil {
		return err
	}
	t.meals = next
	slog.Info("TRACKER: Meal recorded", "meal_id", meal.ID, "calories", meal.Calories)
	return nil
}

func (t *Tracker) AddHydration(ctx context.Context, amountML float64) (nutrilog.HydrationEntry, error) {
	if amountML <= 0 || math.IsNaN(amountML) || math.IsInf(amountML, 0) {
		return nutrilog.HydrationEntry{}, fmt.Errorf("%w: hydration amount must be a positive number", nutrilog.ErrInvalidInput)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	entry := nutrilog.HydrationEntry{Timestamp: t.now(), AmountML: amountML}
	next := append(append([]nutrilog.HydrationEntry(nil), t.hydration...), entry)
	if err := t.save(ctx, store.NamespaceHydration, next); err != nil {
		return nutrilog.HydrationEntry{}, err
	}
	t.hydration = next
	return entry, nil
}

// EditProfile returns a working copy of the profile. Changes become visible
// only through SaveProfile.
func (t *Tracker) EditProfile() (nutrilog.UserProfile, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.profile == nil {
		return nutrilog.UserProfile{}, false
	}
	return *t.profile, true
}

// SaveProfile validates and persists p, then recalibrates and replaces the
// goal. Calibration always yields a goal, falling back locally if needed.
func (t *Tracker) SaveProfile(ctx context.Context, p nutrilog.UserProfile) (nutrilog.UserGoal, calibration.Source, error) {
	if err := p.Validate(); err != nil {
		return nutrilog.UserGoal{}, "", err
	}

	t.mu.RLock()
	onboarded := t.onboarded
	t.mu.RUnlock()

	return t.commitProfile(ctx, p, onboarded)
}

// CompleteOnboarding is SaveProfile that also marks the profile complete.
func (t *Tracker) CompleteOnboarding(ctx context.Context, p nutrilog.UserProfile) (nutrilog.UserGoal, calibration.Source, error) {
	if err := p.Validate(); err != nil {
		return nutrilog.UserGoal{}, "", err
	}
	return t.commitProfile(ctx, p, true)
}

func (t *Tracker) commitProfile(ctx context.Context, p nutrilog.UserProfile, onboarded bool) (nutrilog.UserGoal, calibration.Source, error) {
	// Calibration may call the network; it runs without holding the lock.
	goal, source, err := t.calibrator.Calibrate(ctx, p)
	if err != nil {
		return nutrilog.UserGoal{}, "", err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Goal first. If the profile write then fails the previous goal is put back.
	if err := t.save(ctx, store.NamespaceGoal, goal); err != nil {
		return nutrilog.UserGoal{}, "", err
	}
	if err := t.save(ctx, store.NamespaceProfile, profileRecord{Profile: p, Onboarded: onboarded}); err != nil {
		if restoreErr := t.save(ctx, store.NamespaceGoal, t.goal); restoreErr != nil {
			err = errors.Join(err, fmt.Errorf("restoring goal: %w", restoreErr))
		}
		return nutrilog.UserGoal{}, "", err
	}
	t.goal = goal
	t.profile = &p
	t.onboarded = onboarded

	slog.Info("TRACKER: Profile saved", "user_id", t.userID, "goal_calories", goal.Calories, "goal_source", source)
	return goal, source, nil
}

func (t *Tracker) Onboarded() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.onboarded
}

// SavePlan prepends plan to the saved plans.
func (t *Tracker) SavePlan(ctx context.Context, plan nutrilog.MealPlan) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := make([]nutrilog.MealPlan, 0, len(t.plans)+1)
	next = append(next, plan)
	next = append(next, t.plans...)
	if err := t.save(ctx, store.NamespacePlans, next); err != nil {
		return err
	}
	t.plans = next
	return nil
}

// RemoveShoppingItem removes one item from a saved plan's shopping list.
func (t *Tracker) RemoveShoppingItem(ctx context.Context, planID string, category, item int) (nutrilog.MealPlan, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := -1
	for i, p := range t.plans {
		if p.ID == planID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nutrilog.MealPlan{}, fmt.Errorf("%w: no plan %q", nutrilog.ErrInvalidInput, planID)
	}

	plan := copyPlan(t.plans[idx])
	if err := plan.RemoveShoppingItem(category, item); err != nil {
		return nutrilog.MealPlan{}, err
	}

	next := append([]nutrilog.MealPlan(nil), t.plans...)
	next[idx] = plan
	if err := t.save(ctx, store.NamespacePlans, next); err != nil {
		return nutrilog.MealPlan{}, err
	}
	t.plans = next
	return copyPlan(plan), nil
}

// AppendChat adds messages to the transcript in order.
func (t *Tracker) AppendChat(ctx context.Context, msgs ...nutrilog.ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	next := append(append([]nutrilog.ChatMessage(nil), t.chat...), msgs...)
	if err := t.save(ctx, store.NamespaceChat, next); err != nil {
		return err
	}
	t.chat = next
	return nil
}

func (t *Tracker) Meals() []nutrilog.Meal {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]nutrilog.Meal, len(t.meals))
	for i, m := range t.meals {
		m.Items = append([]string(nil), m.Items...)
		out[i] = m
	}
	return out
}

func (t *Tracker) Hydration() []nutrilog.HydrationEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]nutrilog.HydrationEntry(nil), t.hydration...)
}

func (t *Tracker) Goal() nutrilog.UserGoal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.goal
}

func (t *Tracker) Plans() []nutrilog.MealPlan {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]nutrilog.MealPlan, len(t.plans))
	for i, p := range t.plans {
		out[i] = copyPlan(p)
	}
	return out
}

func (t *Tracker) Chat() []nutrilog.ChatMessage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]nutrilog.ChatMessage(nil), t.chat...)
}

// Today summarizes the calendar day containing now.
func (t *Tracker) Today(now time.Time) Summary {
	meals := nutrilog.MealsOn(t.Meals(), now)
	water := nutrilog.SumHydration(nutrilog.HydrationOn(t.Hydration(), now))
	goal := t.Goal()
	totals := nutrilog.SumMeals(meals)

	return Summary{
		Day:     now,
		Meals:   meals,
		Totals:  totals,
		WaterML: water,
		Goal:    goal,
		Remaining: nutrilog.DailyTotals{
			Calories: goal.Calories - totals.Calories,
			Protein:  goal.Protein - totals.Protein,
			Carbs:    goal.Carbs - totals.Carbs,
			Fats:     goal.Fats - totals.Fats,
		},
		WaterLeft: goal.Water - water,
	}
}

func copyPlan(p nutrilog.MealPlan) nutrilog.MealPlan {
	meals := make([]nutrilog.PlannedMeal, len(p.Meals))
	for i, m := range p.Meals {
		m.PrepInstructions = append([]string(nil), m.PrepInstructions...)
		meals[i] = m
	}
	p.Meals = meals

	list := make([]nutrilog.ShoppingCategory, len(p.CategorizedShoppingList))
	for i, c := range p.CategorizedShoppingList {
		c.Items = append([]string(nil), c.Items...)
		list[i] = c
	}
	p.CategorizedShoppingList = list
	p.ChefTips = append([]string(nil), p.ChefTips...)
	return p
}
