// Package coach answers free-form nutrition questions using the user's day as context.
package coach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"nutrilog"
	"nutrilog/inference"
)

const (
	// Greeting opens every new transcript.
	Greeting = "How can I assist your nutrition today?"

	// Apology is appended to the transcript when a reply cannot be produced.
	Apology = "I'm having trouble connecting to my bio-database. Please try again."

	// historyLimit bounds how many earlier turns are replayed to the model.
	historyLimit = 20
)

const systemInstruction = `You are Aura, a nutrition assistant.
You must state that you are an AI and NOT a doctor whenever health advice is requested.
Your guidance is informational only. Do not provide medical diagnoses.
Use the provided context about the user's profile, goals and intake to personalize answers.
Be encouraging yet concise.`

// Snapshot is the user's state the coach may refer to.
type Snapshot struct {
	Profile   nutrilog.UserProfile
	Goal      nutrilog.UserGoal
	Meals     []nutrilog.Meal
	Hydration []nutrilog.HydrationEntry
}

// Ledger is the per-user state a conversation reads from and appends to.
// tracker.Tracker implements it.
type Ledger interface {
	EditProfile() (nutrilog.UserProfile, bool)
	Goal() nutrilog.UserGoal
	Meals() []nutrilog.Meal
	Hydration() []nutrilog.HydrationEntry
	Chat() []nutrilog.ChatMessage
	AppendChat(ctx context.Context, msgs ...nutrilog.ChatMessage) error
}

type reply struct {
	Reply string `json:"reply"`
}

type Service struct {
	gateway inference.Structured
}

func NewService(gateway inference.Structured) *Service {
	return &Service{gateway: gateway}
}

// Ask returns the model's answer to question. On failure it returns the
// Apology message together with an error wrapping ErrCoachUnavailable, so
// callers can record the apology in the transcript either way.
func (s *Service) Ask(ctx context.Context, snap Snapshot, history []nutrilog.ChatMessage, question string) (nutrilog.ChatMessage, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nutrilog.ChatMessage{}, fmt.Errorf("%w: question is empty", nutrilog.ErrInvalidInput)
	}

	req := BuildRequest(snap, history, question)

	var out reply
	err := s.gateway.GenerateStructured(ctx, req, &out)
	if err == nil && strings.TrimSpace(out.Reply) == "" {
		err = errors.New("empty reply")
	}
	if err != nil {
		slog.Error("COACH: Reply failed", "error", err)
		return nutrilog.ChatMessage{Role: nutrilog.RoleModel, Text: Apology}, fmt.Errorf("%w: %w", nutrilog.ErrCoachUnavailable, err)
	}

	slog.Info("COACH: Replied", "question_len", len(question), "reply_len", len(out.Reply))
	return nutrilog.ChatMessage{Role: nutrilog.RoleModel, Text: out.Reply}, nil
}

func BuildRequest(snap Snapshot, history []nutrilog.ChatMessage, question string) inference.Request {
	var b strings.Builder
	b.WriteString(contextBlock(snap))

	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	if len(history) > 0 {
		b.WriteString("\nConversation so far:\n")
		for _, m := range history {
			speaker := "User"
			if m.Role == nutrilog.RoleModel {
				speaker = "Aura"
			}
			fmt.Fprintf(&b, "%s: %s\n", speaker, m.Text)
		}
	}
	fmt.Fprintf(&b, "\nUser question: %s", question)

	return inference.Request{
		Operation: inference.OpCoach,
		System:    systemInstruction,
		Text:      b.String(),
		Schema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"reply": {Type: "string", Description: "The answer shown to the user"},
			},
			Required: []string{"reply"},
		},
	}
}

func contextBlock(snap Snapshot) string {
	totals := nutrilog.SumMeals(snap.Meals)
	water := nutrilog.SumHydration(snap.Hydration)
	p := snap.Profile

	var b strings.Builder
	b.WriteString("Context:\n")
	fmt.Fprintf(&b, "- Profile: %s, %d years, %s, %.0fcm, %.1fkg, %s, goal: %s\n",
		p.Name, p.Age, p.Gender, p.HeightCM, p.WeightKG, p.ActivityLevel, p.PrimaryGoal)
	fmt.Fprintf(&b, "- Daily Goals: %.0f kcal, %.0fg protein, %.0fg carbs, %.0fg fats\n",
		snap.Goal.Calories, snap.Goal.Protein, snap.Goal.Carbs, snap.Goal.Fats)
	fmt.Fprintf(&b, "- Consumed Today: %.0f kcal, %.0fg protein, %.0fg carbs, %.0fg fats\n",
		totals.Calories, totals.Protein, totals.Carbs, totals.Fats)
	fmt.Fprintf(&b, "- Hydration Today: %.0fml / %.0fml\n", water, snap.Goal.Water)

	if len(snap.Meals) == 0 {
		b.WriteString("- Logged Meals: none yet\n")
		return b.String()
	}
	b.WriteString("- Logged Meals Breakdown:\n")
	for _, m := range snap.Meals {
		fmt.Fprintf(&b, "  * %s (%.0f kcal, %.0fg protein)\n", m.Name, m.Calories, m.Macros.Protein)
	}
	return b.String()
}

// Converse asks question with the day containing now as context and appends
// both turns to the ledger's transcript, opening it with the Greeting if it is
// empty. When the model fails the apology is recorded and the error returned.
func (s *Service) Converse(ctx context.Context, l Ledger, now time.Time, question string) (nutrilog.ChatMessage, error) {
	profile, _ := l.EditProfile()
	history := l.Chat()
	snap := Snapshot{
		Profile:   profile,
		Goal:      l.Goal(),
		Meals:     nutrilog.MealsOn(l.Meals(), now),
		Hydration: nutrilog.HydrationOn(l.Hydration(), now),
	}

	answer, err := s.Ask(ctx, snap, history, question)
	if answer.Text == "" {
		return answer, err
	}

	var turns []nutrilog.ChatMessage
	if len(history) == 0 {
		turns = append(turns, nutrilog.ChatMessage{Role: nutrilog.RoleModel, Text: Greeting})
	}
	turns = append(turns,
		nutrilog.ChatMessage{Role: nutrilog.RoleUser, Text: strings.TrimSpace(question)},
		answer,
	)
	if saveErr := l.AppendChat(ctx, turns...); saveErr != nil {
		return answer, errors.Join(err, fmt.Errorf("saving transcript: %w", saveErr))
	}
	return answer, err
}
