package slack_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"nutrilog"
	"nutrilog/slack"
	"nutrilog/tracker"

	should "github.com/stretchr/testify/assert"
	must "github.com/stretchr/testify/require"
)

type mockDoer struct {
	resp   *http.Response
	err    error
	doFunc func(req *http.Request) (*http.Response, error)
}

func (m *mockDoer) Do(req *http.Request) (*http.Response, error) {
	if m.doFunc != nil {
		return m.doFunc(req)
	}
	return m.resp, m.err
}

func TestNewClient(t *testing.T) {
	client, err := slack.NewClient("http://slack.com/webhook", &mockDoer{})
	must.NoError(t, err)
	must.NotNil(t, client, "expected non-nil client")

	_, err = slack.NewClient("", &mockDoer{})
	should.Error(t, err)
}

func TestPostMessage(t *testing.T) {
	tests := []struct {
		name    string
		doFunc  func(req *http.Request) (*http.Response, error)
		wantErr error
	}{
		{
			name: "success",
			doFunc: func(req *http.Request) (*http.Response, error) {
				return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewBufferString("ok"))}, nil
			},
			wantErr: nil,
		},
		{
			name: "failure status",
			doFunc: func(req *http.Request) (*http.Response, error) {
				return &http.Response{StatusCode: http.StatusBadRequest, Status: "400 Bad Request", Body: io.NopCloser(bytes.NewBufferString("bad request"))}, nil
			},
			wantErr: fmt.Errorf("failed to post message: 400 Bad Request"),
		},
		{
			name: "do error",
			doFunc: func(req *http.Request) (*http.Response, error) {
				return nil, errors.New("network error")
			},
			wantErr: fmt.Errorf("network error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := slack.NewClient("http://example.com/webhook", &mockDoer{doFunc: tt.doFunc})
			must.NoError(t, err)
			err = client.PostMessage(context.Background(), "#nutrition", "Hello, world!")
			should.Equal(t, tt.wantErr, err)
		})
	}
}

func TestPostMessagePayload(t *testing.T) {
	var got map[string]string
	doer := &mockDoer{doFunc: func(req *http.Request) (*http.Response, error) {
		should.Equal(t, http.MethodPost, req.Method)
		should.Equal(t, "application/json", req.Header.Get("Content-Type"))
		must.NoError(t, json.NewDecoder(req.Body).Decode(&got))
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewBufferString("ok"))}, nil
	}}

	client, err := slack.NewClient("http://example.com/webhook", doer)
	must.NoError(t, err)
	must.NoError(t, client.PostMessage(context.Background(), "#nutrition", "hi"))
	should.Equal(t, map[string]string{"channel": "#nutrition", "text": "hi"}, got)
}

func TestFormatPlan(t *testing.T) {
	plan := nutrilog.MealPlan{
		Name:          "Balanced Day",
		PrepTimeTotal: "55 min",
		Meals: []nutrilog.PlannedMeal{
			{Type: nutrilog.MealBreakfast, Description: "Oats", Calories: 450, Macros: nutrilog.MacroData{Protein: 30, Carbs: 55, Fats: 10}},
			{Type: nutrilog.MealLunch, Description: "Chicken bowl", Calories: 650},
		},
		CategorizedShoppingList: []nutrilog.ShoppingCategory{
			{Category: "Produce", Items: []string{"berries", "greens"}},
		},
		ChefTips: []string{"Batch cook quinoa."},
	}

	got := slack.FormatPlan(plan)
	should.Contains(t, got, "*Balanced Day* (prep 55 min)")
	should.Contains(t, got, "• *Breakfast*: Oats, 450 kcal (P 30g / C 55g / F 10g)")
	should.Contains(t, got, "Total: 1100 kcal")
	should.Contains(t, got, "_Produce_: berries, greens")
	should.Contains(t, got, "> Batch cook quinoa.")
}

func TestFormatSummary(t *testing.T) {
	day := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

	t.Run("with meals", func(t *testing.T) {
		s := tracker.Summary{
			Day:       day,
			Meals:     []nutrilog.Meal{{Name: "Eggs", Calories: 390, Timestamp: day.Add(-10 * time.Hour)}},
			Totals:    nutrilog.DailyTotals{Calories: 390, Protein: 20},
			WaterML:   750,
			Goal:      nutrilog.DefaultGoal,
			Remaining: nutrilog.DailyTotals{Calories: 1810},
		}
		got := slack.FormatSummary(s)
		should.Contains(t, got, "*Daily summary for Sat Mar 14*")
		should.Contains(t, got, "Calories: 390 / 2200 kcal (1810 left)")
		should.Contains(t, got, "Water: 750 / 2500 ml")
		should.Contains(t, got, "• 08:00 Eggs, 390 kcal")
	})

	t.Run("empty day", func(t *testing.T) {
		got := slack.FormatSummary(tracker.Summary{Day: day, Goal: nutrilog.DefaultGoal})
		should.Contains(t, got, "No meals logged yet.")
	})
}
