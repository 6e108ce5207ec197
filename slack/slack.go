// Package slack shares plans and daily summaries through an incoming webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"nutrilog"
	"nutrilog/tracker"
)

type Client struct {
	webhookURL string
	httpClient nutrilog.HTTPClient
}

func NewClient(webhookURL string, httpClient nutrilog.HTTPClient) (*Client, error) {
	if webhookURL == "" {
		return nil, errors.New("slack: webhook URL is required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		webhookURL: webhookURL,
		httpClient: httpClient,
	}, nil
}

func (c *Client) PostMessage(ctx context.Context, channel string, message string) error {
	payload, err := json.Marshal(map[string]any{
		"channel": channel,
		"text":    message,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to post message: %s", resp.Status)
	}

	slog.Info("SLACK: Message posted", "channel", channel, "length", len(message))
	return nil
}

// FormatPlan renders a plan as Slack mrkdwn.
func FormatPlan(plan nutrilog.MealPlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*", plan.Name)
	if plan.PrepTimeTotal != "" {
		fmt.Fprintf(&b, " (prep %s)", plan.PrepTimeTotal)
	}
	b.WriteString("\n")

	var total float64
	for _, m := range plan.Meals {
		total += m.Calories
		fmt.Fprintf(&b, "• *%s*: %s, %.0f kcal (P %.0fg / C %.0fg / F %.0fg)\n",
			m.Type, m.Description, m.Calories, m.Macros.Protein, m.Macros.Carbs, m.Macros.Fats)
	}
	fmt.Fprintf(&b, "Total: %.0f kcal\n", total)

	if len(plan.CategorizedShoppingList) > 0 {
		b.WriteString("\n*Shopping list*\n")
		for _, c := range plan.CategorizedShoppingList {
			fmt.Fprintf(&b, "_%s_: %s\n", c.Category, strings.Join(c.Items, ", "))
		}
	}
	if len(plan.ChefTips) > 0 {
		b.WriteString("\n*Tips*\n")
		for _, tip := range plan.ChefTips {
			fmt.Fprintf(&b, "> %s\n", tip)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatSummary renders a day summary as Slack mrkdwn.
func FormatSummary(s tracker.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Daily summary for %s*\n", s.Day.Format("Mon Jan 2"))
	fmt.Fprintf(&b, "Calories: %.0f / %.0f kcal (%.0f left)\n", s.Totals.Calories, s.Goal.Calories, s.Remaining.Calories)
	fmt.Fprintf(&b, "Protein: %.0f / %.0fg  Carbs: %.0f / %.0fg  Fats: %.0f / %.0fg\n",
		s.Totals.Protein, s.Goal.Protein, s.Totals.Carbs, s.Goal.Carbs, s.Totals.Fats, s.Goal.Fats)
	fmt.Fprintf(&b, "Water: %.0f / %.0f ml\n", s.WaterML, s.Goal.Water)

	if len(s.Meals) == 0 {
		b.WriteString("No meals logged yet.")
		return b.String()
	}
	for _, m := range s.Meals {
		fmt.Fprintf(&b, "• %s %s, %.0f kcal\n", m.Timestamp.Format("15:04"), m.Name, m.Calories)
	}
	return strings.TrimRight(b.String(), "\n")
}
