package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"nutrilog"
	"nutrilog/app"
	"nutrilog/estimation"
	"nutrilog/session"
	"nutrilog/slack"
)

type cli struct {
	app   *app.App
	in    io.Reader
	out   io.Writer
	debug bool
}

func (c *cli) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "estimate":
		return c.estimate(ctx, args)
	case "log":
		return c.logMeal(ctx, args)
	case "calibrate":
		return c.calibrate(ctx, args)
	case "plan":
		return c.plan(ctx, args)
	case "water":
		return c.water(ctx, args)
	case "summary":
		return c.summary(ctx, args)
	case "chat":
		return c.chat(ctx, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (c *cli) dump(v any) {
	if c.debug {
		nutrilog.Dump(v)
	}
}

// mealInput parses the shared flags of estimate and log.
func mealInput(name string, args []string) (estimation.Input, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	image := fs.String("image", "", "path to a meal photo")
	if err := fs.Parse(args); err != nil {
		return estimation.Input{}, err
	}

	in := estimation.Input{Text: strings.Join(fs.Args(), " ")}
	if *image != "" {
		data, err := os.ReadFile(*image)
		if err != nil {
			return estimation.Input{}, fmt.Errorf("failed to read image: %w", err)
		}
		in.Image = data
		in.MIMEType = http.DetectContentType(data)
	}
	return in, nil
}

func (c *cli) estimate(ctx context.Context, args []string) error {
	in, err := mealInput("estimate", args)
	if err != nil {
		return err
	}
	est, err := c.app.Estimator.Estimate(ctx, in)
	if err != nil {
		return err
	}
	c.dump(est)
	printEstimate(c.out, est)
	return nil
}

func (c *cli) logMeal(ctx context.Context, args []string) error {
	in, err := mealInput("log", args)
	if err != nil {
		return err
	}

	sess := session.New(c.app.Estimator, c.app.Tracker, session.Options{})
	if err := sess.Begin(); err != nil {
		return err
	}
	est, err := sess.Submit(ctx, in)
	if err != nil {
		return err
	}

	meal, logged, err := review(ctx, sess, est, c.in, c.out)
	if err != nil {
		return err
	}
	if logged {
		c.dump(meal)
		fmt.Fprintf(c.out, "Logged %s (%.0f kcal).\n", meal.Name, meal.Calories)
	} else {
		fmt.Fprintln(c.out, "Discarded.")
	}
	return nil
}

// review prompts until the estimate is confirmed or discarded. Corrections
// are re-estimated from text alone.
func review(ctx context.Context, sess *session.Session, est nutrilog.NutritionEstimate, in io.Reader, out io.Writer) (nutrilog.Meal, bool, error) {
	scanner := bufio.NewScanner(in)
	prompt := func(p string) (string, bool) {
		fmt.Fprint(out, p)
		if !scanner.Scan() {
			return "", false
		}
		return strings.TrimSpace(scanner.Text()), true
	}

	printEstimate(out, est)
	for {
		answer, ok := prompt("Log this meal? [y]es / [e]dit / [n]o: ")
		if !ok {
			return nutrilog.Meal{}, false, sess.Discard()
		}

		switch strings.ToLower(answer) {
		case "y", "yes":
			meal, _, err := sess.Confirm(ctx)
			return meal, err == nil, err

		case "n", "no":
			return nutrilog.Meal{}, false, sess.Discard()

		case "e", "edit":
			draft, err := sess.Edit()
			if err != nil {
				return nutrilog.Meal{}, false, err
			}
			text, ok := prompt(fmt.Sprintf("Describe the meal [%s]: ", draft))
			if !ok || text == "" {
				if err := sess.CancelEdit(); err != nil {
					return nutrilog.Meal{}, false, err
				}
				continue
			}
			updated, err := sess.Recalculate(ctx, text)
			if err != nil {
				fmt.Fprintf(out, "Could not recalculate (%s); keeping the previous estimate.\n", err)
				if err := sess.CancelEdit(); err != nil {
					return nutrilog.Meal{}, false, err
				}
				continue
			}
			printEstimate(out, updated)
		}
	}
}

func printEstimate(w io.Writer, est nutrilog.NutritionEstimate) {
	fmt.Fprintf(w, "%s: %.0f kcal (P %.0fg / C %.0fg / F %.0fg), confidence %.0f%%\n",
		est.Name, est.Calories, est.Macros.Protein, est.Macros.Carbs, est.Macros.Fats, est.Confidence*100)
	for _, item := range est.Items {
		fmt.Fprintf(w, "  - %s\n", item)
	}
	if est.Reasoning != "" {
		fmt.Fprintf(w, "  %s\n", est.Reasoning)
	}
}

func (c *cli) calibrate(ctx context.Context, args []string) error {
	p, _ := c.app.Tracker.EditProfile()

	fs := flag.NewFlagSet("calibrate", flag.ContinueOnError)
	fs.StringVar(&p.Name, "name", p.Name, "display name")
	fs.IntVar(&p.Age, "age", p.Age, "age in years")
	fs.Float64Var(&p.HeightCM, "height", p.HeightCM, "height in cm")
	fs.Float64Var(&p.WeightKG, "weight", p.WeightKG, "weight in kg")
	gender := fs.String("gender", string(p.Gender), "Male, Female or Other")
	activity := fs.String("activity", string(p.ActivityLevel), "Sedentary, Lightly Active, Moderately Active, Very Active or Super Active")
	goal := fs.String("goal", string(p.PrimaryGoal), "Lose Weight, Maintain or Gain Muscle")
	macro := fs.String("macro", string(p.MacroPreference), "macro preference for plans")
	snack := fs.String("snack", string(p.SnackPreference), "snack preference for plans")
	spice := fs.String("spice", string(p.SpiceLevel), "spice level for plans")
	taste := fs.String("taste", string(p.TasteProfile), "taste profile for plans")
	if err := fs.Parse(args); err != nil {
		return err
	}
	p.Gender = nutrilog.Gender(*gender)
	p.ActivityLevel = nutrilog.ActivityLevel(*activity)
	p.PrimaryGoal = nutrilog.GoalType(*goal)
	p.MacroPreference = nutrilog.MacroPreference(*macro)
	p.SnackPreference = nutrilog.SnackPreference(*snack)
	p.SpiceLevel = nutrilog.SpiceLevel(*spice)
	p.TasteProfile = nutrilog.TasteProfile(*taste)

	g, source, err := c.app.Tracker.CompleteOnboarding(ctx, p)
	if err != nil {
		return err
	}
	c.dump(g)
	fmt.Fprintf(c.out, "Daily goals (%s): %.0f kcal, protein %.0fg, carbs %.0fg, fats %.0fg, water %.0f ml\n",
		source, g.Calories, g.Protein, g.Carbs, g.Fats, g.Water)
	return nil
}

func (c *cli) plan(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("plan", flag.ContinueOnError)
	restrictions := fs.String("restrictions", "", "allergies, dislikes or other notes")
	share := fs.Bool("share", false, "post the plan to Slack")
	if err := fs.Parse(args); err != nil {
		return err
	}

	profile, _ := c.app.Tracker.EditProfile()
	cfg := nutrilog.PlanConfigurationFromProfile(profile)
	cfg.DietaryRestrictions = *restrictions

	plan, err := c.app.Planner.Generate(ctx, c.app.Tracker.Goal(), cfg)
	if err != nil {
		return err
	}
	if err := c.app.Tracker.SavePlan(ctx, plan); err != nil {
		return err
	}
	c.dump(plan)

	text := slack.FormatPlan(plan)
	fmt.Fprintln(c.out, text)
	if *share {
		return c.app.Share(ctx, text)
	}
	return nil
}

func (c *cli) water(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: nutrilog water <ml>")
	}
	amount, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("%w: %q is not a number", nutrilog.ErrInvalidInput, args[0])
	}
	if _, err := c.app.Tracker.AddHydration(ctx, amount); err != nil {
		return err
	}

	s := c.app.Tracker.Today(c.app.Now())
	fmt.Fprintf(c.out, "Water today: %.0f / %.0f ml\n", s.WaterML, s.Goal.Water)
	return nil
}

func (c *cli) summary(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("summary", flag.ContinueOnError)
	share := fs.Bool("share", false, "post the summary to Slack")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s := c.app.Tracker.Today(c.app.Now())
	c.dump(s)

	text := slack.FormatSummary(s)
	fmt.Fprintln(c.out, text)
	if *share {
		return c.app.Share(ctx, text)
	}
	return nil
}

func (c *cli) chat(ctx context.Context, args []string) error {
	reply, err := c.app.Coach.Converse(ctx, c.app.Tracker, c.app.Now(), strings.Join(args, " "))
	if reply.Text != "" {
		fmt.Fprintln(c.out, reply.Text)
	}
	return err
}
