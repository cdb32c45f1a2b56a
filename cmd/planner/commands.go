package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/benvon/family-planner/internal/catalog"
	"github.com/benvon/family-planner/internal/models"
	"github.com/benvon/family-planner/internal/travel"
	"github.com/spf13/cobra"
)

func newActivitiesCmd(a *app) *cobra.Command {
	var category, season string
	var minKid int
	cmd := &cobra.Command{
		Use:   "activities [search text]",
		Short: "List catalog activities with their status",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := catalog.Query{
				Category:           models.Category(strings.ToLower(category)),
				Season:             models.Season(strings.ToLower(season)),
				MinKidFriendliness: minKid,
				Text:               strings.Join(args, " "),
			}
			if q.Category != "" && !q.Category.Valid() {
				return fmt.Errorf("unknown category %q", category)
			}
			for _, act := range catalog.Filter(a.store.Catalog(), q) {
				fmt.Printf("%s %s %-28s %-10s %s  kids %d/5\n",
					statusMark(a.store.Status(act.ID)), glyph(act), act.ID, act.Category, act.Name, act.KidFriendliness)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "Only this category")
	cmd.Flags().StringVar(&season, "season", "", "Only activities good in this season")
	cmd.Flags().IntVar(&minKid, "min-kid", 0, "Minimum kid friendliness (1-5)")
	return cmd
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <activity-id> <none|want|done>",
		Short: "Set an activity's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			act, err := a.activity(args[0])
			if err != nil {
				return err
			}
			if err := a.store.SetStatus(act.ID, models.ActivityStatus(strings.ToLower(args[1]))); err != nil {
				return err
			}
			fmt.Printf("%s %s: %s\n", glyph(act), act.Name, a.store.Status(act.ID))
			return nil
		},
	}
}

func newToggleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <activity-id>",
		Short: "Cycle an activity through none, want and done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			act, err := a.activity(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s %s: %s\n", glyph(act), act.Name, a.store.ToggleStatus(act.ID))
			return nil
		},
	}
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show want and done counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats := a.store.Stats()
			fmt.Printf("%s: %d wanted, %d done of %d activities\n", a.bundle.Destination.Name, stats.Want, stats.Done, stats.Total)
			for _, act := range a.store.WantList() {
				fmt.Printf("  ♥ %s %s\n", glyph(act), act.Name)
			}
			for _, act := range a.store.DoneList() {
				fmt.Printf("  ✓ %s %s\n", glyph(act), act.Name)
			}
			return nil
		},
	}
}

func newNoteCmd(a *app) *cobra.Command {
	var clearNote bool
	cmd := &cobra.Command{
		Use:   "note <activity-id> [text...]",
		Short: "Show or set the note on an activity",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			act, err := a.activity(args[0])
			if err != nil {
				return err
			}
			switch {
			case clearNote:
				a.store.SetNote(act.ID, "")
			case len(args) > 1:
				a.store.SetNote(act.ID, strings.Join(args[1:], " "))
			}
			if note := a.store.Note(act.ID); note != "" {
				fmt.Printf("%s %s\n  %s\n", glyph(act), act.Name, note)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&clearNote, "clear", false, "Delete the note")
	return cmd
}

func newDaysCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "days",
		Short: "List itinerary days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			days := a.store.Snapshot().Itinerary
			if len(days) == 0 {
				fmt.Println("No days planned. Templates:")
				for _, tpl := range a.bundle.Templates {
					fmt.Printf("  %s  %s\n", tpl.ID, tpl.Label)
				}
				return nil
			}
			for i, day := range days {
				date := ""
				if day.Date != nil {
					date = " (" + *day.Date + ")"
				}
				fmt.Printf("%d. %s%s  %d activities  [%s]\n", i+1, day.Label, date, len(day.ActivityIDs), day.ID)
			}
			return nil
		},
	}
}

func newDayCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "day",
		Short: "Edit itinerary days. Days are named by id or 1-based position.",
	}

	var label string
	add := &cobra.Command{
		Use:   "add",
		Short: "Append an empty day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			day := a.store.AddDay(label)
			fmt.Printf("Added %s [%s]\n", day.Label, day.ID)
			return nil
		},
	}
	add.Flags().StringVar(&label, "label", "", "Day label (default \"Day N\")")

	template := &cobra.Command{
		Use:   "template <template-id>",
		Short: "Append a day built from a catalog template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tpl, ok := a.bundle.Template(args[0])
			if !ok {
				return fmt.Errorf("unknown template %q", args[0])
			}
			day := a.store.LoadTemplate(tpl)
			fmt.Printf("Added %s with %d activities [%s]\n", day.Label, len(day.ActivityIDs), day.ID)
			return nil
		},
	}

	var newLabel, date string
	edit := &cobra.Command{
		Use:   "edit <day>",
		Short: "Rename or date a day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := a.day(args[0])
			if err != nil {
				return err
			}
			var labelPtr, datePtr *string
			if cmd.Flags().Changed("label") {
				labelPtr = &newLabel
			}
			if cmd.Flags().Changed("date") {
				datePtr = &date
			}
			_, err = a.store.UpdateDay(day.ID, labelPtr, datePtr)
			return err
		},
	}
	edit.Flags().StringVar(&newLabel, "label", "", "New label")
	edit.Flags().StringVar(&date, "date", "", "Calendar date YYYY-MM-DD (empty clears it)")

	remove := &cobra.Command{
		Use:   "rm <day>",
		Short: "Remove a day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := a.day(args[0])
			if err != nil {
				return err
			}
			return a.store.RemoveDay(day.ID)
		},
	}

	addItem := &cobra.Command{
		Use:   "add-item <day> <activity-id>",
		Short: "Schedule an activity on a day",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := a.day(args[0])
			if err != nil {
				return err
			}
			act, err := a.activity(args[1])
			if err != nil {
				return err
			}
			return a.store.AddToDay(day.ID, act.ID)
		},
	}

	removeItem := &cobra.Command{
		Use:   "rm-item <day> <activity-id>",
		Short: "Unschedule an activity from a day",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := a.day(args[0])
			if err != nil {
				return err
			}
			return a.store.RemoveFromDay(day.ID, args[1])
		},
	}

	move := &cobra.Command{
		Use:   "move <day> <from> <to>",
		Short: "Move an item within a day (1-based positions)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := a.day(args[0])
			if err != nil {
				return err
			}
			from, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid position %q", args[1])
			}
			to, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid position %q", args[2])
			}
			return a.store.ReorderInDay(day.ID, from-1, to-1)
		},
	}

	show := &cobra.Command{
		Use:   "show <day>",
		Short: "Print a day's timeline with meals and travel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := a.day(args[0])
			if err != nil {
				return err
			}
			fmt.Println(day.Label)
			for _, e := range travel.BuildTimeline(day, a.store.Activity) {
				switch e.Kind {
				case travel.EntryMeal:
					fmt.Printf("   %s %s\n", e.Glyph, e.Meal)
				case travel.EntryActivity:
					fmt.Printf("%2d. %s %s\n", e.Position+1, e.Glyph, e.Name)
				case travel.EntryTravel:
					fmt.Printf("      %s %s\n", e.Travel.Glyph, e.Travel.Label)
				}
			}
			available, err := a.store.Available(day.ID)
			if err != nil {
				return err
			}
			if len(available) > 0 {
				fmt.Printf("\n%d wanted activities not on this day\n", len(available))
			}
			return nil
		},
	}

	cmd.AddCommand(add, template, edit, remove, addItem, removeItem, move, show)
	return cmd
}

func newTravelCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "travel <from-activity> <to-activity>",
		Short: "Estimate travel between two activities",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := a.activity(args[0])
			if err != nil {
				return err
			}
			to, err := a.activity(args[1])
			if err != nil {
				return err
			}
			hint, ok := travel.Estimate(from.Location, to.Location)
			if !ok {
				fmt.Println("No coordinates for one of the activities")
				return nil
			}
			fmt.Printf("%s %s (%.1f km)\n", hint.Glyph, hint.Label, hint.DistanceKm)
			return nil
		},
	}
}
