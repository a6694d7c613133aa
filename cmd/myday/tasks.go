package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/magicmac/myday/internal/schema"
	"github.com/magicmac/myday/internal/ui"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	GroupID: "tasks",
	Short:   "Show today's tasks",
	Long: `Show today's tasks in display order: open tasks in their manual order,
then completed tasks, most recent first.

Use --archive to list earlier days, or --day to show a single day. The day
accepts dates (2025-03-14) and phrases such as "yesterday" or "last friday".`,
	Run: func(cmd *cobra.Command, args []string) {
		archiveDays, _ := cmd.Flags().GetInt("archive")
		dayArg, _ := cmd.Flags().GetString("day")
		asJSON, _ := cmd.Flags().GetBool("json")

		a := openApp(appOptions{})
		defer a.close()

		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		tasks := a.load(ctx)

		switch {
		case dayArg != "":
			day, err := parseDayArg(dayArg, time.Now())
			if err != nil {
				a.close()
				fatalf("%v", err)
			}
			dayTasks := schema.FilterDay(tasks, day)
			if day == schema.TodayKey() {
				dayTasks = a.todayTasks(tasks)
			}
			if asJSON {
				printJSON(dayTasks)
				return
			}
			printDay(day, dayTasks)

		case archiveDays > 0:
			groups, err := schema.Archive(tasks, schema.TodayKey(), archiveDays)
			if err != nil {
				a.close()
				fatalf("%v", err)
			}
			if asJSON {
				printJSON(groups)
				return
			}
			if len(groups) == 0 {
				fmt.Printf("No tasks in the last %d days\n", archiveDays)
				return
			}
			for _, g := range groups {
				printDay(g.Day, g.Tasks)
			}

		default:
			today := a.todayTasks(tasks)
			if asJSON {
				printJSON(today)
				return
			}
			fmt.Printf("\n%s\n", ui.RenderQuote(schema.DailyQuote(schema.TodayKey())))
			printDay(schema.TodayKey(), today)
		}
	},
}

func printDay(day string, tasks []schema.Task) {
	done := 0
	for _, t := range tasks {
		if t.Completed {
			done++
		}
	}
	fmt.Printf("\n%s  %s\n", ui.RenderTitle(formatDay(day)), ui.RenderMuted(fmt.Sprintf("%d/%d completed", done, len(tasks))))
	if len(tasks) == 0 {
		fmt.Println(ui.RenderMuted("  Nothing planned. Add a task with 'myday add'."))
		return
	}
	for i, t := range tasks {
		fmt.Println(ui.RenderTask(i+1, t))
	}
}

func formatDay(day string) string {
	t, err := schema.ParseDay(day)
	if err != nil {
		return day
	}
	return t.Format("Monday, January 2")
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatalf("failed to encode output: %v", err)
	}
}

var addCmd = &cobra.Command{
	Use:     "add <text>",
	GroupID: "tasks",
	Short:   "Add a task for today",
	Args:    cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp(appOptions{})
		defer a.close()

		ctx := context.Background()
		a.load(ctx)

		task, err := a.repo.AddTask(ctx, strings.Join(args, " "))
		if err != nil {
			a.close()
			fatalf("%v", err)
		}
		fmt.Printf("%s Added: %s\n", ui.RenderPass("✓"), task.Text)
	},
}

// toggleCommand builds done and undo.
func toggleCommand(use, short string, completed bool, verb string) *cobra.Command {
	return &cobra.Command{
		Use:     use + " <task>",
		GroupID: "tasks",
		Short:   short,
		Long: short + `.

<task> is the number shown by 'myday list', a task id, or an id prefix.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			withTask(args[0], func(a *app, t schema.Task) error {
				if err := a.repo.ToggleTask(context.Background(), t.ID, completed); err != nil {
					return err
				}
				fmt.Printf("%s %s: %s\n", ui.RenderPass("✓"), verb, t.Text)
				return nil
			})
		},
	}
}

// withTask loads today's tasks, resolves ref and runs fn.
func withTask(ref string, fn func(a *app, t schema.Task) error) {
	a := openApp(appOptions{})
	defer a.close()

	today := a.todayTasks(a.load(context.Background()))
	task, err := resolveTask(today, ref)
	if err != nil {
		a.close()
		fatalf("%v", err)
	}
	if task.IsTemporary() {
		a.close()
		fatalf("task %q is still being saved; try again in a moment", task.Text)
	}
	if err := fn(a, task); err != nil {
		a.close()
		fatalf("%v", err)
	}
}

var editCmd = &cobra.Command{
	Use:     "edit <task> <text>",
	GroupID: "tasks",
	Short:   "Change the text of a task",
	Args:    cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		text := strings.Join(args[1:], " ")
		withTask(args[0], func(a *app, t schema.Task) error {
			if err := a.repo.UpdateTaskText(context.Background(), t.ID, text); err != nil {
				return err
			}
			fmt.Printf("%s Updated: %s\n", ui.RenderPass("✓"), strings.TrimSpace(text))
			return nil
		})
	},
}

var rmCmd = &cobra.Command{
	Use:     "rm <task>",
	Aliases: []string{"delete"},
	GroupID: "tasks",
	Short:   "Delete a task",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withTask(args[0], func(a *app, t schema.Task) error {
			if err := a.repo.DeleteTask(context.Background(), t.ID); err != nil {
				return err
			}
			fmt.Printf("%s Deleted: %s\n", ui.RenderPass("✓"), t.Text)
			return nil
		})
	},
}

var reorderCmd = &cobra.Command{
	Use:     "reorder <task>...",
	GroupID: "tasks",
	Short:   "Move open tasks to the top in the given order",
	Long: `Move the named open tasks to the top of today's list, in the given order.
Other open tasks keep their relative order below them.

  myday reorder 3 1     # third task first, then the first one`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp(appOptions{})
		defer a.close()

		today := a.todayTasks(a.load(context.Background()))
		ids, err := reorderIDs(today, args)
		if err != nil {
			a.close()
			fatalf("%v", err)
		}
		if err := a.repo.Reorder(ids); err != nil {
			a.close()
			fatalf("%v", err)
		}
		printDay(schema.TodayKey(), a.todayTasks(a.repo.Tasks()))
	},
}

var clearCompletedCmd = &cobra.Command{
	Use:     "clear-completed",
	GroupID: "tasks",
	Short:   "Delete today's completed tasks",
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp(appOptions{})
		defer a.close()

		ctx := context.Background()
		before := a.todayTasks(a.load(ctx))
		if err := a.repo.ClearCompleted(ctx); err != nil {
			a.close()
			fatalf("%v", err)
		}
		cleared := len(before) - len(a.todayTasks(a.repo.Tasks()))
		fmt.Printf("%s Cleared %d completed tasks\n", ui.RenderPass("✓"), cleared)
	},
}

var readdCmd = &cobra.Command{
	Use:     "readd <day> <task>",
	GroupID: "tasks",
	Short:   "Copy a task from an earlier day to today",
	Long: `Copy a task from an earlier day to today's list.

<day> accepts the same forms as 'myday list --day'; <task> is the number
shown for that day, a task id, or an id prefix.

  myday readd yesterday 2`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp(appOptions{})
		defer a.close()

		ctx := context.Background()
		tasks := a.load(ctx)
		day, err := parseDayArg(args[0], time.Now())
		if err != nil {
			a.close()
			fatalf("%v", err)
		}
		source, err := resolveTask(schema.FilterDay(tasks, day), args[1])
		if err != nil {
			a.close()
			fatalf("%v", err)
		}
		task, err := a.repo.AddFromArchive(ctx, source.Text)
		if err != nil {
			a.close()
			fatalf("%v", err)
		}
		fmt.Printf("%s Added to today: %s\n", ui.RenderPass("✓"), task.Text)
	},
}

func init() {
	listCmd.Flags().Int("archive", 0, "Show the given number of earlier days")
	listCmd.Flags().String("day", "", "Show a single day (date or phrase)")
	listCmd.Flags().Bool("json", false, "Output JSON")

	rootCmd.AddCommand(
		listCmd,
		addCmd,
		toggleCommand("done", "Mark a task completed", true, "Completed"),
		toggleCommand("undo", "Mark a task not completed", false, "Reopened"),
		editCmd,
		rmCmd,
		reorderCmd,
		clearCompletedCmd,
		readdCmd,
	)
}
