package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/saiset-co/sai-content/app"
	"github.com/saiset-co/sai-content/repository"
	"github.com/saiset-co/sai-content/types"
	"github.com/saiset-co/sai-content/utils"
)

type query struct {
	needsArg bool
	run      func(ctx context.Context, r *repository.Repository, arg string) (interface{}, error)
}

var queries = map[string]query{
	"lessons": {run: func(ctx context.Context, r *repository.Repository, _ string) (interface{}, error) {
		return r.Lessons(ctx)
	}},
	"lessons-by-category": {needsArg: true, run: func(ctx context.Context, r *repository.Repository, arg string) (interface{}, error) {
		return r.LessonsByCategory(ctx, arg)
	}},
	"lesson": {needsArg: true, run: func(ctx context.Context, r *repository.Repository, arg string) (interface{}, error) {
		return r.Lesson(ctx, arg)
	}},
	"videos": {run: func(ctx context.Context, r *repository.Repository, _ string) (interface{}, error) {
		return r.Videos(ctx)
	}},
	"video": {needsArg: true, run: func(ctx context.Context, r *repository.Repository, arg string) (interface{}, error) {
		return r.Video(ctx, arg)
	}},
	"news": {run: func(ctx context.Context, r *repository.Repository, _ string) (interface{}, error) {
		return r.PublishedNews(ctx)
	}},
	"news-all": {run: func(ctx context.Context, r *repository.Repository, _ string) (interface{}, error) {
		return r.AllNews(ctx)
	}},
	"news-item": {needsArg: true, run: func(ctx context.Context, r *repository.Repository, arg string) (interface{}, error) {
		return r.News(ctx, arg)
	}},
	"podcasts": {run: func(ctx context.Context, r *repository.Repository, _ string) (interface{}, error) {
		return r.Podcasts(ctx)
	}},
	"podcast": {needsArg: true, run: func(ctx context.Context, r *repository.Repository, arg string) (interface{}, error) {
		return r.Podcast(ctx, arg)
	}},
	"flyers": {run: func(ctx context.Context, r *repository.Repository, _ string) (interface{}, error) {
		return r.Flyers(ctx)
	}},
	"flyer": {needsArg: true, run: func(ctx context.Context, r *repository.Repository, arg string) (interface{}, error) {
		return r.Flyer(ctx, arg)
	}},
	"alerts": {run: func(ctx context.Context, r *repository.Repository, _ string) (interface{}, error) {
		return r.ActiveAlerts(ctx)
	}},
	"daily-videos": {run: func(ctx context.Context, r *repository.Repository, _ string) (interface{}, error) {
		return r.DailyVideos(ctx)
	}},
	"schedule": {run: func(ctx context.Context, r *repository.Repository, _ string) (interface{}, error) {
		return r.WeeklySchedule(ctx)
	}},
}

func queryNames() []string {
	names := make([]string, 0, len(queries))
	for name := range queries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func runQuery(ctx context.Context, r *repository.Repository, name string, args []string) ([]byte, error) {
	q, ok := queries[name]
	if !ok {
		return nil, types.Errorf(types.ErrInvalidParameter, "unknown collection %q, expected one of %s", name, strings.Join(queryNames(), ", "))
	}

	arg := ""
	if q.needsArg {
		if len(args) == 0 || args[0] == "" {
			return nil, types.Errorf(types.ErrInvalidParameter, "%s requires an argument", name)
		}
		arg = args[0]
	}

	result, err := q.run(ctx, r, arg)
	if err != nil {
		return nil, err
	}

	return utils.Marshal(result)
}

var getCmd = &cobra.Command{
	Use:   "get <collection> [id|category]",
	Short: "Read a collection through the cache and print it as JSON",
	Args:  cobra.RangeArgs(1, 2),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		user, _ := cmd.Flags().GetString("user")
		privileged, _ := cmd.Flags().GetBool("privileged")

		if user != "" {
			if err := a.Session.SignIn(cmd.Context(), types.Identity{UserID: user, Privileged: privileged}); err != nil {
				return err
			}
		}

		data, err := runQuery(cmd.Context(), a.Repository, args[0], args[1:])
		if err != nil {
			return err
		}

		a.Cache.Wait()

		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	}),
}

func init() {
	rootCmd.AddCommand(getCmd)
	getCmd.Flags().String("user", "", "Sign in as this user before reading")
	getCmd.Flags().Bool("privileged", false, "Mark the signed-in user as privileged")
}
