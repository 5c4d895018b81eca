package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/camppulse/internal/collect"
	"github.com/TobiSchelling/camppulse/internal/database"
	"github.com/TobiSchelling/camppulse/internal/fetch"
)

// --- collect / fetch commands ---

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect posts from every camp's board feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		result, err := runCollect(cmd.Context(), db)
		if err != nil {
			return err
		}

		fmt.Println("Collection complete:")
		fmt.Printf("  Total found: %d\n", result.TotalFound)
		fmt.Printf("  New posts: %d\n", result.NewPosts)
		fmt.Printf("  Duplicates skipped: %d\n", result.Duplicates)
		if result.FailedFeeds > 0 {
			fmt.Printf("  Failed feeds: %d\n", result.FailedFeeds)
		}

		if len(result.PerCamp) > 0 {
			fmt.Println("\nNew posts by camp:")
			camps := make([]string, 0, len(result.PerCamp))
			for id := range result.PerCamp {
				camps = append(camps, id)
			}
			sort.Slice(camps, func(i, j int) bool { return result.PerCamp[camps[i]] > result.PerCamp[camps[j]] })
			for _, id := range camps {
				fmt.Printf("  %s: %d\n", id, result.PerCamp[id])
			}
		}
		return nil
	},
}

var fetchCamp string

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch bodies of link-only posts",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		f := fetch.NewContentFetcher(db, cfg.Collect.FetchTimeout.Std(), logger)
		result, err := f.FetchMissingContent(cmd.Context(), fetchCamp)
		if err != nil {
			return err
		}
		fmt.Printf("Fetched %d, failed %d, skipped %d\n", result.Fetched, result.Failed, result.Skipped)
		return nil
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchCamp, "camp", "", "Only fetch posts of this camp")
}

func runCollect(ctx context.Context, db *database.DB) (*collect.Result, error) {
	camps, err := db.GetAllCamps()
	if err != nil {
		return nil, fmt.Errorf("listing camps: %w", err)
	}
	return collect.NewCollector(db, cfg.Collect.MaxPerFeed, logger).Collect(ctx, camps), nil
}

// ingest collects every feed and fills missing bodies. It runs before
// scheduled analysis.
func ingest(db *database.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if _, err := runCollect(ctx, db); err != nil {
			return err
		}
		f := fetch.NewContentFetcher(db, cfg.Collect.FetchTimeout.Std(), logger)
		_, err := f.FetchMissingContent(ctx, "")
		return err
	}
}

// --- posts command ---

var postsCmd = &cobra.Command{
	Use:   "posts",
	Short: "Manage posts",
}

var (
	postCamp   string
	postAuthor string
	postText   string
	postAt     string
)

var postsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Submit a post by hand",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		camp, err := db.GetCamp(postCamp)
		if err != nil {
			return err
		}
		if camp == nil {
			return fmt.Errorf("camp %q not found", postCamp)
		}

		created := time.Now()
		if postAt != "" {
			loc, _ := cfg.Location()
			if created, err = time.ParseInLocation("2006-01-02 15:04", postAt, loc); err != nil {
				return fmt.Errorf("invalid --at %q, want YYYY-MM-DD HH:MM", postAt)
			}
		}

		p := database.Post{
			ID:             uuid.NewString(),
			CampID:         postCamp,
			AuthorID:       collect.Pseudonym(postAuthor),
			Role:           database.RoleStudent,
			Body:           postText,
			ContentFetched: true,
			CreatedAt:      created.UTC(),
		}
		if _, err := db.InsertPost(p); err != nil {
			return err
		}
		fmt.Printf("Added post %s to %s\n", p.ID, postCamp)
		return nil
	},
}

func init() {
	postsAddCmd.Flags().StringVar(&postCamp, "camp", "", "Camp ID")
	postsAddCmd.Flags().StringVar(&postAuthor, "author", "", "Author name, stored as a pseudonym")
	postsAddCmd.Flags().StringVar(&postText, "text", "", "Post body")
	postsAddCmd.Flags().StringVar(&postAt, "at", "", "Creation time (YYYY-MM-DD HH:MM, camp timezone)")
	postsAddCmd.MarkFlagRequired("camp")
	postsAddCmd.MarkFlagRequired("text")
	postsCmd.AddCommand(postsAddCmd)
}

// --- camps command ---

var campsCmd = &cobra.Command{
	Use:   "camps",
	Short: "Manage camps",
}

var campsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all camps",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		camps, err := db.GetAllCamps()
		if err != nil {
			return err
		}
		if len(camps) == 0 {
			fmt.Println("No camps defined. Add one with: camppulse camps add")
			return nil
		}
		for _, c := range camps {
			feed := "no feed"
			if c.BoardFeedURL != nil {
				feed = *c.BoardFeedURL
			}
			fmt.Printf("  %s  %s  (%s)\n", c.ID, c.Name, feed)
		}
		return nil
	},
}

var campFeed string

var campsAddCmd = &cobra.Command{
	Use:   "add [id] [name]",
	Short: "Add or update a camp",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		var feed *string
		if campFeed != "" {
			feed = &campFeed
		}
		if err := db.InsertCamp(args[0], args[1], feed); err != nil {
			return err
		}
		fmt.Printf("Saved camp %s: %s\n", args[0], args[1])
		return nil
	},
}

func init() {
	campsAddCmd.Flags().StringVar(&campFeed, "feed", "", "Board feed URL (RSS or Atom)")
	campsCmd.AddCommand(campsListCmd)
	campsCmd.AddCommand(campsAddCmd)
}

// --- categories command ---

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "Manage a camp's category template",
}

var categoriesListCmd = &cobra.Command{
	Use:   "list [camp]",
	Short: "List the category template of a camp",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		cats, err := db.GetCategories(args[0])
		if err != nil {
			return err
		}
		if len(cats) == 0 {
			fmt.Printf("No categories for %s; topics will be filed under \"other\".\n", args[0])
			return nil
		}
		for _, c := range cats {
			icon := " "
			if c.IsActive {
				icon = "*"
			}
			fmt.Printf("  [%d] %s %s\n", c.ID, icon, c.Label)
			if c.Description != nil && *c.Description != "" {
				fmt.Printf("        %s\n", *c.Description)
			}
		}
		return nil
	},
}

var categoriesAddCmd = &cobra.Command{
	Use:   "add [camp] [label] [description]",
	Short: "Append a category to a camp's template",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		var desc *string
		if len(args) > 2 {
			desc = &args[2]
		}
		id, err := db.InsertCategory(args[0], args[1], desc)
		if err != nil {
			return err
		}
		fmt.Printf("Added category [%d]: %s\n", id, args[1])
		return nil
	},
}

var categoriesToggleCmd = &cobra.Command{
	Use:   "toggle [id]",
	Short: "Toggle a category's active state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		cat, err := lookupCategory(db, args[0])
		if err != nil {
			return err
		}
		if err := db.ToggleCategory(cat.ID); err != nil {
			return err
		}
		newState := "disabled"
		if !cat.IsActive {
			newState = "enabled"
		}
		fmt.Printf("Category [%d] %s: %s\n", cat.ID, cat.Label, newState)
		return nil
	},
}

var categoriesRemoveCmd = &cobra.Command{
	Use:   "remove [id]",
	Short: "Remove a category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		cat, err := lookupCategory(db, args[0])
		if err != nil {
			return err
		}
		if err := db.DeleteCategory(cat.ID); err != nil {
			return err
		}
		fmt.Printf("Removed category [%d]: %s\n", cat.ID, cat.Label)
		return nil
	},
}

func lookupCategory(db *database.DB, arg string) (*database.CategoryTemplate, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid category ID: %s", arg)
	}
	cat, err := db.GetCategory(id)
	if err != nil {
		return nil, err
	}
	if cat == nil {
		return nil, fmt.Errorf("category %d not found", id)
	}
	return cat, nil
}

func init() {
	categoriesCmd.AddCommand(categoriesListCmd)
	categoriesCmd.AddCommand(categoriesAddCmd)
	categoriesCmd.AddCommand(categoriesToggleCmd)
	categoriesCmd.AddCommand(categoriesRemoveCmd)
}
