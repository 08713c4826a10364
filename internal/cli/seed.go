package cli

import (
	"fmt"
	"io"

	"agora/internal/bootstrap"
	"agora/internal/cache"
	"agora/internal/database"
	"agora/internal/seed"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

type seedReport struct {
	BuiltInBoards int          `yaml:"built_in_boards"`
	Summary       seed.Summary `yaml:"summary"`
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := seed.DefaultOptions()
	var builtins, withRedis bool

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate the database with demo boards, threads and engagement",
		Long: `Create demo content through the engagement core so that every counter
and invalidation follows the same path as live traffic. Built-in boards are
ensured first unless --builtins=false.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := rootOpts.connect()
			if err != nil {
				return err
			}
			defer closeDB(db)

			if cfg.IsProduction() {
				return NewExitError(ExitCommandError, "refusing to seed a production database")
			}

			ctx := cmd.Context()
			if err := database.ApplySchema(ctx, db, cfg); err != nil {
				return WrapExitError(ExitFailure, "apply schema", err)
			}

			var report seedReport
			if builtins {
				if report.BuiltInBoards, err = seed.EnsureBuiltInBoards(ctx, db); err != nil {
					return WrapExitError(ExitFailure, "built-in boards", err)
				}
			}

			var rdb *redis.Client
			if withRedis {
				if rdb, err = cache.NewClient(ctx, cfg.RedisURL); err != nil {
					return WrapExitError(ExitCommandError, "connect redis", err)
				}
				defer func() { _ = rdb.Close() }()
			}

			summary, err := seed.Seed(ctx, bootstrap.NewCore(cfg, db, rdb, nil), opts)
			if summary != nil {
				report.Summary = *summary
			}
			if err != nil {
				return WrapExitError(ExitFailure, "seed", err)
			}

			return emit(cmd.OutOrStdout(), rootOpts.Format, report, func(w io.Writer) {
				s := report.Summary
				_, _ = fmt.Fprintf(w, "built-in boards created: %d\n", report.BuiltInBoards)
				_, _ = fmt.Fprintf(w, "boards=%d posts=%d comments=%d replies=%d toggles=%d views=%d skipped=%d\n",
					s.Boards, s.Posts, s.Comments, s.Replies, s.Toggles, s.Views, s.Skipped)
			})
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.Boards, "boards", opts.Boards, "boards to create")
	f.IntVar(&opts.PostsPerBoard, "posts", opts.PostsPerBoard, "posts per board")
	f.IntVar(&opts.CommentsPerPost, "comments", opts.CommentsPerPost, "comments per post")
	f.IntVar(&opts.ReplyPercent, "reply-percent", opts.ReplyPercent, "chance a comment is a reply (0-100)")
	f.IntVar(&opts.Accounts, "accounts", opts.Accounts, "account principals to act as")
	f.IntVar(&opts.Visitors, "visitors", opts.Visitors, "anonymous principals to act as")
	f.IntVar(&opts.EngagePercent, "engage-percent", opts.EngagePercent, "chance a principal engages with a post (0-100)")
	f.IntVar(&opts.Workers, "workers", opts.Workers, "concurrent engagement workers")
	f.Int64Var(&opts.FakerSeed, "faker-seed", 0, "seed for reproducible text (0 = random)")
	f.BoolVar(&builtins, "builtins", true, "ensure the built-in boards")
	f.BoolVar(&withRedis, "redis", false, "publish invalidations to REDIS_URL while seeding")

	return cmd
}
