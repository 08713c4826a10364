// Package seed populates a database with demo boards, posts, threads and
// engagement. Everything goes through the engagement core, so counters and
// invalidations behave exactly as they do for real traffic.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"agora/internal/models"
	"agora/internal/observability"
	"agora/internal/service"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/sync/errgroup"
)

// Target is the subset of service.Core the seeder drives.
type Target interface {
	CreateBoard(ctx context.Context, principal models.Principal, in service.CreateBoardInput) (*models.Board, error)
	CreatePost(ctx context.Context, principal models.Principal, in service.CreatePostInput) (*models.Content, error)
	CreateComment(ctx context.Context, principal models.Principal, in service.CreateCommentInput) (*models.Content, error)
	ToggleEngagement(ctx context.Context, principal models.Principal, ref models.ContentRef, d models.Direction) (*service.ToggleResult, error)
	RecordView(ctx context.Context, postID uint) error
}

var _ Target = (*service.Core)(nil)

// Options configuration for the seeder
type Options struct {
	Boards          int
	PostsPerBoard   int
	CommentsPerPost int
	// ReplyPercent is the chance, 0-100, that a comment answers an earlier root comment.
	ReplyPercent int
	Accounts     int
	Visitors     int
	// EngagePercent is the chance, 0-100, that a principal engages with a given post.
	EngagePercent int
	Workers       int
	// FakerSeed makes the generated text reproducible. Zero picks a random seed.
	FakerSeed int64
}

// DefaultOptions is a small demo data set.
func DefaultOptions() Options {
	return Options{
		Boards:          4,
		PostsPerBoard:   6,
		CommentsPerPost: 5,
		ReplyPercent:    40,
		Accounts:        5,
		Visitors:        10,
		EngagePercent:   50,
		Workers:         4,
	}
}

// Summary counts what a Seed run created.
type Summary struct {
	Boards   int `json:"boards" yaml:"boards"`
	Posts    int `json:"posts" yaml:"posts"`
	Comments int `json:"comments" yaml:"comments"`
	Replies  int `json:"replies" yaml:"replies"`
	Toggles  int `json:"toggles" yaml:"toggles"`
	Views    int `json:"views" yaml:"views"`
	Skipped  int `json:"skipped" yaml:"skipped"`
}

type seeder struct {
	target Target
	opts   Options
	faker  *gofakeit.Faker
	people []models.Principal

	mu      sync.Mutex
	summary Summary
}

// Seed creates opts.Boards boards and fills them with posts, threads, views and
// toggles. Boards are created by account 1; content is spread over the other
// accounts and anonymous visitors.
func Seed(ctx context.Context, target Target, opts Options) (*Summary, error) {
	if opts.Boards < 0 || opts.PostsPerBoard < 0 || opts.CommentsPerPost < 0 {
		return nil, errors.New("seed counts must not be negative")
	}
	if opts.Accounts < 1 {
		opts.Accounts = 1
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	s := &seeder{target: target, opts: opts, faker: gofakeit.New(opts.FakerSeed)}
	for i := 1; i <= opts.Accounts; i++ {
		s.people = append(s.people, models.Account(uint(i)))
	}
	for i := 0; i < opts.Visitors; i++ {
		s.people = append(s.people, models.AnonymousSession(s.faker.UUID()))
	}

	observability.Logger.Info("seeding started",
		slog.Int("boards", opts.Boards), slog.Int("posts_per_board", opts.PostsPerBoard),
		slog.Int("principals", len(s.people)))

	var posts []*models.Content
	for i := 0; i < opts.Boards; i++ {
		board, err := s.board(ctx, i)
		if err != nil {
			return &s.summary, err
		}
		for j := 0; j < opts.PostsPerBoard; j++ {
			post, err := s.post(ctx, board)
			if err != nil {
				return &s.summary, err
			}
			posts = append(posts, post)
		}
	}

	for _, post := range posts {
		if err := s.thread(ctx, post); err != nil {
			return &s.summary, err
		}
	}

	if err := s.engage(ctx, posts); err != nil {
		return &s.summary, err
	}

	observability.Logger.Info("seeding finished",
		slog.Int("posts", s.summary.Posts), slog.Int("comments", s.summary.Comments),
		slog.Int("toggles", s.summary.Toggles), slog.Int("skipped", s.summary.Skipped))
	return &s.summary, nil
}

func (s *seeder) pick() models.Principal {
	return s.people[s.faker.Number(0, len(s.people)-1)]
}

func (s *seeder) chance(percent int) bool {
	return s.faker.Number(1, 100) <= percent
}

func (s *seeder) board(ctx context.Context, i int) (*models.Board, error) {
	style := models.StyleLike
	if i%2 == 1 {
		style = models.StyleVote
	}
	board, err := s.target.CreateBoard(ctx, s.people[0], service.CreateBoardInput{
		Name:        fmt.Sprintf("%s %s", s.faker.HipsterWord(), s.faker.UUID()[:6]),
		Description: s.faker.Sentence(10),
		Style:       string(style),
	})
	if err != nil {
		return nil, fmt.Errorf("create board: %w", err)
	}
	s.summary.Boards++
	return board, nil
}

func (s *seeder) post(ctx context.Context, board *models.Board) (*models.Content, error) {
	post, err := s.target.CreatePost(ctx, s.pick(), service.CreatePostInput{
		BoardID: board.ID,
		Title:   s.faker.Sentence(6),
		Body:    s.faker.Paragraph(1, 3, 12, "\n"),
	})
	if err != nil {
		return nil, fmt.Errorf("create post in board %d: %w", board.ID, err)
	}
	s.summary.Posts++
	return post, nil
}

func (s *seeder) thread(ctx context.Context, post *models.Content) error {
	var roots []uint
	for i := 0; i < s.opts.CommentsPerPost; i++ {
		in := service.CreateCommentInput{PostID: post.Ref.ID, Body: s.faker.Sentence(12)}
		reply := len(roots) > 0 && s.chance(s.opts.ReplyPercent)
		if reply {
			parent := roots[s.faker.Number(0, len(roots)-1)]
			in.ParentID = &parent
		}

		comment, err := s.target.CreateComment(ctx, s.pick(), in)
		if err != nil {
			return fmt.Errorf("create comment on post %d: %w", post.Ref.ID, err)
		}
		s.summary.Comments++
		if reply {
			s.summary.Replies++
		} else {
			roots = append(roots, comment.Ref.ID)
		}
	}
	return nil
}

// engage runs one worker per principal slot; conflicts from concurrent toggles
// on the same post are counted as skipped.
func (s *seeder) engage(ctx context.Context, posts []*models.Content) error {
	type job struct {
		principal models.Principal
		post      *models.Content
		direction models.Direction
	}

	var jobs []job
	for _, p := range s.people {
		for _, post := range posts {
			if !s.chance(s.opts.EngagePercent) {
				continue
			}
			d := models.DirectionLike
			if post.Style == models.StyleVote {
				d = models.DirectionUp
				if s.chance(30) {
					d = models.DirectionDown
				}
			}
			jobs = append(jobs, job{principal: p, post: post, direction: d})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for _, j := range jobs {
		g.Go(func() error {
			if err := s.target.RecordView(gctx, j.post.Ref.ID); err != nil {
				return fmt.Errorf("record view on post %d: %w", j.post.Ref.ID, err)
			}
			_, err := s.target.ToggleEngagement(gctx, j.principal, j.post.Ref, j.direction)

			s.mu.Lock()
			defer s.mu.Unlock()
			s.summary.Views++
			switch {
			case err == nil:
				s.summary.Toggles++
			case models.KindOf(err) == models.KindConflict:
				s.summary.Skipped++
			default:
				return fmt.Errorf("toggle %s on %s: %w", j.direction, j.post.Ref, err)
			}
			return nil
		})
	}
	return g.Wait()
}
