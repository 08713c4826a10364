package service

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"agora/internal/cache"
	"agora/internal/identity"
	"agora/internal/models"
	"agora/internal/repository"
	"agora/internal/testutil"
	"agora/internal/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// contentStoreStub is a stub for repository.ContentStore.
type contentStoreStub struct {
	getContentFn func(context.Context, models.ContentRef) (*models.Content, error)
	getEdgeFn    func(context.Context, models.ContentRef, models.Principal) (*models.EngagementEdge, error)
	applyEdgeFn  func(context.Context, models.EdgeTransition) error
	applyDeltaFn func(context.Context, models.ContentRef, models.CounterField, int64) error
	updateBodyFn func(context.Context, models.ContentRef, *string, string, time.Time) error
	setDeletedFn func(context.Context, models.ContentRef, time.Time) error
	insertFn     func(context.Context, *models.Comment) error
	listByPostFn func(context.Context, uint) ([]*models.Comment, error)
}

func (s *contentStoreStub) GetContent(ctx context.Context, ref models.ContentRef) (*models.Content, error) {
	return s.getContentFn(ctx, ref)
}
func (s *contentStoreStub) GetEdge(ctx context.Context, ref models.ContentRef, p models.Principal) (*models.EngagementEdge, error) {
	return s.getEdgeFn(ctx, ref, p)
}
func (s *contentStoreStub) ApplyEdgeTransition(ctx context.Context, t models.EdgeTransition) error {
	return s.applyEdgeFn(ctx, t)
}
func (s *contentStoreStub) ApplyCounterDelta(ctx context.Context, ref models.ContentRef, f models.CounterField, d int64) error {
	return s.applyDeltaFn(ctx, ref, f, d)
}
func (s *contentStoreStub) UpdateBody(ctx context.Context, ref models.ContentRef, title *string, body string, at time.Time) error {
	return s.updateBodyFn(ctx, ref, title, body, at)
}
func (s *contentStoreStub) SetDeleted(ctx context.Context, ref models.ContentRef, at time.Time) error {
	return s.setDeletedFn(ctx, ref, at)
}
func (s *contentStoreStub) InsertComment(ctx context.Context, c *models.Comment) error {
	return s.insertFn(ctx, c)
}
func (s *contentStoreStub) ListCommentsByPost(ctx context.Context, postID uint) ([]*models.Comment, error) {
	return s.listByPostFn(ctx, postID)
}

func failOnWrite(t *testing.T) *contentStoreStub {
	unexpected := func(name string) { t.Helper(); t.Fatalf("unexpected store call %s", name) }
	return &contentStoreStub{
		getContentFn: func(context.Context, models.ContentRef) (*models.Content, error) {
			return nil, models.NewNotFoundError("content", 0)
		},
		getEdgeFn: func(context.Context, models.ContentRef, models.Principal) (*models.EngagementEdge, error) {
			return nil, nil
		},
		applyEdgeFn:  func(context.Context, models.EdgeTransition) error { unexpected("ApplyEdgeTransition"); return nil },
		applyDeltaFn: func(context.Context, models.ContentRef, models.CounterField, int64) error { unexpected("ApplyCounterDelta"); return nil },
		updateBodyFn: func(context.Context, models.ContentRef, *string, string, time.Time) error { unexpected("UpdateBody"); return nil },
		setDeletedFn: func(context.Context, models.ContentRef, time.Time) error { unexpected("SetDeleted"); return nil },
		insertFn:     func(context.Context, *models.Comment) error { unexpected("InsertComment"); return nil },
		listByPostFn: func(context.Context, uint) ([]*models.Comment, error) { return nil, nil },
	}
}

var _ repository.ContentStore = (*contentStoreStub)(nil)

// recordingSink captures every invalidation call.
type recordingSink struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (s *recordingSink) Invalidate(_ context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, append([]string(nil), keys...))
	return s.err
}

func (s *recordingSink) Calls() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]string(nil), s.calls...)
}

type scenario struct {
	db   *gorm.DB
	core *Core
	sink *recordingSink
}

func newScenario(t *testing.T) *scenario {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	sink := &recordingSink{}
	core := NewCore(
		repository.NewContentStore(db),
		repository.NewBoardStore(db),
		identity.NewResolver(),
		sink,
		cache.NewAside(nil),
		Options{Limits: validation.DefaultLimits(), ToggleRetryBase: time.Millisecond},
	)
	return &scenario{db: db, core: core, sink: sink}
}

func assertKind(t *testing.T, want models.ErrorKind, err error) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, want, models.KindOf(err), "error: %v", err)
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
