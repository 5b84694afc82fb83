package editor_test

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hoolgg/hool/gateway/editor"
	"github.com/hoolgg/hool/gateway/model"
	"github.com/hoolgg/hool/gateway/optimistic"
	"github.com/hoolgg/hool/gateway/testutil"
	"github.com/hoolgg/hool/gateway/upstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const owner int64 = 42

// fakeProgress serves the task checklist, crest and profession endpoints of
// the progress service, and the candidate endpoints of recruitment.
type fakeProgress struct {
	*testutil.FakeService

	mu          sync.Mutex
	failWrites  bool
	crestBodies []model.CrestEntry
	toggles     []model.TaskToggle
	candidates  []model.RecruitmentCandidate
}

func newFakeProgress(t *testing.T) *fakeProgress {
	f := &fakeProgress{
		FakeService: testutil.NewFakeService(t),
		candidates: []model.RecruitmentCandidate{
			{ID: "c1", CandidateName: "Sylvanas", Rating: 3, Status: "new", CategoryID: "10"},
			{ID: "c2", CandidateName: "Anduin", Rating: 4, Status: "contacted"},
		},
	}
	e := f.Engine
	e.GET("/guilds/:id/characters/:cid/tasks", func(c *gin.Context) {
		c.JSON(http.StatusOK, model.TasksResponse{
			CharacterID: model.ID(c.Param("cid")), CharacterName: "Rexxar", CurrentWeek: 3,
			Weekly: []model.TaskItem{{ID: "w1", Label: "Raid"}, {ID: "w2", Label: "Delves", Done: true}},
			Daily:  []model.TaskItem{{ID: "d1", Label: "Dailies"}},
		})
	})
	e.POST("/guilds/:id/characters/:cid/tasks", func(c *gin.Context) {
		var body model.TaskToggle
		_ = c.ShouldBindJSON(&body)
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failWrites {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Progress store unavailable"})
			return
		}
		f.toggles = append(f.toggles, body)
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
	e.POST("/users/me/characters/:cid/crests", func(c *gin.Context) {
		var body model.CrestEntry
		_ = c.ShouldBindJSON(&body)
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failWrites {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Progress store unavailable"})
			return
		}
		f.crestBodies = append(f.crestBodies, body)
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
	e.GET("/guilds/:id/recruitment/candidates", func(c *gin.Context) {
		f.mu.Lock()
		defer f.mu.Unlock()
		c.JSON(http.StatusOK, model.CandidateListResponse{Candidates: f.candidates, Count: len(f.candidates)})
	})
	e.PUT("/guilds/:id/recruitment/candidates/:cand", func(c *gin.Context) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failWrites {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Rating rejected"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
	e.PUT("/guilds/:id/recruitment/candidates/:cand/status", func(c *gin.Context) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failWrites {
			c.JSON(http.StatusBadGateway, gin.H{"error": "Pipeline unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
	return f
}

func (f *fakeProgress) setFailWrites(v bool) {
	f.mu.Lock()
	f.failWrites = v
	f.mu.Unlock()
}

func (f *fakeProgress) crests() []model.CrestEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.CrestEntry(nil), f.crestBodies...)
}

func newService(t *testing.T, window time.Duration) (*editor.Service, *fakeProgress) {
	t.Helper()
	f := newFakeProgress(t)
	client, err := upstream.New("progress", f.URL())
	require.NoError(t, err)
	state, _ := testutil.SetupTestCache(t)
	svc := editor.New(client, client, state, editor.Options{
		Window:       window,
		WriteTimeout: 2 * time.Second,
		CrestCap:     100,
		StateTTL:     time.Hour,
	}, zap.NewNop())
	t.Cleanup(svc.Close)
	return svc, f
}

func session() *upstream.Session {
	return upstream.NewSession([]*http.Cookie{{Name: "access_token", Value: "good"}})
}

func TestToggleTask_Commits(t *testing.T) {
	svc, f := newService(t, time.Second)
	ctx := context.Background()

	res, err := svc.ToggleTask(ctx, session(), owner, "77", "501",
		model.TaskToggle{TaskID: "w1", TaskType: model.TaskWeekly, WeekNumber: 3, Completed: true})
	require.NoError(t, err)
	assert.Equal(t, optimistic.Committed, res.Outcome)
	assert.NoError(t, res.Err)

	task := res.Tasks.Task(model.TaskWeekly, "w1")
	require.NotNil(t, task)
	assert.True(t, task.Done)
	assert.NotNil(t, task.CompletedAt)
	assert.Equal(t, 1, f.Calls(http.MethodGet, "/guilds/77/characters/501/tasks"), "checklist loaded once")

	// The second toggle uses the working state without reloading.
	_, err = svc.ToggleTask(ctx, session(), owner, "77", "501",
		model.TaskToggle{TaskID: "d1", TaskType: model.TaskDaily, Completed: true})
	require.NoError(t, err)
	assert.Equal(t, 1, f.Calls(http.MethodGet, "/guilds/77/characters/501/tasks"))
	assert.Equal(t, 2, f.Calls(http.MethodPost, "/guilds/77/characters/501/tasks"))
}

func TestToggleTask_RollbackRevertsOnlyThatTask(t *testing.T) {
	svc, f := newService(t, time.Second)
	ctx := context.Background()

	_, err := svc.ToggleTask(ctx, session(), owner, "77", "501",
		model.TaskToggle{TaskID: "d1", TaskType: model.TaskDaily, Completed: true})
	require.NoError(t, err)

	f.setFailWrites(true)
	res, err := svc.ToggleTask(ctx, session(), owner, "77", "501",
		model.TaskToggle{TaskID: "w2", TaskType: model.TaskWeekly, Completed: false})
	require.NoError(t, err)
	assert.Equal(t, optimistic.RolledBack, res.Outcome)
	assert.ErrorIs(t, res.Err, optimistic.ErrRolledBack)
	assert.Equal(t, "Progress store unavailable", upstream.UserMessage(res.Err))

	assert.True(t, res.Tasks.Task(model.TaskWeekly, "w2").Done, "failed toggle reverted")
	assert.True(t, res.Tasks.Task(model.TaskDaily, "d1").Done, "earlier toggle kept")
	assert.False(t, res.Tasks.Task(model.TaskWeekly, "w1").Done, "untouched task unchanged")
}

func TestToggleTask_UnknownTask(t *testing.T) {
	svc, _ := newService(t, time.Second)
	_, err := svc.ToggleTask(context.Background(), session(), owner, "77", "501",
		model.TaskToggle{TaskID: "nope", TaskType: model.TaskWeekly, Completed: true})
	assert.ErrorIs(t, err, editor.ErrNotFound)
}

func TestClampCrest(t *testing.T) {
	assert.Equal(t, 0, editor.ClampCrest(-5, 100))
	assert.Equal(t, 40, editor.ClampCrest(40, 100))
	assert.Equal(t, 100, editor.ClampCrest(100, 100))
	assert.Equal(t, 100, editor.ClampCrest(250, 100))
	assert.Equal(t, 250, editor.ClampCrest(250, 0), "no cap")
}

func TestEditCrest_RapidEditsWriteOnce(t *testing.T) {
	svc, f := newService(t, 50*time.Millisecond)
	ctx := context.Background()
	key := editor.CrestKey("501", "Gilded", 3)

	for _, n := range []int{10, 20, 30, 90, 140} {
		d, err := svc.EditCrest(ctx, session(), owner, "501",
			model.CrestEntry{CrestType: "Gilded", WeekNumber: 3, Collected: n})
		require.NoError(t, err)
		assert.Equal(t, editor.DraftPending, d.Status)
	}
	assert.True(t, svc.Pending(owner, key))

	require.Eventually(t, func() bool { return len(f.crests()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 100, f.crests()[0].Collected, "last value, clamped to the cap")

	require.Eventually(t, func() bool {
		drafts, err := svc.Drafts(ctx, owner)
		return err == nil && len(drafts) == 1 && drafts[0].Status == editor.DraftSaved
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Len(t, f.crests(), 1, "no further writes")
}

func TestCommit_FlushesImmediately(t *testing.T) {
	svc, f := newService(t, time.Hour)
	ctx := context.Background()
	key := editor.CrestKey("501", "Runed", 3)

	_, err := svc.EditCrest(ctx, session(), owner, "501", model.CrestEntry{CrestType: "Runed", WeekNumber: 3, Collected: 12})
	require.NoError(t, err)

	d, flushed, err := svc.Commit(ctx, owner, key)
	require.NoError(t, err)
	assert.True(t, flushed)
	assert.Equal(t, editor.DraftSaved, d.Status)
	require.Len(t, f.crests(), 1)
	assert.Equal(t, 12, f.crests()[0].Collected)

	var v model.CrestEntry
	require.NoError(t, json.Unmarshal(d.Value, &v))
	assert.Equal(t, 12, v.Collected)

	_, flushed, err = svc.Commit(ctx, owner, key)
	require.NoError(t, err)
	assert.False(t, flushed, "nothing left to write")
	assert.Len(t, f.crests(), 1)
}

func TestCommit_UnknownDraft(t *testing.T) {
	svc, _ := newService(t, time.Hour)
	_, _, err := svc.Commit(context.Background(), owner, "crest:nope:Gilded:1")
	assert.ErrorIs(t, err, editor.ErrNotFound)
}

func TestEditCrest_FailedWriteMarksDraft(t *testing.T) {
	svc, f := newService(t, time.Hour)
	ctx := context.Background()
	f.setFailWrites(true)
	key := editor.CrestKey("501", "Carved", 3)

	_, err := svc.EditCrest(ctx, session(), owner, "501", model.CrestEntry{CrestType: "Carved", WeekNumber: 3, Collected: 7})
	require.NoError(t, err)
	d, _, err := svc.Commit(ctx, owner, key)
	require.NoError(t, err)
	assert.Equal(t, editor.DraftFailed, d.Status)
	assert.Equal(t, "Progress store unavailable", d.Error)
}

func TestDiscard_DropsPendingEdit(t *testing.T) {
	svc, f := newService(t, time.Hour)
	ctx := context.Background()
	key := editor.CrestKey("501", "Weathered", 3)

	_, err := svc.EditCrest(ctx, session(), owner, "501", model.CrestEntry{CrestType: "Weathered", WeekNumber: 3, Collected: 5})
	require.NoError(t, err)
	require.NoError(t, svc.Discard(ctx, owner, key))

	assert.False(t, svc.Pending(owner, key))
	drafts, err := svc.Drafts(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, drafts)

	svc.Close()
	assert.Empty(t, f.crests(), "discarded edit never written")
}

func TestDrafts_AreScopedToOwner(t *testing.T) {
	svc, _ := newService(t, time.Hour)
	ctx := context.Background()

	_, err := svc.EditNotes(ctx, session(), owner, "77", "c1", "great parses")
	require.NoError(t, err)
	_, err = svc.EditNotes(ctx, session(), owner+1, "77", "c1", "other officer")
	require.NoError(t, err)

	drafts, err := svc.Drafts(ctx, owner)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, editor.NotesKey("77", "c1"), drafts[0].Key)
	assert.JSONEq(t, `{"notes":"great parses"}`, string(drafts[0].Value))
}

func TestRateCandidate(t *testing.T) {
	svc, f := newService(t, time.Second)
	ctx := context.Background()

	res, err := svc.RateCandidate(ctx, session(), owner, "77", "c1", 5)
	require.NoError(t, err)
	assert.Equal(t, optimistic.Committed, res.Outcome)
	assert.Equal(t, 5, res.Candidate.Rating)

	f.setFailWrites(true)
	res, err = svc.RateCandidate(ctx, session(), owner, "77", "c1", 1)
	require.NoError(t, err)
	assert.Equal(t, optimistic.RolledBack, res.Outcome)
	assert.Equal(t, 5, res.Candidate.Rating, "reverted to the last committed rating")
	assert.Equal(t, http.StatusBadRequest, upstream.GatewayStatus(res.Err))
}

func TestMoveCandidate_RollbackKeepsOtherFields(t *testing.T) {
	svc, f := newService(t, time.Second)
	ctx := context.Background()

	_, err := svc.RateCandidate(ctx, session(), owner, "77", "c1", 4)
	require.NoError(t, err)

	f.setFailWrites(true)
	res, err := svc.MoveCandidate(ctx, session(), owner, "77", "c1",
		model.CandidateStatusUpdate{Status: "trial", CategoryID: "11"})
	require.NoError(t, err)
	assert.Equal(t, optimistic.RolledBack, res.Outcome)
	assert.Equal(t, "new", res.Candidate.Status)
	assert.Equal(t, model.ID("10"), res.Candidate.CategoryID)
	assert.Equal(t, 4, res.Candidate.Rating)
}

func TestMoveCandidate_UnknownCandidate(t *testing.T) {
	svc, f := newService(t, time.Second)
	_, err := svc.MoveCandidate(context.Background(), session(), owner, "77", "c9", model.CandidateStatusUpdate{Status: "trial"})
	assert.ErrorIs(t, err, editor.ErrNotFound)
	assert.Equal(t, 1, f.Calls(http.MethodGet, "/guilds/77/recruitment/candidates"))
}
