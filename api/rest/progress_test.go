package rest_test

import (
	"net/http"
	"testing"

	"github.com/hoolgg/hool/gateway/editor"
	"github.com/hoolgg/hool/gateway/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tasksRoute = "/guilds/:id/characters/:cid/tasks"

func TestOverview_AllSections(t *testing.T) {
	g := newGateway(t, raider)

	w := g.get("/api/guilds/77/progress/overview")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out model.ProgressOverview
	require.NoError(t, jsonUnmarshal(w, &out))
	assert.Contains(t, string(out.Characters), "Rexxar")
	assert.Contains(t, string(out.Message), "Push Gallywix")
	assert.JSONEq(t, `{"weeks":[1,2,3]}`, string(out.Roadmap))
	assert.Empty(t, out.Errors)
}

func TestOverview_PartialFailureKeepsOtherSections(t *testing.T) {
	g := newGateway(t, raider)
	g.tools.fail(http.MethodGet, "/guilds/:id/progress/roadmap", http.StatusInternalServerError)

	w := g.get("/api/guilds/77/progress/overview")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out model.ProgressOverview
	require.NoError(t, jsonUnmarshal(w, &out))
	assert.Contains(t, string(out.Characters), "Rexxar")
	assert.Equal(t, "null", string(out.Roadmap))
	assert.Equal(t, map[string]string{"roadmap": "Upstream broke"}, out.Errors)
}

func TestOverview_AllSectionsFailing(t *testing.T) {
	g := newGateway(t, raider)
	for _, route := range []string{"characters", "message", "roadmap"} {
		g.tools.fail(http.MethodGet, "/guilds/:id/progress/"+route, http.StatusServiceUnavailable)
	}

	w := g.get("/api/guilds/77/progress/overview")
	require.Equal(t, http.StatusBadGateway, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Upstream broke", body["error"])
	assert.Equal(t, true, body["retryable"])
}

func TestTeamProgress(t *testing.T) {
	g := newGateway(t, raider)

	w := g.get("/api/guilds/77/team-progress")
	require.Equal(t, http.StatusOK, w.Code)
	var out model.TeamProgress
	require.NoError(t, jsonUnmarshal(w, &out))
	assert.Contains(t, string(out.Members), "Jaina")
}

func TestProgress_DisabledToolBlocksEveryRoute(t *testing.T) {
	g := newGateway(t, gm)
	g.guild.SetPermissions("77", []model.GuildPermission{perm("progress", 9, false), perm("recruitment", 1, true)})

	for _, path := range []string{
		"/api/guilds/77/progress/overview",
		"/api/guilds/77/progress/members",
		"/api/guilds/77/characters/501/tasks",
	} {
		w := g.get(path)
		require.Equal(t, http.StatusForbidden, w.Code, path)
		assert.Equal(t, "disabled", decode(t, w)["reason"], path)
	}
	assert.Zero(t, g.tools.Calls(http.MethodGet, "/guilds/77/progress/members"))
}

func TestProgress_ProxiedReadsAndOfficerWrites(t *testing.T) {
	g := newGateway(t, raider)

	w := g.get("/api/guilds/77/progress/members")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, g.tools.Calls(http.MethodGet, "/guilds/77/progress/members"))

	w = g.do(http.MethodPut, "/api/guilds/77/progress/message", map[string]string{"gm_message": "Mine"})
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Zero(t, g.tools.Calls(http.MethodPut, "/guilds/77/progress/message"))

	o := newGateway(t, officer)
	w = o.do(http.MethodPut, "/api/guilds/77/progress/message", map[string]string{"gm_message": "Clear the raid"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, o.tools.Calls(http.MethodPut, "/guilds/77/progress/message"))
}

func TestToggleTask_Commits(t *testing.T) {
	g := newGateway(t, raider)

	w := g.do(http.MethodPost, "/api/guilds/77/characters/501/tasks",
		model.TaskToggle{TaskID: "w1", TaskType: model.TaskWeekly, WeekNumber: 3, Completed: true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out struct {
		Tasks   model.TasksResponse `json:"tasks"`
		Outcome string              `json:"outcome"`
	}
	require.NoError(t, jsonUnmarshal(w, &out))
	assert.Equal(t, "committed", out.Outcome)
	assert.True(t, out.Tasks.Task(model.TaskWeekly, "w1").Done)
	assert.NotNil(t, out.Tasks.Task(model.TaskWeekly, "w1").CompletedAt)
	assert.Equal(t, 1, g.tools.Calls(http.MethodPost, "/guilds/77/characters/501/tasks"))
}

func TestToggleTask_RollbackRevertsOnlyThatTask(t *testing.T) {
	g := newGateway(t, raider)

	w := g.do(http.MethodPost, "/api/guilds/77/characters/501/tasks",
		model.TaskToggle{TaskID: "w1", TaskType: model.TaskWeekly, Completed: true})
	require.Equal(t, http.StatusOK, w.Code)

	g.tools.fail(http.MethodPost, tasksRoute, http.StatusInternalServerError)
	w = g.do(http.MethodPost, "/api/guilds/77/characters/501/tasks",
		model.TaskToggle{TaskID: "w2", TaskType: model.TaskWeekly, Completed: true})
	require.Equal(t, http.StatusBadGateway, w.Code, w.Body.String())

	var out struct {
		Tasks     model.TasksResponse `json:"tasks"`
		Outcome   string              `json:"outcome"`
		Error     string              `json:"error"`
		Retryable bool                `json:"retryable"`
	}
	require.NoError(t, jsonUnmarshal(w, &out))
	assert.Equal(t, "rolled_back", out.Outcome)
	assert.Equal(t, "Upstream broke", out.Error)
	assert.True(t, out.Retryable)
	assert.False(t, out.Tasks.Task(model.TaskWeekly, "w2").Done, "failed toggle is reverted")
	assert.True(t, out.Tasks.Task(model.TaskWeekly, "w1").Done, "earlier toggle survives")
}

func TestToggleTask_Validation(t *testing.T) {
	g := newGateway(t, raider)

	w := g.do(http.MethodPost, "/api/guilds/77/characters/501/tasks",
		map[string]interface{}{"task_id": "w1", "task_type": "monthly"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = g.do(http.MethodPost, "/api/guilds/77/characters/501/tasks",
		model.TaskToggle{TaskID: "nope", TaskType: model.TaskDaily, Completed: true})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Zero(t, g.tools.Calls(http.MethodPost, "/guilds/77/characters/501/tasks"))
}

func TestEditCrest_DebouncedUntilCommit(t *testing.T) {
	g := newGateway(t, raider)

	for _, n := range []int{10, 40, 90, 140} {
		w := g.do(http.MethodPut, "/api/characters/501/crests",
			model.CrestEntry{CrestType: "Runed", WeekNumber: 3, Collected: n})
		require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
		assert.Equal(t, "pending", decode(t, w)["status"])
	}
	assert.Empty(t, g.tools.crests(), "nothing is written while edits are pending")

	key := editor.CrestKey("501", "Runed", 3)
	w := g.do(http.MethodPost, "/api/drafts/"+key+"/commit", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, true, body["flushed"])
	draft := body["draft"].(map[string]interface{})
	assert.Equal(t, "saved", draft["status"])

	posts := g.tools.crests()
	require.Len(t, posts, 1)
	assert.Equal(t, 100, posts[0].Collected, "count is clamped to the weekly cap")

	w = g.do(http.MethodPost, "/api/drafts/"+key+"/commit", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["flushed"])
	assert.Len(t, g.tools.crests(), 1)
}

func TestDrafts_ListAndDiscard(t *testing.T) {
	g := newGateway(t, raider)

	w := g.do(http.MethodPut, "/api/characters/501/crests", model.CrestEntry{CrestType: "Gilded", WeekNumber: 1, Collected: 5})
	require.Equal(t, http.StatusAccepted, w.Code)

	w = g.get("/api/drafts")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	key := editor.CrestKey("501", "Gilded", 1)
	require.Equal(t, http.StatusNoContent, g.do(http.MethodDelete, "/api/drafts/"+key, nil).Code)
	assert.Equal(t, http.StatusNotFound, g.do(http.MethodPost, "/api/drafts/"+key+"/commit", nil).Code)
	assert.Empty(t, g.tools.crests(), "a discarded edit is never written")
}

func TestCrests_ReadsCallerCounters(t *testing.T) {
	g := newGateway(t, raider)

	w := g.get("/api/characters/501/crests?week=3")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "501", body["character_id"])
	assert.Equal(t, "3", body["week"])
	assert.Len(t, body["crests"], 1)
	assert.Equal(t, 1, g.tools.Calls(http.MethodGet, "/users/me/characters/501/crests"))
}
