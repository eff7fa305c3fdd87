package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"story-o-matic/server/internal/catalog"
	"story-o-matic/server/internal/engine"
	"story-o-matic/server/internal/interfaces"
	"story-o-matic/server/internal/mocks"
	"story-o-matic/server/internal/models"
	"story-o-matic/server/internal/prompts"
	"story-o-matic/server/internal/storage"
	"story-o-matic/server/internal/strategy"
)

type apiFixture struct {
	server    *httptest.Server
	completer *mocks.MockCompleter
	repo      *storage.Repository
	registry  *engine.Registry
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	completer := mocks.NewMockCompleter(t)
	completer.On("Name").Return("mock").Maybe()

	loader, err := prompts.NewDefaultLoader()
	require.NoError(t, err)
	strategies := strategy.NewManager(loader)

	repo := storage.NewRepository(storage.NewMemoryStore(), "story:")
	gen := engine.NewGenerator(completer, strategies, engine.GenerationOptions{CandidateCount: 1}, nil)
	registry := engine.NewRegistry(func() *engine.StoryManager {
		return engine.NewStoryManager(gen, strategies, repo, nil)
	}, nil)

	router := NewRouter(
		NewHandlers(nil, strategies, completer.Name(), nil),
		NewStoryHandlers(registry, repo, nil),
		nil,
	)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &apiFixture{server: srv, completer: completer, repo: repo, registry: registry}
}

func isJSONRequest(req interfaces.CompletionRequest) bool { return req.JSONResponse }
func isTextRequest(req interfaces.CompletionRequest) bool { return !req.JSONResponse }

func (f *apiFixture) expectTitle(title string) {
	f.completer.On("Complete", mock.Anything, mock.MatchedBy(isTextRequest)).Return(title, nil).Once()
}

func (f *apiFixture) expectSegment(raw string) {
	f.completer.On("Complete", mock.Anything, mock.MatchedBy(isJSONRequest)).Return(raw, nil).Once()
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) (int, StoryResponse) {
	t.Helper()
	status, raw := f.raw(t, method, path, body)
	var resp StoryResponse
	require.NoError(t, json.Unmarshal(raw, &resp), string(raw))
	return status, resp
}

func (f *apiFixture) raw(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequestWithContext(context.Background(), method, f.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var out bytes.Buffer
	_, err = out.ReadFrom(res.Body)
	require.NoError(t, err)
	return res.StatusCode, out.Bytes()
}

func settingsBody() models.StorySettings {
	return models.StorySettings{
		Genre:             "fantasy",
		Perspective:       models.PerspectiveSecond,
		ProtagonistGender: models.GenderNonBinary,
		Language:          "English",
		PromptStrategy:    strategy.VersionBase,
	}
}

func (f *apiFixture) start(t *testing.T) StoryResponse {
	t.Helper()
	f.expectTitle("The Emberwood Pact")
	f.expectSegment(`{"content":"A","choices":["Go left","Go right"]}`)
	status, resp := f.do(t, http.MethodPost, "/api/v1/stories/", settingsBody())
	require.Equal(t, http.StatusOK, status)
	require.True(t, resp.Success)
	return resp
}

func TestStartStoryEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.start(t)

	require.NotNil(t, resp.Story)
	assert.Equal(t, resp.Story.ID, resp.Key)
	assert.Equal(t, "The Emberwood Pact", resp.Story.Title)
	require.NotNil(t, resp.Story.CurrentSegment)
	assert.Equal(t, "A", resp.Story.CurrentSegment.Content)

	status, raw := f.raw(t, http.MethodGet, "/api/v1/stories/", nil)
	require.Equal(t, http.StatusOK, status)
	var items []StoryListItem
	require.NoError(t, json.Unmarshal(raw, &items))
	require.Len(t, items, 1)
	assert.Equal(t, resp.Key, items[0].ID)
	assert.Equal(t, "A", items[0].Summary)
}

func TestStartStoryRejectsBadInput(t *testing.T) {
	f := newAPIFixture(t)

	status, resp := f.do(t, http.MethodPost, "/api/v1/stories/", "{not json")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, resp.Success)

	settings := settingsBody()
	settings.PromptStrategy = "v9"
	status, resp = f.do(t, http.MethodPost, "/api/v1/stories/", settings)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.True(t, strings.HasPrefix(resp.Key, engine.DraftPrefix))
	require.NotNil(t, resp.Story)
	assert.NotEmpty(t, resp.Story.Error)

	// The rejected draft is not kept around.
	assert.Empty(t, f.registry.Keys())
	status, _ = f.do(t, http.MethodPost, "/api/v1/stories/"+resp.Key+"/retry", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestFailedStartCanBeRetried(t *testing.T) {
	f := newAPIFixture(t)

	f.expectTitle("T")
	f.completer.On("Complete", mock.Anything, mock.MatchedBy(isJSONRequest)).Return("", errors.New("upstream timeout")).Once()
	status, resp := f.do(t, http.MethodPost, "/api/v1/stories/", settingsBody())
	require.Equal(t, http.StatusBadGateway, status)
	draft := resp.Key
	require.True(t, strings.HasPrefix(draft, engine.DraftPrefix))

	f.expectTitle("T")
	f.expectSegment(`{"content":"A","choices":["x","y"]}`)
	status, resp = f.do(t, http.MethodPost, "/api/v1/stories/"+draft+"/retry", nil)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, resp.Story)
	assert.Equal(t, resp.Story.ID, resp.Key)

	status, _ = f.do(t, http.MethodGet, "/api/v1/stories/"+draft, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRetryAfterSuccessfulStartKeepsOneStory(t *testing.T) {
	f := newAPIFixture(t)
	id := f.start(t).Key

	status, resp := f.do(t, http.MethodPost, "/api/v1/stories/"+id+"/retry", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, id, resp.Key)

	saved, err := f.repo.GetAllStories(context.Background())
	require.NoError(t, err)
	assert.Len(t, saved, 1)
}

func TestApplyChoiceEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	started := f.start(t)
	id := started.Key
	choiceID := started.Story.CurrentSegment.Choices[0].ID

	f.completer.On("Complete", mock.Anything, mock.MatchedBy(func(req interfaces.CompletionRequest) bool {
		return req.JSONResponse && strings.Contains(req.Prompt, "Go left")
	})).Return(`{"content":"B","choices":["up","down"]}`, nil).Once()

	status, resp := f.do(t, http.MethodPost, "/api/v1/stories/"+id+"/choices", ChoiceRequest{ChoiceID: choiceID})
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, resp.Story)
	assert.Equal(t, "B", resp.Story.CurrentSegment.Content)
	require.Len(t, resp.Story.Segments, 1)
	assert.Equal(t, "A", resp.Story.Segments[0].Content)

	status, resp = f.do(t, http.MethodPost, "/api/v1/stories/"+id+"/choices", ChoiceRequest{ChoiceID: "nope"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, resp.Error, "unknown choice")

	status, _ = f.do(t, http.MethodPost, "/api/v1/stories/"+id+"/choices", ChoiceRequest{})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRegenerateAndSummaryEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	id := f.start(t).Key

	f.expectSegment(`{"content":"ignored","choices":["north","south"]}`)
	status, resp := f.do(t, http.MethodPost, "/api/v1/stories/"+id+"/regenerate", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "A", resp.Story.CurrentSegment.Content)
	assert.Equal(t, "north", resp.Story.CurrentSegment.Choices[0].Text)

	f.expectTitle("A brief recap.")
	status, raw := f.raw(t, http.MethodGet, "/api/v1/stories/"+id+"/summary", nil)
	require.Equal(t, http.StatusOK, status)
	var summary SummaryResponse
	require.NoError(t, json.Unmarshal(raw, &summary))
	require.NotNil(t, summary.Summary)
	assert.Equal(t, "A brief recap.", summary.Summary.Text)

	// cached: no further completion expected
	status, raw = f.raw(t, http.MethodGet, "/api/v1/stories/"+id+"/summary", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(raw, &summary))
	assert.Equal(t, "A brief recap.", summary.Summary.Text)
}

func TestDeleteStoryEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	id := f.start(t).Key

	status, resp := f.do(t, http.MethodDelete, "/api/v1/stories/"+id, nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, resp.Success)

	stored, err := f.repo.GetStory(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, stored)

	status, _ = f.do(t, http.MethodGet, "/api/v1/stories/"+id, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestCatalogAndHealthEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	status, raw := f.raw(t, http.MethodGet, "/api/v1/catalog/genres", nil)
	require.Equal(t, http.StatusOK, status)
	var genres []catalog.Genre
	require.NoError(t, json.Unmarshal(raw, &genres))
	assert.Len(t, genres, len(catalog.Genres()))

	status, raw = f.raw(t, http.MethodGet, "/api/v1/catalog/strategies", nil)
	require.Equal(t, http.StatusOK, status)
	var versions []string
	require.NoError(t, json.Unmarshal(raw, &versions))
	assert.Contains(t, versions, strategy.VersionBase)

	status, raw = f.raw(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(raw), `"service":"story-o-matic"`)

	status, _ = f.raw(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{engine.ErrBusy, http.StatusConflict},
		{engine.ErrNoStory, http.StatusConflict},
		{storage.ErrNotFound, http.StatusNotFound},
		{catalog.ErrGenreNotFound, http.StatusBadRequest},
		{&engine.MalformedResponseError{Raw: "x", Err: errors.New("bad")}, http.StatusBadGateway},
		{errors.New("boom"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestResolveChoiceExpandsPresets(t *testing.T) {
	preset := catalog.Instructions()[0]

	choice, err := resolveChoice(models.StoryState{}, ChoiceRequest{
		Text:         "  Open the door ",
		Instructions: []string{preset.Title, "be brief"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Open the door", choice.Text)
	assert.Equal(t, []string{preset.Prompt, "be brief"}, choice.Instructions)

	_, err = resolveChoice(models.StoryState{}, ChoiceRequest{ChoiceID: "c1"})
	assert.ErrorIs(t, err, engine.ErrNoStory)
}
