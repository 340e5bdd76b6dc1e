package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guildops/challenge-engine/internal/generation"
	"github.com/guildops/challenge-engine/internal/leaderboard"
	"github.com/guildops/challenge-engine/internal/model"
	"github.com/guildops/challenge-engine/internal/participant"
	"github.com/guildops/challenge-engine/internal/ratelimit"
	"github.com/guildops/challenge-engine/internal/sandbox"
)

// fakeStore implements Store and leaderboard.Source in memory, enforcing
// single acceptance the way the partial unique index does.
type fakeStore struct {
	mu          sync.Mutex
	campaigns   map[int64]*model.Campaign
	challenges  map[int64]*model.Challenge
	submissions []model.Submission
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		campaigns:  make(map[int64]*model.Campaign),
		challenges: make(map[int64]*model.Challenge),
	}
}

func (s *fakeStore) GetCampaign(id int64) (*model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, &model.NotFoundError{Kind: "campaign", ID: id}
	}
	cp := *c
	return &cp, nil
}

func (s *fakeStore) UpdateCampaignState(campaign *model.Campaign, prev model.CampaignState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[campaign.ID]
	if !ok || c.State != prev {
		return &model.StateError{CampaignID: campaign.ID, From: prev, To: campaign.State}
	}
	c.State = campaign.State
	return nil
}

func (s *fakeStore) GetChallenge(campaignID, id int64) (*model.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[id]
	if !ok || c.CampaignID != campaignID {
		return nil, &model.NotFoundError{Kind: "challenge", ID: id}
	}
	cp := *c
	return &cp, nil
}

func (s *fakeStore) GetAccepted(challengeID int64, key model.ParticipantKey) (*model.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.submissions {
		sub := &s.submissions[i]
		if sub.ChallengeID == challengeID && sub.IsCorrect &&
			sub.ParticipantID == key.ID && sub.ParticipantType == key.Type {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) RecordIncorrect(ctx context.Context, sub *model.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub.ID = int64(len(s.submissions) + 1)
	s.submissions = append(s.submissions, *sub)
	return nil
}

func (s *fakeStore) RecordCorrect(ctx context.Context, sub *model.Submission, points func(rank int) int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rank := 1
	for i := range s.submissions {
		prev := &s.submissions[i]
		if prev.ChallengeID != sub.ChallengeID || !prev.IsCorrect {
			continue
		}
		if prev.ParticipantID == sub.ParticipantID && prev.ParticipantType == sub.ParticipantType {
			return &model.AlreadySolvedError{ChallengeID: sub.ChallengeID, Points: prev.PointsAwarded}
		}
		rank++
	}
	sub.PointsAwarded = points(rank)
	sub.ID = int64(len(s.submissions) + 1)
	s.submissions = append(s.submissions, *sub)
	return nil
}

func (s *fakeStore) Leaderboard(campaignID int64) ([]model.LeaderboardRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	totals := make(map[model.ParticipantKey]int)
	for _, sub := range s.submissions {
		if c, ok := s.challenges[sub.ChallengeID]; ok && c.CampaignID == campaignID {
			totals[model.ParticipantKey{ID: sub.ParticipantID, Type: sub.ParticipantType}] += sub.PointsAwarded
		}
	}
	rows := make([]model.LeaderboardRow, 0, len(totals))
	for key, total := range totals {
		rows = append(rows, model.LeaderboardRow{
			ParticipantID: key.ID, ParticipantType: key.Type, TotalPoints: total,
		})
	}
	return rows, nil
}

// fakeInputs implements generation.Store and InputInvalidator.
type fakeInputs struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*model.GeneratedInput
}

func newFakeInputs() *fakeInputs {
	return &fakeInputs{rows: make(map[int64]*model.GeneratedInput)}
}

func (c *fakeInputs) GetValidInput(challengeID int64, key model.ParticipantKey) (*model.GeneratedInput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, row := range c.rows {
		if row.IsValid && row.ChallengeID == challengeID && row.Key() == key {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

func (c *fakeInputs) CreateInput(input *model.GeneratedInput) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, row := range c.rows {
		if row.IsValid && row.ChallengeID == input.ChallengeID && row.Key() == input.Key() {
			return false, nil
		}
	}
	c.nextID++
	input.ID = c.nextID
	cp := *input
	c.rows[input.ID] = &cp
	return true, nil
}

func (c *fakeInputs) InvalidateRow(id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if row, ok := c.rows[id]; ok {
		row.IsValid = false
	}
	return nil
}

func (c *fakeInputs) InvalidateChallenge(challengeID int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for _, row := range c.rows {
		if row.IsValid && row.ChallengeID == challengeID {
			row.IsValid = false
			n++
		}
	}
	return n, nil
}

func (c *fakeInputs) MarkFirstRequest(id int64, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if row, ok := c.rows[id]; ok && row.FirstRequestAt == nil {
		row.FirstRequestAt = &at
	}
	return nil
}

// fixedExecutor returns the same expected answer for everyone, or fails
// every call once fail is set.
type fixedExecutor struct {
	calls    int
	expected string
	fail     error
}

func (e *fixedExecutor) Execute(ctx context.Context, routine string, seed int64, timeout time.Duration) (sandbox.Output, error) {
	e.calls++
	if e.fail != nil {
		return sandbox.Output{}, e.fail
	}
	return sandbox.Output{
		Input:    fmt.Sprintf("payload-%d", seed),
		Expected: e.expected,
	}, nil
}

// memRateStore is the in-memory rate-limit entry set.
type memRateStore struct {
	mu      sync.Mutex
	entries map[string][]time.Time
}

func newMemRateStore() *memRateStore {
	return &memRateStore{entries: make(map[string][]time.Time)}
}

func rateKey(challengeID int64, key model.ParticipantKey) string {
	return fmt.Sprintf("%d/%s/%d", challengeID, key.Type, key.ID)
}

func (s *memRateStore) CountInWindow(challengeID int64, key model.ParticipantKey, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, at := range s.entries[rateKey(challengeID, key)] {
		if !at.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *memRateStore) OldestInWindow(challengeID int64, key model.ParticipantKey, since time.Time) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var oldest time.Time
	found := false
	for _, at := range s.entries[rateKey(challengeID, key)] {
		if at.Before(since) {
			continue
		}
		if !found || at.Before(oldest) {
			oldest = at
			found = true
		}
	}
	return oldest, found, nil
}

func (s *memRateStore) TryRecord(challengeID int64, key model.ParticipantKey, at, since time.Time, limit int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := rateKey(challengeID, key)
	count := 0
	for _, t := range s.entries[k] {
		if !t.Before(since) {
			count++
		}
	}
	if count >= limit {
		return false, nil
	}
	s.entries[k] = append(s.entries[k], at)
	return true, nil
}

func (s *memRateStore) Record(challengeID int64, key model.ParticipantKey, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := rateKey(challengeID, key)
	s.entries[k] = append(s.entries[k], at)
	return nil
}

func (s *memRateStore) Prune(challengeID int64, key model.ParticipantKey, before time.Time) error {
	return nil
}

type memSquads struct {
	members map[int64]int64
}

func (f *memSquads) CurrentSquad(ctx context.Context, guildID string, userID int64) (int64, bool, error) {
	squadID, ok := f.members[userID]
	return squadID, ok, nil
}

// harness bundles an engine wired to fakes.
type harness struct {
	engine *Engine
	store  *fakeStore
	inputs *fakeInputs
	exec   *fixedExecutor
	now    time.Time
}

func newHarness(t *testing.T, opts Options, squads map[int64]int64) *harness {
	t.Helper()

	store := newFakeStore()
	inputs := newFakeInputs()
	exec := &fixedExecutor{expected: "42"}
	gen := generation.NewGenerator(inputs, exec, time.Second)
	resolver := participant.NewResolver(&memSquads{members: squads})
	limiter := ratelimit.NewLimiter(newMemRateStore(), 5, 60*time.Second)
	board := leaderboard.NewAggregator(store, 0)

	h := &harness{
		engine: New(store, inputs, gen, resolver, limiter, board, opts),
		store:  store,
		inputs: inputs,
		exec:   exec,
		now:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	h.engine.now = func() time.Time { return h.now }

	start := h.now.Add(-2 * time.Hour)
	store.campaigns[1] = &model.Campaign{
		ID: 1, GuildID: "g1", Type: model.CampaignTypePlayer,
		State: model.CampaignStateActive, StartTime: start,
		ReleaseDelay: 3600, ScoringType: model.ScoringPointBased,
		StartingPoints: 100, DecreaseStep: 10,
	}
	store.challenges[10] = &model.Challenge{
		ID: 10, CampaignID: 1, OrderPosition: 1,
		GenerationRoutine: "return 'p', '42'", ScriptUpdatedAt: start,
	}
	store.challenges[11] = &model.Challenge{
		ID: 11, CampaignID: 1, OrderPosition: 3,
		GenerationRoutine: "return 'p', '42'", ScriptUpdatedAt: start,
	}
	return h
}

func TestGetInput_ReturnsPayloadOnly(t *testing.T) {
	h := newHarness(t, Options{CountAllAttempts: true}, nil)

	payload, err := h.engine.GetInput(context.Background(), 1, 10, 5)
	require.NoError(t, err)
	assert.NotEmpty(t, payload)
	assert.NotEqual(t, "42", payload, "expected result stays inside the engine")
}

func TestGetInput_NotReleased(t *testing.T) {
	h := newHarness(t, Options{CountAllAttempts: true}, nil)

	// Challenge 11 is at position 3: released two hours after start,
	// which is exactly now. One second earlier it is gated.
	h.now = h.now.Add(-time.Second)
	_, err := h.engine.GetInput(context.Background(), 1, 11, 5)
	var notReleased *model.NotReleasedError
	require.ErrorAs(t, err, &notReleased)

	h.now = h.now.Add(time.Second)
	_, err = h.engine.GetInput(context.Background(), 1, 11, 5)
	assert.NoError(t, err)
}

func TestGetInput_UnknownChallengeOrWrongCampaign(t *testing.T) {
	h := newHarness(t, Options{CountAllAttempts: true}, nil)

	h.store.campaigns[2] = &model.Campaign{
		ID: 2, Type: model.CampaignTypePlayer, State: model.CampaignStateActive,
		StartTime: h.now.Add(-time.Hour), ReleaseDelay: 60,
		ScoringType: model.ScoringPointBased,
	}

	var notFound *model.NotFoundError
	_, err := h.engine.GetInput(context.Background(), 1, 999, 5)
	assert.ErrorAs(t, err, &notFound)

	// Challenge 10 belongs to campaign 1, not 2.
	_, err = h.engine.GetInput(context.Background(), 2, 10, 5)
	assert.ErrorAs(t, err, &notFound)
}

func TestSubmit_CorrectThenAlreadySolved(t *testing.T) {
	h := newHarness(t, Options{CountAllAttempts: true}, nil)

	res, err := h.engine.Submit(context.Background(), 1, 10, 5, "  42\n")
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, 100, res.Points, "first acceptance scores starting points")

	// Any further attempt is informational-only, correct or not.
	_, err = h.engine.Submit(context.Background(), 1, 10, 5, "42")
	var solved *model.AlreadySolvedError
	require.ErrorAs(t, err, &solved)
	assert.Equal(t, 100, solved.Points)

	_, err = h.engine.Submit(context.Background(), 1, 10, 5, "wrong")
	require.ErrorAs(t, err, &solved)

	// Recorded points are untouched.
	accepted, err := h.store.GetAccepted(10, model.ParticipantKey{ID: 5, Type: model.ParticipantPlayer})
	require.NoError(t, err)
	require.NotNil(t, accepted)
	assert.Equal(t, 100, accepted.PointsAwarded)
}

func TestSubmit_PointBasedRanks(t *testing.T) {
	h := newHarness(t, Options{CountAllAttempts: true}, nil)

	for i, want := range []int{100, 90, 80} {
		res, err := h.engine.Submit(context.Background(), 1, 10, int64(100+i), "42")
		require.NoError(t, err)
		assert.True(t, res.Accepted)
		assert.Equal(t, want, res.Points, "rank %d", i+1)
	}
}

func TestSubmit_ConcurrentAcceptancesRankDistinctly(t *testing.T) {
	h := newHarness(t, Options{CountAllAttempts: true}, nil)

	// Five participants race their correct answers in. Rank counting is
	// atomic with the insert, so every acceptance gets its own rank and
	// the awarded points are all distinct.
	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error
	var points []int
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			res, err := h.engine.Submit(context.Background(), 1, 10, id, "42")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			points = append(points, res.Points)
		}(int64(200 + i))
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.ElementsMatch(t, []int{100, 90, 80, 70, 60}, points,
		"each acceptance claims its own rank")
}

func TestSubmit_IncorrectAllowedUntilSolve(t *testing.T) {
	h := newHarness(t, Options{CountAllAttempts: true}, nil)

	res, err := h.engine.Submit(context.Background(), 1, 10, 5, "nope")
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Zero(t, res.Points)

	res, err = h.engine.Submit(context.Background(), 1, 10, 5, "42")
	require.NoError(t, err)
	assert.True(t, res.Accepted)
}

func TestSubmit_RateLimited(t *testing.T) {
	h := newHarness(t, Options{CountAllAttempts: true}, nil)

	// Five attempts at t=0..4s, sixth at t=5s is rejected with the time
	// until the first attempt leaves the 60s window.
	base := h.now
	for i := 0; i < 5; i++ {
		h.now = base.Add(time.Duration(i) * time.Second)
		_, err := h.engine.Submit(context.Background(), 1, 10, 5, "wrong")
		require.NoError(t, err)
	}

	h.now = base.Add(5 * time.Second)
	_, err := h.engine.Submit(context.Background(), 1, 10, 5, "42")
	var limited *model.RateLimitError
	require.ErrorAs(t, err, &limited)
	assert.Equal(t, 55*time.Second, limited.RetryAfter)

	// The gate runs before validation: nothing was generated or recorded
	// for the rejected attempt.
	assert.Len(t, h.store.submissions, 5)
}

func TestSubmit_OnlyCorrectAttemptsConsumeBudgetWhenConfigured(t *testing.T) {
	h := newHarness(t, Options{CountAllAttempts: false}, nil)

	// Ten incorrect attempts never trip a limit of five.
	for i := 0; i < 10; i++ {
		res, err := h.engine.Submit(context.Background(), 1, 10, 5, "wrong")
		require.NoError(t, err)
		assert.False(t, res.Accepted)
	}

	res, err := h.engine.Submit(context.Background(), 1, 10, 5, "42")
	require.NoError(t, err)
	assert.True(t, res.Accepted)
}

func TestSubmit_GenerationFailureSurfacesAfterSolve(t *testing.T) {
	h := newHarness(t, Options{CountAllAttempts: true, AllowResubmitAfterSolve: true}, nil)

	res, err := h.engine.Submit(context.Background(), 1, 10, 5, "42")
	require.NoError(t, err)
	require.True(t, res.Accepted)
	recorded := len(h.store.submissions)

	// The cache row is gone and the routine now fails: the resubmission
	// must error out, never land as a recorded incorrect attempt.
	_, err = h.engine.InvalidateChallenge(context.Background(), 10)
	require.NoError(t, err)
	h.exec.fail = errors.New("routine exploded")

	_, err = h.engine.Submit(context.Background(), 1, 10, 5, "42")
	var genErr *model.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Len(t, h.store.submissions, recorded)
}

func TestSubmit_SquadMembersShareState(t *testing.T) {
	h := newHarness(t, Options{CountAllAttempts: true}, map[int64]int64{20: 7, 21: 7})
	h.store.campaigns[1].Type = model.CampaignTypeSquad

	res, err := h.engine.Submit(context.Background(), 1, 10, 20, "42")
	require.NoError(t, err)
	assert.True(t, res.Accepted)

	// The squadmate hits the shared accepted submission.
	_, err = h.engine.Submit(context.Background(), 1, 10, 21, "42")
	var solved *model.AlreadySolvedError
	assert.ErrorAs(t, err, &solved)
}

func TestSubmit_NoSquad(t *testing.T) {
	h := newHarness(t, Options{CountAllAttempts: true}, map[int64]int64{})
	h.store.campaigns[1].Type = model.CampaignTypeSquad

	_, err := h.engine.Submit(context.Background(), 1, 10, 20, "42")
	var noSquad *model.NoSquadError
	assert.ErrorAs(t, err, &noSquad)
}

func TestInvalidateChallenge_ForcesRegeneration(t *testing.T) {
	h := newHarness(t, Options{CountAllAttempts: true}, nil)

	_, err := h.engine.GetInput(context.Background(), 1, 10, 5)
	require.NoError(t, err)
	require.Equal(t, 1, h.exec.calls)

	rows, err := h.engine.InvalidateChallenge(context.Background(), 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rows)

	_, err = h.engine.GetInput(context.Background(), 1, 10, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, h.exec.calls)
}

func TestLeaderboard_OrderedTotals(t *testing.T) {
	h := newHarness(t, Options{CountAllAttempts: true}, nil)

	_, err := h.engine.Submit(context.Background(), 1, 10, 100, "42")
	require.NoError(t, err)
	_, err = h.engine.Submit(context.Background(), 1, 10, 101, "42")
	require.NoError(t, err)

	rows, err := h.engine.Leaderboard(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	totals := map[int64]int{}
	for _, row := range rows {
		totals[row.ParticipantID] = row.TotalPoints
	}
	assert.Equal(t, 100, totals[100])
	assert.Equal(t, 90, totals[101])
}

func TestTransitionCampaign(t *testing.T) {
	h := newHarness(t, Options{CountAllAttempts: true}, nil)
	h.store.campaigns[1].State = model.CampaignStateDraft

	require.NoError(t, h.engine.TransitionCampaign(context.Background(), 1, model.CampaignStateActive))

	var stateErr *model.StateError
	err := h.engine.TransitionCampaign(context.Background(), 1, model.CampaignStateActive)
	assert.ErrorAs(t, err, &stateErr)

	require.NoError(t, h.engine.TransitionCampaign(context.Background(), 1, model.CampaignStateCompleted))
}
