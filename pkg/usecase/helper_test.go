package usecase_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/beetleboard/pkg/domain/model/config"
	"github.com/secmon-lab/beetleboard/pkg/repository"
	"github.com/secmon-lab/beetleboard/pkg/repository/memory"
	"github.com/secmon-lab/beetleboard/pkg/service/remilia"
	"github.com/secmon-lab/beetleboard/pkg/usecase"
)

// fakeClock advances only when the code under test sleeps or tick is called
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
	// tick is added on every Now call to simulate slow work
	tick time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.tick)
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return nil
}

// fakeUpstream serves friend lists and profiles from memory
type fakeUpstream struct {
	mu sync.Mutex

	friends  map[string][]string
	profiles map[string]*remilia.Profile
	invalid  map[string]bool
	failing  map[string]bool
	// failPage fails ListFriends for seed at the given page
	failPage map[string]int

	friendCalls  []friendCall
	profileCalls map[string]int
}

type friendCall struct {
	seed  string
	page  int
	limit int
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		friends:      make(map[string][]string),
		profiles:     make(map[string]*remilia.Profile),
		invalid:      make(map[string]bool),
		failing:      make(map[string]bool),
		failPage:     make(map[string]int),
		profileCalls: make(map[string]int),
	}
}

func (f *fakeUpstream) addUser(username string, beetles, pokes, credit float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[username] = &remilia.Profile{User: &remilia.ProfileUser{
		Username:     username,
		DisplayName:  "name-" + username,
		Beetles:      remilia.Number(beetles),
		Pokes:        remilia.Number(pokes),
		SocialCredit: &remilia.SocialCredit{Score: remilia.Number(credit)},
	}}
}

func (f *fakeUpstream) GetProfile(ctx context.Context, username string) (*remilia.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profileCalls[username]++

	if f.invalid[username] {
		return nil, goerr.Wrap(remilia.ErrInvalidPayload, "no user object")
	}
	if f.failing[username] {
		return nil, goerr.Wrap(remilia.ErrUpstream, "HTTP 502")
	}
	p, ok := f.profiles[username]
	if !ok {
		return nil, goerr.Wrap(remilia.ErrUpstream, "HTTP 404")
	}
	return p, nil
}

func (f *fakeUpstream) ListFriends(ctx context.Context, username string, page, limit int) ([]remilia.Friend, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.friendCalls = append(f.friendCalls, friendCall{seed: username, page: page, limit: limit})

	if p, ok := f.failPage[username]; ok && p == page {
		return nil, goerr.Wrap(remilia.ErrUpstream, "HTTP 503")
	}

	all := f.friends[username]
	lo := min((page-1)*limit, len(all))
	hi := min(lo+limit, len(all))
	out := make([]remilia.Friend, 0, hi-lo)
	for _, name := range all[lo:hi] {
		out = append(out, remilia.Friend{DisplayUsername: name})
	}
	return out, nil
}

func (f *fakeUpstream) totalProfileCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.profileCalls {
		n += c
	}
	return n
}

func (f *fakeUpstream) friendCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.friendCalls)
}

func usernames(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%04d", prefix, i)
	}
	return out
}

// testPipeline is a small policy suitable for unit tests
func testPipeline() config.Pipeline {
	p := config.DefaultPipeline()
	p.Discovery.Seeds = []string{"a", "b"}
	p.Discovery.PageSize = 2
	p.Discovery.MinPopulation = 0
	p.Sync.BatchSize = 4
	p.Sync.Concurrency = 2
	return p
}

type testEnv struct {
	store    *memory.Memory
	repo     *repository.Leaderboard
	upstream *fakeUpstream
	clock    *fakeClock
}

func newTestEnv() *testEnv {
	store := memory.New()
	return &testEnv{
		store:    store,
		repo:     repository.NewLeaderboard(repository.Static{KVStore: store}),
		upstream: newFakeUpstream(),
		clock:    newFakeClock(),
	}
}

func (e *testEnv) useCases(pipeline config.Pipeline, opts ...usecase.Option) *usecase.UseCases {
	opts = append([]usecase.Option{
		usecase.WithPipeline(pipeline),
		usecase.WithClock(e.clock.Now),
		usecase.WithSleeper(e.clock.Sleep),
	}, opts...)
	return usecase.New(e.repo, e.upstream, opts...)
}
