package slack_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/beetleboard/pkg/service/slack"
)

type fakeSlack struct {
	mu     sync.Mutex
	posts  []map[string]string
	failOK bool
}

func (f *fakeSlack) handler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.posts = append(f.posts, map[string]string{
		"path":    r.URL.Path,
		"channel": r.Form.Get("channel"),
		"text":    r.Form.Get("text"),
		"blocks":  r.Form.Get("blocks"),
	})
	fail := f.failOK
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if fail {
		_, _ = w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
		return
	}
	_, _ = w.Write([]byte(`{"ok":true,"channel":"C123","ts":"1700000000.000100"}`))
}

func (f *fakeSlack) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.posts)
}

func TestNew(t *testing.T) {
	t.Run("returns error when token is empty", func(t *testing.T) {
		_, err := slack.New("", "C123")
		gt.Value(t, err).NotNil()
	})

	t.Run("returns error when channel is empty", func(t *testing.T) {
		_, err := slack.New("xoxb-test", "")
		gt.Value(t, err).NotNil()
	})

	t.Run("creates notifier", func(t *testing.T) {
		n, err := slack.New("xoxb-test", "C123")
		gt.NoError(t, err).Required()
		gt.Value(t, n).NotNil()
	})
}

func TestNotifySyncFailure(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, opts ...slack.Option) (*slack.Notifier, *fakeSlack, *time.Time) {
		fake := &fakeSlack{}
		srv := httptest.NewServer(http.HandlerFunc(fake.handler))
		t.Cleanup(srv.Close)

		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		opts = append([]slack.Option{
			slack.WithAPIURL(srv.URL + "/"),
			slack.TestWithClock(func() time.Time { return now }),
		}, opts...)
		n, err := slack.New("xoxb-test", "C123", opts...)
		gt.NoError(t, err).Required()
		return n, fake, &now
	}

	t.Run("posts failure with error values", func(t *testing.T) {
		n, fake, _ := setup(t)

		reason := goerr.New("incomplete sync", goerr.V("completion_rate", 0.5))
		gt.NoError(t, n.NotifySyncFailure(ctx, reason)).Required()

		gt.Value(t, fake.count()).Equal(1)
		post := fake.posts[0]
		gt.Value(t, post["path"]).Equal("/chat.postMessage")
		gt.Value(t, post["channel"]).Equal("C123")
		gt.String(t, post["text"]).Contains("incomplete sync")
		gt.String(t, post["blocks"]).Contains("completion_rate")
	})

	t.Run("mutes repeats within the window", func(t *testing.T) {
		n, fake, now := setup(t)
		reason := goerr.New("user discovery failed")

		gt.NoError(t, n.NotifySyncFailure(ctx, reason))
		gt.NoError(t, n.NotifySyncFailure(ctx, reason))
		gt.Value(t, fake.count()).Equal(1)

		*now = now.Add(slack.DefaultSuppressWindow + time.Second)
		gt.NoError(t, n.NotifySyncFailure(ctx, reason))
		gt.Value(t, fake.count()).Equal(2)
	})

	t.Run("zero window never mutes", func(t *testing.T) {
		n, fake, _ := setup(t, slack.WithSuppressWindow(0))
		reason := goerr.New("no users fetched")

		gt.NoError(t, n.NotifySyncFailure(ctx, reason))
		gt.NoError(t, n.NotifySyncFailure(ctx, reason))
		gt.Value(t, fake.count()).Equal(2)
	})

	t.Run("api error is returned and not muted", func(t *testing.T) {
		n, fake, _ := setup(t)
		fake.failOK = true
		reason := goerr.New("incomplete sync")

		gt.Value(t, n.NotifySyncFailure(ctx, reason)).NotNil()

		fake.mu.Lock()
		fake.failOK = false
		fake.mu.Unlock()
		gt.NoError(t, n.NotifySyncFailure(ctx, reason))
		gt.Value(t, fake.count()).Equal(2)
	})

	t.Run("nil reason is ignored", func(t *testing.T) {
		n, fake, _ := setup(t)
		gt.NoError(t, n.NotifySyncFailure(ctx, nil))
		gt.Value(t, fake.count()).Equal(0)
	})
}

func TestTruncateToMaxBytes(t *testing.T) {
	gt.Value(t, slack.TruncateToMaxBytes("hello", 10)).Equal("hello")
	gt.Value(t, slack.TruncateToMaxBytes("hello", 3)).Equal("hel")
	// "あ" is 3 bytes; cutting inside it drops the whole rune
	gt.Value(t, slack.TruncateToMaxBytes("aあ", 2)).Equal("a")
}

func TestIntegration(t *testing.T) {
	token := os.Getenv("TEST_SLACK_BOT_TOKEN")
	channelID := os.Getenv("TEST_SLACK_CHANNEL_ID")
	if token == "" || channelID == "" {
		t.Skip("TEST_SLACK_BOT_TOKEN or TEST_SLACK_CHANNEL_ID is not set")
	}

	n, err := slack.New(token, channelID)
	gt.NoError(t, err).Required()
	gt.NoError(t, n.NotifySyncFailure(context.Background(), goerr.New("integration test failure")))
}
