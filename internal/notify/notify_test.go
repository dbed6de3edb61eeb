package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Qubut/IP-Claim/packages/alipay_bill/internal/config"
	"github.com/Qubut/IP-Claim/packages/alipay_bill/internal/job"
)

func summary() job.Summary {
	return job.Summary{
		Date:      "2026-10-18",
		Attempted: 8,
		Fetched:   5,
		Empty:     2,
		Errored:   1,
		Outcomes: map[job.Outcome]int{
			job.OutcomeFetched:     5,
			job.OutcomeEmpty:       2,
			job.OutcomeFetchFailed: 1,
		},
		Duration: 1500 * time.Millisecond,
	}
}

func TestFormatSummary(t *testing.T) {
	assert.Equal(t,
		"Alipay bills of 2026-10-18\n"+
			"attempted 8, fetched 5, empty 2, errored 1\n"+
			"failures: fetch_failed=1\n"+
			"took 1.5s",
		FormatSummary(summary()),
	)

	clean := job.Summary{Date: "2026-10-18", Attempted: 4, Empty: 4, Outcomes: map[job.Outcome]int{job.OutcomeEmpty: 4}}
	assert.NotContains(t, FormatSummary(clean), "failures")
}

func TestNewWithoutTokenIsNoop(t *testing.T) {
	n, err := New(config.Notify{}, zap.NewNop().Sugar())
	require.NoError(t, err)
	assert.IsType(t, Noop{}, n)
	assert.NoError(t, n.Notify(context.Background(), summary()))
}

func TestTelegramSendsSummary(t *testing.T) {
	var (
		mu   sync.Mutex
		sent url.Values
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"bills","username":"bills_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			require.NoError(t, r.ParseForm())
			mu.Lock()
			sent = r.PostForm
			mu.Unlock()
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	bot, err := tgbotapi.NewBotAPIWithClient("token", srv.URL+"/bot%s/%s", srv.Client())
	require.NoError(t, err)

	n := NewTelegram(bot, 42, zap.NewNop().Sugar())
	require.NoError(t, n.Notify(context.Background(), summary()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "42", sent.Get("chat_id"))
	assert.Equal(t, FormatSummary(summary()), sent.Get("text"))
}
