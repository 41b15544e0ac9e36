package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordersAreNoopsBeforeInit(t *testing.T) {
	// Package state is shared, so this must run before any Init.
	if feedConnects != nil {
		t.Skip("metrics already initialized")
	}
	IncrementConnect()
	IncrementClose()
	IncrementMessage("delta")
	IncrementDecodeError()
	SetFeedState(2)
	SetBackoff(1)
	IncrementFlush("leading")
	AddMerged(3)
}

func TestInitRegistersAndRecords(t *testing.T) {
	Init()
	Init()

	IncrementConnect()
	IncrementMessage("snapshot")
	IncrementMessage("delta")
	IncrementMessage("delta")
	SetFeedState(2)
	SetBackoff(0.5)
	IncrementFlush("trailing")
	AddMerged(4)
	AddMerged(-1)

	assert.Equal(t, 1.0, testutil.ToFloat64(feedConnects))
	assert.Equal(t, 2.0, testutil.ToFloat64(feedMessages.WithLabelValues("delta")))
	assert.Equal(t, 2.0, testutil.ToFloat64(feedState))
	assert.Equal(t, 0.5, testutil.ToFloat64(feedBackoff))
	assert.Equal(t, 1.0, testutil.ToFloat64(coalescerFlushes.WithLabelValues("trailing")))
	assert.Equal(t, 4.0, testutil.ToFloat64(coalescerMerged))

	res := httptest.NewRecorder()
	Handler().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, res.Code)
	body := res.Body.String()
	assert.True(t, strings.Contains(body, "bookflow_feed_messages_total"))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
