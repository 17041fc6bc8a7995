package service

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/girishdigge/graduate-voter-lokmangal-sub002/internal/models"
)

func TestNotificationDispatcherMasksContactsInLogs(t *testing.T) {
	client, _ := newFakeGateway(t, func(req gatewayRequest) (int, string) {
		switch req.To {
		case "919876500001":
			return http.StatusOK, acceptedBody("1")
		case "919876500002":
			return http.StatusUnauthorized, gatewayErrorBody(190)
		default:
			return http.StatusBadRequest, gatewayErrorBody(131030)
		}
	})
	core, logs := observer.New(zapcore.DebugLevel)
	dispatcher := NewNotificationDispatcher(client, nil, zap.New(core))

	refs := []models.Reference{
		{ID: "ref-1", ReferenceName: "A", ReferenceContact: "9876500001"},
		{ID: "ref-2", ReferenceName: "B", ReferenceContact: "9876500002"},
		{ID: "ref-3", ReferenceName: "C", ReferenceContact: "9876500003"},
	}
	voter := models.Voter{ID: testVoterID, FullName: "Meera Patil", ContactNumber: testVoterContact}

	var seen []string
	results := dispatcher.Dispatch(context.Background(), voter, refs, func(res DeliveryResult) {
		seen = append(seen, res.ReferenceID)
	})
	require.Len(t, results, 3)
	assert.True(t, results[0].Sent)
	assert.NotNil(t, results[0].SentAt)
	assert.False(t, results[1].Sent)
	assert.Error(t, results[1].Err)
	assert.False(t, results[2].Sent)
	assert.Len(t, seen, 3)

	require.NotZero(t, logs.Len())
	for _, entry := range logs.All() {
		line := entry.Message
		for k, v := range entry.ContextMap() {
			line += " " + k + "=" + strings.TrimSpace(toString(v))
		}
		for _, raw := range []string{"9876500001", "9876500002", "9876500003", testVoterContact} {
			assert.NotContains(t, line, raw)
		}
	}
	assert.NotZero(t, logs.FilterMessageSnippet("credentials").Len())
	assert.NotZero(t, logs.FilterMessageSnippet("misconfigured").Len())
}

func TestNotificationDispatcherSkipsWhenUnconfigured(t *testing.T) {
	dispatcher := NewNotificationDispatcher(nil, nil, nil)
	results := dispatcher.Dispatch(context.Background(), models.Voter{}, []models.Reference{{ID: "ref-1"}, {ID: "ref-2"}}, nil)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.False(t, res.Sent)
		assert.True(t, res.Skipped)
		assert.Equal(t, deliverySkipped, res.label())
	}
}

func TestNotificationDispatcherHonoursDeadline(t *testing.T) {
	client, _ := newFakeGateway(t, func(gatewayRequest) (int, string) {
		time.Sleep(200 * time.Millisecond)
		return http.StatusOK, acceptedBody("slow")
	})
	dispatcher := NewNotificationDispatcher(client, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	results := dispatcher.Dispatch(ctx, models.Voter{}, []models.Reference{{ID: "ref-1", ReferenceContact: "9876500001"}}, nil)
	require.Len(t, results, 1)
	assert.False(t, results[0].Sent)
	assert.Equal(t, deliveryFailed, results[0].label())
}

func toString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case error:
		return val.Error()
	default:
		return ""
	}
}
