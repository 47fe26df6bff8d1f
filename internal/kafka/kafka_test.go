package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fc-rank-search/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingRefresher struct {
	calls []domain.RefreshRequest
	errs  map[string]error
}

func (r *recordingRefresher) Refresh(_ context.Context, req domain.RefreshRequest) (*domain.RefreshResult, error) {
	r.calls = append(r.calls, req)
	if err := r.errs[req.GameID]; err != nil {
		return nil, err
	}
	return &domain.RefreshResult{GameID: req.GameID}, nil
}

func TestCollapseRequests(t *testing.T) {
	got := collapseRequests([]domain.RefreshRequest{
		{RequestID: "1", GameID: "sfa3", MaxPlayers: 100},
		{RequestID: "2", GameID: "kof98", MaxPlayers: 50},
		{RequestID: "3", GameID: "sfa3", GameName: "Alpha 3", MaxPlayers: 300},
		{RequestID: "4", GameID: "kof98"},
		{RequestID: "5", GameID: "kof98", MaxPlayers: 10},
	})

	require.Len(t, got, 2)
	assert.Equal(t, domain.RefreshRequest{RequestID: "1", GameID: "sfa3", GameName: "Alpha 3", MaxPlayers: 300}, got[0])
	assert.Equal(t, "2", got[1].RequestID)
	assert.Equal(t, 0, got[1].MaxPlayers)
}

func TestDecodeRequest(t *testing.T) {
	req, err := decodeRequest([]byte(`{"game_id":" sfa3 ","max_players":20}`))
	require.NoError(t, err)
	assert.Equal(t, "sfa3", req.GameID)
	assert.Equal(t, 20, req.MaxPlayers)

	_, err = decodeRequest([]byte(`{"game_name":"x"}`))
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = decodeRequest([]byte(`not json`))
	assert.Error(t, err)
}

func TestDispatchRefreshesEachGameOnce(t *testing.T) {
	refresher := &recordingRefresher{errs: map[string]error{
		"kof98": domain.ErrRefreshInProgress,
		"sf2ce": errors.New("boom"),
	}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := &Consumer{handler: refresher, logger: discardLogger(), ctx: ctx, cancel: cancel}

	c.dispatch([]domain.RefreshRequest{
		{GameID: "sfa3"}, {GameID: "kof98"}, {GameID: "sfa3"}, {GameID: "sf2ce"},
	})

	require.Len(t, refresher.calls, 3)
	assert.Equal(t, []string{"sfa3", "kof98", "sf2ce"},
		[]string{refresher.calls[0].GameID, refresher.calls[1].GameID, refresher.calls[2].GameID})
}

func TestProducerPublishKeysByGame(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "sfa3" {
			return errors.New("unexpected key " + string(key))
		}
		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var req domain.RefreshRequest
		if err := json.Unmarshal(value, &req); err != nil {
			return err
		}
		if req.RequestID == "" || req.RequestedAt.IsZero() {
			return errors.New("request id and time must be set")
		}
		return nil
	})

	p := NewProducerWithClient(mock, "fc-refresh", discardLogger())
	sent, err := p.Publish(domain.RefreshRequest{GameID: "sfa3"})
	require.NoError(t, err)
	assert.NotEmpty(t, sent.RequestID)
	require.NoError(t, p.Close())
}

func TestProducerPublishFailure(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewProducerWithClient(mock, "fc-refresh", discardLogger())
	_, err := p.Publish(domain.RefreshRequest{GameID: "sfa3"})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)

	_, err = p.Publish(domain.RefreshRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	require.NoError(t, p.Close())
}
