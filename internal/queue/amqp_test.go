package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"

	"github.com/tenant-onboarding/internal/domain"
)

type fakeAck struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (a *fakeAck) Ack(uint64, bool) error {
	a.acked = true
	return nil
}

func (a *fakeAck) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked = true
	a.requeue = requeue
	return nil
}

func (a *fakeAck) Reject(_ uint64, requeue bool) error {
	return a.Nack(0, false, requeue)
}

type stubExecutor struct {
	got uuid.UUID
	err error
}

func (e *stubExecutor) Execute(_ context.Context, jobID uuid.UUID) (*domain.ImportJob, error) {
	e.got = jobID
	return nil, e.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func delivery(t *testing.T, ack *fakeAck, jobID uuid.UUID, redelivered bool) amqp.Delivery {
	t.Helper()
	body, err := encodeMessage(jobID)
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: ack, Body: body, Redelivered: redelivered}
}

func TestMessageRoundTrip(t *testing.T) {
	id := uuid.New()
	body, err := encodeMessage(id)
	require.NoError(t, err)

	got, err := decodeMessage(body)
	require.NoError(t, err)
	require.Equal(t, id, got)

	_, err = decodeMessage([]byte(`{}`))
	require.Error(t, err)
}

func TestHandleDelivery(t *testing.T) {
	cases := []struct {
		name        string
		execErr     error
		redelivered bool
		wantAck     bool
		wantRequeue bool
	}{
		{name: "success acks"},
		{name: "stale job acks", execErr: domain.ErrInvalidJobTransition, wantAck: true},
		{name: "missing job acks", execErr: domain.ErrImportJobNotFound, wantAck: true},
		{name: "job held by another consumer acks", execErr: domain.ErrImportJobLeased, wantAck: true},
		{name: "failure requeues once", execErr: errors.New("db down"), wantRequeue: true},
		{name: "second failure drops", execErr: errors.New("db down"), redelivered: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ack := &fakeAck{}
			exec := &stubExecutor{err: tc.execErr}
			id := uuid.New()

			handleDelivery(delivery(t, ack, id, tc.redelivered), exec, discardLogger())

			require.Equal(t, id, exec.got)
			if tc.execErr == nil || tc.wantAck {
				require.True(t, ack.acked)
				require.False(t, ack.nacked)
				return
			}
			require.True(t, ack.nacked)
			require.Equal(t, tc.wantRequeue, ack.requeue)
		})
	}
}

func TestHandleDelivery_MalformedMessageIsDropped(t *testing.T) {
	ack := &fakeAck{}
	exec := &stubExecutor{}

	handleDelivery(amqp.Delivery{Acknowledger: ack, Body: []byte("not json")}, exec, discardLogger())

	require.Equal(t, uuid.Nil, exec.got)
	require.True(t, ack.nacked)
	require.False(t, ack.requeue)
}
