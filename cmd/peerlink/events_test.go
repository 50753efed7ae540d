package main

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appevents "github.com/okarpov/peerLink/internal/app_events"
	callevents "github.com/okarpov/peerLink/internal/app_events/call"
	transferevents "github.com/okarpov/peerLink/internal/app_events/transfer"
	"github.com/okarpov/peerLink/pkg/call"
)

type fakeCallCtrl struct {
	answers int
	toggled []string
	hangs   []string
}

func (c *fakeCallCtrl) DoAnswer(context.Context, call.Request) error {
	c.answers++
	return nil
}

func (c *fakeCallCtrl) ToggleDevice(_ context.Context, device string) error {
	c.toggled = append(c.toggled, device)
	return nil
}

func (c *fakeCallCtrl) HangCall(reason string) {
	c.hangs = append(c.hangs, reason)
}

type fakeDecider struct {
	accepted bool
	declined string
}

func (d *fakeDecider) Accept() error { d.accepted = true; return nil }

func (d *fakeDecider) Decline(reason string) error { d.declined = reason; return nil }

func TestStdinCommandsBecomeEvents(t *testing.T) {
	events := make(chan appevents.AppEvent, 8)
	in := strings.NewReader("mic\n\nvideo\nbogus\nhang\n")

	require.NoError(t, readCommands(context.Background(), in, events))

	require.Len(t, events, 3)
	assert.Equal(t, callevents.ToggleDeviceEvent{Device: "mic"}, <-events)
	assert.Equal(t, callevents.ToggleDeviceEvent{Device: "video"}, <-events)
	assert.Equal(t, callevents.HangUpEvent{}, <-events)
}

func TestCallEventsDriveTheHandler(t *testing.T) {
	ctrl := &fakeCallCtrl{}
	ctx := context.Background()
	toggles := call.Request{Mic: true}

	handleCallEvent(ctx, callevents.AnswerCallEvent{ConnID: "c1"}, ctrl, toggles)
	handleCallEvent(ctx, callevents.ToggleDeviceEvent{Device: "screen"}, ctrl, toggles)
	handleCallEvent(ctx, callevents.HangUpEvent{}, ctrl, toggles)
	handleCallEvent(ctx, callevents.DeclineCallEvent{ConnID: "c1"}, ctrl, toggles)

	assert.Equal(t, 1, ctrl.answers)
	assert.Equal(t, []string{"screen"}, ctrl.toggled)
	assert.Equal(t, []string{"hung up", "declined"}, ctrl.hangs)
}

func TestFileDecisionsResolveOldestOfferFirst(t *testing.T) {
	first := &fakeDecider{}
	second := &fakeDecider{}
	pending := &pendingOffers{}
	pending.add(first)
	pending.add(second)

	handleFileEvent(transferevents.AcceptFileEvent{}, pending)
	handleFileEvent(transferevents.RejectFileEvent{Reason: "busy"}, pending)

	assert.True(t, first.accepted)
	assert.Empty(t, first.declined)
	assert.False(t, second.accepted)
	assert.Equal(t, "busy", second.declined)

	// A decision with nothing pending must not panic.
	assert.NotPanics(t, func() { handleFileEvent(transferevents.AcceptFileEvent{}, pending) })
}

func TestReadDecisionsParsesRejectReason(t *testing.T) {
	events := make(chan appevents.AppEvent, 8)
	in := strings.NewReader("accept\nreject too big\nnonsense\n")

	require.NoError(t, readDecisions(context.Background(), in, events))

	require.Len(t, events, 2)
	assert.Equal(t, transferevents.AcceptFileEvent{}, <-events)
	assert.Equal(t, transferevents.RejectFileEvent{Reason: "too big"}, <-events)
}
