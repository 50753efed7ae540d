package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	appevents "github.com/okarpov/peerLink/internal/app_events"
	callevents "github.com/okarpov/peerLink/internal/app_events/call"
	transferevents "github.com/okarpov/peerLink/internal/app_events/transfer"
	"github.com/okarpov/peerLink/pkg/call"
)

// emitEvent queues a frontend event without ever blocking the caller; a full
// queue drops the event with a log line.
func emitEvent(events chan<- appevents.AppEvent, ev appevents.AppEvent) {
	select {
	case events <- ev:
	default:
		slog.Warn("Dropping frontend event, queue full", "event", fmt.Sprintf("%T", ev))
	}
}

// callController is the slice of the call handler the event loop drives.
type callController interface {
	DoAnswer(ctx context.Context, toggles call.Request) error
	ToggleDevice(ctx context.Context, device string) error
	HangCall(reason string)
}

// runCallEvents consumes frontend events and applies them to the handler
// until ctx ends.
func runCallEvents(ctx context.Context, events <-chan appevents.AppEvent, ctrl callController, toggles call.Request) error {
	for {
		select {
		case ev := <-events:
			handleCallEvent(ctx, ev, ctrl, toggles)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func handleCallEvent(ctx context.Context, ev appevents.AppEvent, ctrl callController, toggles call.Request) {
	switch e := ev.(type) {
	case callevents.AnswerCallEvent:
		if err := ctrl.DoAnswer(ctx, toggles); err != nil {
			fmt.Printf("Answer failed: %v\n", err)
		}
	case callevents.DeclineCallEvent:
		ctrl.HangCall("declined")
	case callevents.ToggleDeviceEvent:
		if err := ctrl.ToggleDevice(ctx, e.Device); err != nil {
			fmt.Printf("Toggle %s failed: %v\n", e.Device, err)
		}
	case callevents.HangUpEvent:
		ctrl.HangCall("hung up")
	case appevents.UIErrorEvent:
		slog.Error("Frontend failure", "error", e.Err)
	default:
		slog.Warn("Unhandled frontend event", "event", fmt.Sprintf("%T", ev))
	}
}

// fileDecider is the receiving side of one pending file offer.
type fileDecider interface {
	Accept() error
	Decline(reason string) error
}

// pendingOffers queues offers awaiting a decision, oldest first.
type pendingOffers struct {
	mu   sync.Mutex
	wait []fileDecider
}

func (p *pendingOffers) add(d fileDecider) {
	p.mu.Lock()
	p.wait = append(p.wait, d)
	p.mu.Unlock()
}

func (p *pendingOffers) next() (fileDecider, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.wait) == 0 {
		return nil, false
	}
	d := p.wait[0]
	p.wait = p.wait[1:]
	return d, true
}

// runFileEvents resolves accept and reject events against the oldest pending
// offer until ctx ends.
func runFileEvents(ctx context.Context, events <-chan appevents.AppEvent, pending *pendingOffers) error {
	for {
		select {
		case ev := <-events:
			handleFileEvent(ev, pending)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func handleFileEvent(ev appevents.AppEvent, pending *pendingOffers) {
	switch e := ev.(type) {
	case transferevents.AcceptFileEvent:
		d, ok := pending.next()
		if !ok {
			fmt.Println("No file offer waiting")
			return
		}
		if err := d.Accept(); err != nil {
			fmt.Printf("Accept failed: %v\n", err)
		}
	case transferevents.RejectFileEvent:
		d, ok := pending.next()
		if !ok {
			fmt.Println("No file offer waiting")
			return
		}
		if err := d.Decline(e.Reason); err != nil {
			fmt.Printf("Reject failed: %v\n", err)
		}
	case appevents.UIErrorEvent:
		slog.Error("Frontend failure", "error", e.Err)
	default:
		slog.Warn("Unhandled frontend event", "event", fmt.Sprintf("%T", ev))
	}
}

// readDecisions translates stdin lines into file events: "accept" takes the
// oldest pending offer, "reject [reason]" refuses it.
func readDecisions(ctx context.Context, in io.Reader, events chan<- appevents.AppEvent) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var ev appevents.AppEvent
		line := strings.TrimSpace(scanner.Text())
		cmd, rest, _ := strings.Cut(line, " ")
		switch cmd {
		case "accept":
			ev = transferevents.AcceptFileEvent{}
		case "reject":
			ev = transferevents.RejectFileEvent{Reason: strings.TrimSpace(rest)}
		case "":
			continue
		default:
			fmt.Println("Commands: accept, reject [reason]")
			continue
		}
		select {
		case events <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		emitEvent(events, appevents.UIErrorEvent{Err: err})
		return err
	}
	return nil
}
