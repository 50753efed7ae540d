package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/okarpov/peerLink/api"
	appevents "github.com/okarpov/peerLink/internal/app_events"
	callevents "github.com/okarpov/peerLink/internal/app_events/call"
	transferevents "github.com/okarpov/peerLink/internal/app_events/transfer"
	"github.com/okarpov/peerLink/pkg/call"
	"github.com/okarpov/peerLink/pkg/crypto"
	"github.com/okarpov/peerLink/pkg/fileInfo"
	"github.com/okarpov/peerLink/pkg/subs"
	"github.com/okarpov/peerLink/pkg/transfer"
	rtc "github.com/okarpov/peerLink/pkg/webrtc"
)

func main() {
	var (
		relayURL   string
		userID     string
		verbose    bool
		helperAddr string
	)

	cmd := &cobra.Command{
		Use:   "peerlink",
		Short: "Peer-to-peer calls and file transfer over WebRTC",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			if userID == "" {
				userID = uuid.NewString()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&relayURL, "relay", "ws://localhost:8090/ws", "WebSocket URL of the signaling relay")
	cmd.PersistentFlags().StringVar(&userID, "user", "", "Ws identifier to register with (random when empty)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	var (
		roomID string
		mic    bool
		video  bool
		screen bool
		wait   bool
	)
	callCmd := &cobra.Command{
		Use:   "call",
		Short: "Start or join a call in a room",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd.Context(), callOptions{
				relayURL:   relayURL,
				userID:     userID,
				roomID:     roomID,
				helperAddr: helperAddr,
				toggles:    call.Request{Mic: mic, Video: video, Screen: screen},
				waitOnly:   wait,
			})
		},
	}
	callCmd.Flags().StringVar(&roomID, "room", "", "Room to call into")
	callCmd.Flags().BoolVar(&mic, "mic", true, "Capture the microphone")
	callCmd.Flags().BoolVar(&video, "video", false, "Capture the webcam")
	callCmd.Flags().BoolVar(&screen, "screen", false, "Share the screen")
	callCmd.Flags().BoolVar(&wait, "wait", false, "Do not offer, wait for an incoming call")
	callCmd.Flags().StringVar(&helperAddr, "screen-helper", "localhost:57222", "Address of the screen capture helper")

	var sendRoom string
	sendCmd := &cobra.Command{
		Use:   "send <file>",
		Short: "Offer a file to a room and stream it to whoever accepts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd.Context(), relayURL, userID, sendRoom, args[0])
		},
	}
	sendCmd.Flags().StringVar(&sendRoom, "room", "", "Room to offer the file in")

	var (
		destDir    string
		autoAccept bool
	)
	receiveCmd := &cobra.Command{
		Use:   "receive",
		Short: "Wait for file offers and receive accepted files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReceive(cmd.Context(), relayURL, userID, destDir, autoAccept)
		},
	}
	receiveCmd.Flags().StringVar(&destDir, "dest", ".", "Directory to store received files in")
	receiveCmd.Flags().BoolVar(&autoAccept, "auto-accept", true, "Accept offers without asking; with --auto-accept=false type accept or reject")

	cmd.AddCommand(callCmd)
	cmd.AddCommand(sendCmd)
	cmd.AddCommand(receiveCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := fang.Execute(ctx, cmd); err != nil {
		os.Exit(1)
	}
}

type callOptions struct {
	relayURL   string
	userID     string
	roomID     string
	helperAddr string
	toggles    call.Request
	waitOnly   bool
}

func runCall(ctx context.Context, opts callOptions) error {
	if opts.roomID == "" {
		return errors.New("--room is required")
	}

	router := subs.NewRouter()
	capturer, err := call.NewDeviceCapturer(call.NewScreenHelper(opts.helperAddr))
	if err != nil {
		return fmt.Errorf("failed to initialize capture: %w", err)
	}
	apiOpts, err := capturer.APIOptions()
	if err != nil {
		return fmt.Errorf("failed to configure codecs: %w", err)
	}
	webrtcAPI := rtc.NewWebrtcAPIWith(apiOpts...)

	var handler *call.Handler
	client, err := api.Dial(ctx, opts.relayURL, opts.userID, router, func(offer *api.OfferCall) {
		if offer.Kind != api.KindCall {
			slog.Warn("Ignoring non-call offer in call mode", "kind", offer.Kind)
			return
		}
		handler.InitAndDisplayOffer(offer)
	})
	if err != nil {
		return err
	}
	defer client.Close()

	g, ctx := errgroup.WithContext(ctx)
	events := make(chan appevents.AppEvent, 16)

	notify := func(msg appevents.AppUIMessage) {
		switch m := msg.(type) {
		case callevents.IncomingCallMsg:
			fmt.Printf("Incoming call in room %s, answering\n", m.RoomID)
			emitEvent(events, callevents.AnswerCallEvent{ConnID: m.ConnID})
		case callevents.PeerJoinedMsg:
			fmt.Printf("Peer joined: %s\n", m.OpponentWsID)
		case callevents.PeerLeftMsg:
			fmt.Printf("Peer left: %s (%s)\n", m.OpponentWsID, m.Reason)
		case callevents.CallEndedMsg:
			fmt.Println("Call ended")
		case appevents.AppErrorMsg:
			fmt.Printf("Error: %v\n", m.Err)
		}
	}
	handler = call.NewHandler(client, router, webrtcAPI, capturer, notify)

	g.Go(func() error { return client.Run(ctx) })

	if !opts.waitOnly {
		if err := handler.OfferCall(ctx, opts.roomID, opts.toggles); err != nil {
			return fmt.Errorf("failed to offer call: %w", err)
		}
		fmt.Printf("Calling into room %s as %s\n", opts.roomID, client.SelfID())
	} else {
		fmt.Printf("Waiting for a call as %s\n", client.SelfID())
	}

	g.Go(func() error { return readCommands(ctx, os.Stdin, events) })
	g.Go(func() error { return runCallEvents(ctx, events, handler, opts.toggles) })

	err = g.Wait()
	handler.HangCall("shutting down")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// readCommands translates stdin lines into frontend events: "mic", "video"
// and "screen" flip the matching device, "hang" ends the call.
func readCommands(ctx context.Context, in io.Reader, events chan<- appevents.AppEvent) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var ev appevents.AppEvent
		switch cmd := strings.TrimSpace(scanner.Text()); cmd {
		case "mic", "video", "screen":
			ev = callevents.ToggleDeviceEvent{Device: cmd}
		case "hang":
			ev = callevents.HangUpEvent{}
		case "":
			continue
		default:
			fmt.Println("Commands: mic, video, screen, hang")
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

func runSend(ctx context.Context, relayURL, userID, roomID, path string) error {
	if roomID == "" {
		return errors.New("--room is required")
	}

	node, err := fileInfo.CreateNode(path)
	if err != nil {
		return err
	}
	signer, err := crypto.NewManifestSigner()
	if err != nil {
		return err
	}

	router := subs.NewRouter()
	client, err := api.Dial(ctx, relayURL, userID, router, nil)
	if err != nil {
		return err
	}
	defer client.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return client.Run(ctx) })

	connID, err := client.OfferCall(ctx, roomID, api.KindFile, &api.FileMeta{
		Name: node.Name,
		Size: node.Size,
		Mime: node.MimeType,
	})
	if err != nil {
		return fmt.Errorf("failed to offer file: %w", err)
	}
	fmt.Printf("Offering %s (%d bytes) in room %s\n", node.Name, node.Size, roomID)

	webrtcAPI := rtc.NewWebrtcAPI()

	// One record spans every opponent who replies; each sender link adds its
	// opponent as a sub-entry, so progress and outcomes land in one place.
	record := transfer.NewSendingRecord(node)
	record.Subscribe(progressPrinter())
	results := make(chan error, 16)

	err = router.Subscribe(subs.SessionKey(connID), subs.HandlerFunc(func(msg subs.Message) {
		reply, ok := msg.(*api.ReplyCall)
		if !ok {
			return
		}
		link, err := webrtcAPI.NewPeerLink(rtc.Config{
			ConnID:       connID,
			OpponentWsID: reply.OpponentWsID,
			SelfWsID:     client.SelfID(),
			Signaler:     client,
			Router:       router,
			ConnectOn:    rtc.ConnectOnDataChannel,
		})
		if err != nil {
			slog.Error("Failed to create file link", "opponentWsId", reply.OpponentWsID, "error", err)
			return
		}
		sender, err := transfer.NewSenderLink(link, node, record, nil, nil)
		if err != nil {
			link.Close("sender setup failed")
			slog.Error("Failed to create sender", "opponentWsId", reply.OpponentWsID, "error", err)
			return
		}

		// The sending side always opens the channel and offers, whichever
		// peer would win glare.
		if err := link.CreateDataChannel("file"); err != nil {
			sender.CloseEvents("data channel setup failed")
			slog.Error("Failed to open data channel", "opponentWsId", reply.OpponentWsID, "error", err)
			return
		}
		if err := link.CreateOffer(); err != nil {
			sender.CloseEvents("offer failed")
			slog.Error("Failed to offer connection", "opponentWsId", reply.OpponentWsID, "error", err)
			return
		}

		g.Go(func() error {
			defer link.Close("transfer finished")
			if err := sender.Offer(ctx, signer); err != nil {
				results <- err
				return nil
			}
			results <- sender.Transfer(ctx)
			return nil
		})
	}))
	if err != nil {
		return err
	}
	defer router.Unsubscribe(subs.SessionKey(connID))
	defer func() {
		if err := client.Destroy(connID); err != nil {
			slog.Warn("Failed to destroy relay session", "error", err)
		}
	}()

	// The send settles only when every opponent who replied has a terminal
	// outcome, not on the first finished link.
	var firstErr error
	for {
		select {
		case err := <-results:
			if err != nil && !errors.Is(err, transfer.ErrDeclined) && firstErr == nil {
				firstErr = err
			}
			if err != nil {
				fmt.Printf("Transfer ended: %v\n", err)
			}
			if !record.AllTerminal() {
				continue
			}
			if firstErr != nil {
				return fmt.Errorf("transfer failed: %w", firstErr)
			}
			fmt.Println("Transfer finished")
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func runReceive(ctx context.Context, relayURL, userID, destDir string, autoAccept bool) error {
	router := subs.NewRouter()
	webrtcAPI := rtc.NewWebrtcAPI()

	g, ctx := errgroup.WithContext(ctx)
	events := make(chan appevents.AppEvent, 16)
	pending := &pendingOffers{}

	var client *api.RelayClient
	client, err := api.Dial(ctx, relayURL, userID, router, func(offer *api.OfferCall) {
		if offer.Kind != api.KindFile {
			slog.Warn("Ignoring non-file offer in receive mode", "kind", offer.Kind)
			return
		}
		if err := client.ReplyCall(offer.ConnID, offer.RoomID); err != nil {
			slog.Error("Failed to reply to file offer", "error", err)
			return
		}
		link, err := webrtcAPI.NewPeerLink(rtc.Config{
			ConnID:       offer.ConnID,
			OpponentWsID: offer.OpponentWsID,
			SelfWsID:     client.SelfID(),
			Signaler:     client,
			Router:       router,
			ConnectOn:    rtc.ConnectOnDataChannel,
		})
		if err != nil {
			slog.Error("Failed to create file link", "error", err)
			return
		}
		var receiver *transfer.ReceiverLink
		receiver, err = transfer.NewReceiverLink(link, destDir, nil, nil, func(record *transfer.Record) {
			printTransferMsg(transferevents.FileOfferedMsg{
				FileName: record.FileName(),
				FileSize: record.FileSize(),
				MimeType: record.MimeType(),
			})
			record.Subscribe(progressPrinter())
			pending.add(receiver)
			if autoAccept {
				emitEvent(events, transferevents.AcceptFileEvent{})
			} else {
				fmt.Println("Type accept or reject [reason]")
			}
		})
		if err != nil {
			link.Close("receiver setup failed")
			slog.Error("Failed to create receiver", "error", err)
			return
		}
		g.Go(func() error {
			defer link.Close("transfer finished")
			if err := receiver.Wait(ctx); err != nil {
				fmt.Printf("Transfer failed: %v\n", err)
				return nil
			}
			fmt.Printf("Received %s\n", receiver.Record().FileName())
			return nil
		})
	})
	if err != nil {
		return err
	}
	defer client.Close()

	fmt.Printf("Receiving into %s as %s\n", destDir, client.SelfID())
	g.Go(func() error { return client.Run(ctx) })
	g.Go(func() error { return runFileEvents(ctx, events, pending) })
	if !autoAccept {
		g.Go(func() error { return readDecisions(ctx, os.Stdin, events) })
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// progressPrinter adapts record snapshots into frontend messages and prints
// them, throttled to ten percent steps to keep the output readable.
func progressPrinter() transfer.ProgressListener {
	lastDecile := -1
	return func(p transfer.Progress) {
		if p.Status.IsTerminal() {
			printTransferMsg(transferevents.TransferDoneMsg{Status: p.Status})
			return
		}
		if p.Status != transfer.StatusInProgress || p.TotalBytes <= 0 {
			return
		}
		decile := int(p.BytesDone * 10 / p.TotalBytes)
		if decile > lastDecile {
			lastDecile = decile
			printTransferMsg(transferevents.ProgressMsg{Progress: p})
		}
	}
}

func printTransferMsg(msg appevents.AppUIMessage) {
	switch m := msg.(type) {
	case transferevents.FileOfferedMsg:
		fmt.Printf("Incoming file %s (%d bytes, %s), accepting\n", m.FileName, m.FileSize, m.MimeType)
	case transferevents.ProgressMsg:
		fmt.Printf("  %d%% (%d/%d bytes)\n",
			int(m.Progress.BytesDone*100/m.Progress.TotalBytes), m.Progress.BytesDone, m.Progress.TotalBytes)
	case transferevents.TransferDoneMsg:
		fmt.Printf("  %s\n", m.Status)
	}
}
