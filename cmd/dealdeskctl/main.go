package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/lfmelo/dealdesk/internal/auth"
	"github.com/lfmelo/dealdesk/internal/bus"
	"github.com/lfmelo/dealdesk/internal/cache"
	"github.com/lfmelo/dealdesk/internal/client"
	"github.com/lfmelo/dealdesk/internal/config"
	"github.com/lfmelo/dealdesk/internal/domain"
	"github.com/lfmelo/dealdesk/internal/store"
	"github.com/lfmelo/dealdesk/internal/transport"
)

// fileList collects repeated --file flags.
type fileList []string

func (f *fileList) String() string { return strings.Join(*f, ",") }

func (f *fileList) Set(v string) error {
	*f = append(*f, v)
	return nil
}

type app struct {
	cfg           *config.Config
	bus           *bus.Bus
	db            *cache.DB
	conversations *store.ConversationStore
	messages      *store.MessageStore
	disputes      *store.DisputeStore
	jsonOut       bool
}

func main() {
	configFlag := flag.String("config", config.Path(), "path to config.toml")
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	statusFlag := flag.String("status", "", "dispute status filter (disputes command)")
	orderFlag := flag.String("order", "", "order id (create-dispute command)")
	reasonFlag := flag.String("reason", "", "dispute reason (create-dispute command)")
	descFlag := flag.String("description", "", "dispute description (create-dispute command)")
	var files fileList
	flag.Var(&files, "file", "attachment path, repeatable")
	flag.Parse()

	_ = godotenv.Load()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	a, cleanup, err := newApp(*configFlag, *profileFlag, *jsonFlag)
	if err != nil {
		fatal(err)
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	switch args[0] {
	case "conversations":
		a.cmdConversations(ctx)
	case "messages":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: dealdeskctl messages <conversation-id>")
			os.Exit(1)
		}
		a.cmdMessages(ctx, args[1])
	case "send":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: dealdeskctl [--file <path>]... send <conversation-id> [text]")
			os.Exit(1)
		}
		text := strings.Join(args[2:], " ")
		a.cmdSend(ctx, args[1], text, files)
	case "read":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: dealdeskctl read <conversation-id>")
			os.Exit(1)
		}
		a.cmdRead(ctx, args[1])
	case "disputes":
		a.cmdDisputes(ctx, *statusFlag)
	case "create-dispute":
		a.cmdCreateDispute(ctx, *orderFlag, *reasonFlag, *descFlag, files)
	case "evidence":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: dealdeskctl --file <path> [--file <path>]... evidence <dispute-id>")
			os.Exit(1)
		}
		a.cmdEvidence(ctx, args[1], files)
	case "comment":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: dealdeskctl comment <dispute-id> <text>")
			os.Exit(1)
		}
		a.cmdComment(ctx, args[1], strings.Join(args[2:], " "))
	case "watch":
		a.cmdWatch(ctx)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: dealdeskctl [--config <path>] [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  conversations                List conversations")
	fmt.Fprintln(os.Stderr, "  messages <id>                Show a conversation's messages")
	fmt.Fprintln(os.Stderr, "  send <id> [text]             Send a message (--file attaches)")
	fmt.Fprintln(os.Stderr, "  read <id>                    Mark a conversation read")
	fmt.Fprintln(os.Stderr, "  disputes                     List disputes (--status filters)")
	fmt.Fprintln(os.Stderr, "  create-dispute               File a dispute (--order, --reason, --description, --file)")
	fmt.Fprintln(os.Stderr, "  evidence <id>                Attach evidence files to a dispute (--file)")
	fmt.Fprintln(os.Stderr, "  comment <id> <text>          Comment on a dispute")
	fmt.Fprintln(os.Stderr, "  watch                        Stream store events until interrupted")
}

func newApp(configPath, profile string, jsonOut bool) (*app, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if profile != "" {
		cfg.Profile = profile
	}

	var creds auth.TokenProvider
	switch {
	case cfg.TokenFile != "":
		creds = auth.NewFileProvider(cfg.TokenFile)
	case cfg.Token != "":
		creds = auth.Static(cfg.Token)
	default:
		creds = auth.None()
	}

	api := transport.New(transport.Options{
		BaseURL:     cfg.BaseURL,
		Timeout:     cfg.RequestTimeout.Std(),
		Credentials: creds,
		Retry: transport.RetryPolicy{
			MaxRetries: cfg.MaxRetries,
			Delay:      cfg.RetryDelay.Std(),
		},
	})

	var db *cache.DB
	if !cfg.DisableCache {
		if err := config.EnsureDir(cfg.Profile); err != nil {
			return nil, nil, err
		}
		db, err = cache.Open(config.CachePath(cfg.Profile))
		if err != nil {
			return nil, nil, err
		}
		if _, err := db.Migrate(); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
	}
	var convCache store.ConversationCache
	var msgCache store.MessageCache
	var dispCache store.DisputeCache
	if db != nil {
		convCache, msgCache, dispCache = db, db, db
	}

	b := bus.New()
	logger := zap.NewNop()
	convClient := client.NewConversationClient(api, cfg.UserID)
	a := &app{
		cfg:           cfg,
		bus:           b,
		db:            db,
		conversations: store.NewConversations(convClient, convCache, b, logger),
		messages:      store.NewMessages(convClient, msgCache, b, logger),
		disputes:      store.NewDisputes(client.NewDisputeClient(api), dispCache, b, logger),
		jsonOut:       jsonOut,
	}
	cleanup := func() {
		a.conversations.Wait()
		if db != nil {
			_ = db.Close()
		}
	}
	return a, cleanup, nil
}

func (a *app) cmdConversations(ctx context.Context) {
	a.conversations.Hydrate()
	loadErr := a.conversations.Load(ctx)
	convs := a.conversations.Snapshot()
	if loadErr != nil {
		if len(convs) == 0 {
			fatal(loadErr)
		}
		fmt.Fprintf(os.Stderr, "warning: %v (showing cached data)\n", loadErr)
	}
	if a.jsonOut {
		outputJSON(convs)
		return
	}
	for _, c := range convs {
		marker := " "
		if c.UnreadCount > 0 {
			marker = fmt.Sprintf("%d", c.UnreadCount)
		}
		fmt.Printf("%-24s %-20s [%s] %s\n", c.ID, c.Participant, marker, c.LastMessage)
	}
}

func (a *app) cmdMessages(ctx context.Context, conversationID string) {
	a.messages.SetConversation(conversationID)
	if err := a.messages.Load(ctx); err != nil {
		msgs := a.messages.Snapshot()
		if len(msgs) == 0 {
			fatal(err)
		}
		fmt.Fprintf(os.Stderr, "warning: %v (showing cached data)\n", err)
	}
	msgs := a.messages.Snapshot()
	if a.jsonOut {
		outputJSON(msgs)
		return
	}
	for _, m := range msgs {
		who := m.Sender
		if m.IsOwn {
			who = "me"
		}
		fmt.Printf("%s  %-16s %s", m.Timestamp.Format("2006-01-02 15:04"), who, m.Text)
		for _, att := range m.Attachments {
			fmt.Printf(" [%s: %s]", att.Kind, att.Filename)
		}
		fmt.Println()
	}
}

func (a *app) cmdSend(ctx context.Context, conversationID, text string, files fileList) {
	uploads, err := readUploads(files)
	if err != nil {
		fatal(err)
	}
	a.messages.SetConversation(conversationID)
	msg, err := a.messages.Send(ctx, text, uploads)
	if err != nil {
		fatal(err)
	}
	if a.jsonOut {
		outputJSON(msg)
		return
	}
	fmt.Printf("sent %s (%s)\n", msg.ID, msg.Status)
}

func (a *app) cmdRead(ctx context.Context, conversationID string) {
	if err := a.conversations.Load(ctx); err != nil {
		fatal(err)
	}
	if _, ok := a.conversations.Get(conversationID); !ok {
		fatal(fmt.Errorf("unknown conversation: %s", conversationID))
	}
	a.conversations.MarkRead(conversationID)
	a.conversations.Wait()
	fmt.Printf("marked %s read\n", conversationID)
}

func (a *app) cmdDisputes(ctx context.Context, statusFilter string) {
	if statusFilter != "" {
		status, ok := domain.NormalizeDisputeStatus(statusFilter)
		if !ok {
			fatal(fmt.Errorf("unknown dispute status: %s", statusFilter))
		}
		a.disputes.SetFilter(&status)
	} else {
		a.disputes.Hydrate()
	}
	loadErr := a.disputes.Load(ctx)
	disputes := a.disputes.Snapshot()
	if loadErr != nil {
		if len(disputes) == 0 {
			fatal(loadErr)
		}
		fmt.Fprintf(os.Stderr, "warning: %v (showing cached data)\n", loadErr)
	}
	if a.jsonOut {
		outputJSON(disputes)
		return
	}
	for _, d := range disputes {
		fmt.Printf("%-24s %-12s %-22s %s\n", d.ID, d.OrderID, d.Status, d.Reason)
		actions := domain.AvailableActions(d.Status)
		if len(actions) > 0 {
			names := make([]string, 0, len(actions))
			for _, act := range actions {
				names = append(names, string(act))
			}
			fmt.Printf("  actions: %s\n", strings.Join(names, ", "))
		}
	}
}

func (a *app) cmdCreateDispute(ctx context.Context, orderID, reason, description string, files fileList) {
	uploads, err := readUploads(files)
	if err != nil {
		fatal(err)
	}
	d, err := a.disputes.Create(ctx, domain.CreateDisputeInput{
		OrderID:     orderID,
		Reason:      reason,
		Description: description,
	}, uploads)
	if err != nil {
		fatal(err)
	}
	if a.jsonOut {
		outputJSON(d)
		return
	}
	fmt.Printf("created dispute %s (%s)\n", d.ID, d.Status)
}

func (a *app) cmdEvidence(ctx context.Context, disputeID string, files fileList) {
	if len(files) == 0 {
		fatal(fmt.Errorf("evidence requires at least one --file"))
	}
	uploads, err := readUploads(files)
	if err != nil {
		fatal(err)
	}
	d, err := a.disputes.AddEvidence(ctx, disputeID, uploads)
	if err != nil {
		fatal(err)
	}
	if a.jsonOut {
		outputJSON(d)
		return
	}
	fmt.Printf("dispute %s now holds %d evidence files\n", d.ID, len(d.Evidence))
}

func (a *app) cmdComment(ctx context.Context, disputeID, text string) {
	d, err := a.disputes.AddComment(ctx, disputeID, text)
	if err != nil {
		fatal(err)
	}
	if a.jsonOut {
		outputJSON(d)
		return
	}
	fmt.Printf("commented on dispute %s\n", d.ID)
}

// cmdWatch polls on the configured interval and streams bus events to
// stdout until interrupted.
func (a *app) cmdWatch(ctx context.Context) {
	events, unsubscribe := a.bus.Subscribe("", 64)
	defer unsubscribe()

	a.conversations.Hydrate()
	a.disputes.Hydrate()
	_ = a.conversations.Load(ctx)
	_ = a.disputes.Load(ctx)

	ticker := time.NewTicker(a.cfg.PollInterval.Std())
	defer ticker.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	fmt.Fprintf(os.Stderr, "watching (poll every %s), ctrl-c to stop\n", a.cfg.PollInterval.Std())
	for {
		select {
		case <-sig:
			return
		case <-ticker.C:
			_ = a.conversations.Load(ctx)
			_ = a.disputes.Load(ctx)
		case evt := <-events:
			if a.jsonOut {
				outputJSON(map[string]any{"kind": evt.Kind, "timestamp": evt.Timestamp, "payload": evt.Payload})
			} else {
				fmt.Printf("%s  %s\n", evt.Timestamp.Format(time.RFC3339), evt.Kind)
			}
		}
	}
}

func readUploads(files fileList) ([]domain.FileUpload, error) {
	uploads := make([]domain.FileUpload, 0, len(files))
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		contentType := mime.TypeByExtension(filepath.Ext(path))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		uploads = append(uploads, domain.FileUpload{
			Name:        filepath.Base(path),
			ContentType: contentType,
			Data:        data,
		})
	}
	return uploads, nil
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
