package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/nerrad567/airrelay/internal/bridge"
	"github.com/nerrad567/airrelay/internal/infrastructure/config"
)

func topicMessage(text string) *models.Update {
	return &models.Update{Message: &models.Message{
		ID:              5,
		MessageThreadID: 77,
		IsTopicMessage:  true,
		From:            &models.User{ID: 42},
		Chat:            models.Chat{ID: -1001},
		Text:            text,
	}}
}

// =============================================================================
// Routing Tests
// =============================================================================

func TestRoute_Command(t *testing.T) {
	act := route(topicMessage("/bindphone@airrelay_bot +15550001"))
	if act.command == nil || act.reply != nil {
		t.Fatalf("route() = %+v, want command", act)
	}
	want := bridge.Command{
		Name: "bindphone", Args: "+15550001",
		GroupID: -1001, TopicID: 77, UserID: 42, MessageID: 5,
	}
	if *act.command != want {
		t.Errorf("command = %+v, want %+v", *act.command, want)
	}
}

func TestRoute_CommandOutsideTopic(t *testing.T) {
	u := topicMessage("/status")
	u.Message.IsTopicMessage = false
	u.Message.MessageThreadID = 0

	act := route(u)
	if act.command == nil || act.command.TopicID != 0 {
		t.Fatalf("route() = %+v, want command without topic", act)
	}
}

func TestRoute_TopicReply(t *testing.T) {
	act := route(topicMessage("hello there"))
	if act.reply == nil || act.command != nil {
		t.Fatalf("route() = %+v, want reply", act)
	}
	want := bridge.Reply{GroupID: -1001, TopicID: 77, MessageID: 5, Text: "hello there"}
	if *act.reply != want {
		t.Errorf("reply = %+v, want %+v", *act.reply, want)
	}
}

func TestRoute_Ignored(t *testing.T) {
	general := topicMessage("hello")
	general.Message.IsTopicMessage = false

	fromBot := topicMessage("hello")
	fromBot.Message.From.IsBot = true

	noSender := topicMessage("hello")
	noSender.Message.From = nil

	tests := map[string]*models.Update{
		"nil update":   nil,
		"no message":   {},
		"general chat": general,
		"from a bot":   fromBot,
		"no sender":    noSender,
		"empty text":   topicMessage("   "),
	}
	for name, u := range tests {
		t.Run(name, func(t *testing.T) {
			if act := route(u); act.command != nil || act.reply != nil {
				t.Errorf("route() = %+v, want ignored", act)
			}
		})
	}
}

// =============================================================================
// Dispatch Tests
// =============================================================================

type recordingHandler struct {
	mu       sync.Mutex
	commands []bridge.Command
	replies  []bridge.Reply
	answer   string
}

func (h *recordingHandler) HandleCommand(_ context.Context, cmd bridge.Command) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands = append(h.commands, cmd)
	return h.answer
}

func (h *recordingHandler) HandleReply(_ context.Context, r bridge.Reply) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.replies = append(h.replies, r)
	return "", errors.New("no phone")
}

// fakeAPI is a minimal Bot API server recording method calls and their
// form values.
type fakeAPI struct {
	mu    sync.Mutex
	calls []apiCall
}

type apiCall struct {
	method string
	form   map[string]string
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	f := &fakeAPI{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		_ = r.ParseMultipartForm(1 << 20)
		form := make(map[string]string)
		for k, v := range r.Form {
			form[k] = v[0]
		}
		f.mu.Lock()
		f.calls = append(f.calls, apiCall{method: method, form: form})
		f.mu.Unlock()

		var result any
		switch method {
		case "createForumTopic":
			result = map[string]any{"message_thread_id": 321, "name": form["name"], "icon_color": 0}
		case "sendMessage":
			result = map[string]any{"message_id": 99, "date": 0, "chat": map[string]any{"id": -1001, "type": "supergroup"}}
		case "getChat":
			result = map[string]any{"id": 555, "type": "private"}
		default:
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error_code": 404, "description": "Not Found"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeAPI) Calls() []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]apiCall(nil), f.calls...)
}

func newTestBot(t *testing.T, srv *httptest.Server) *Bot {
	t.Helper()
	b, err := New(config.TelegramConfig{Token: "123456:test"},
		tgbot.WithServerURL(srv.URL),
		tgbot.WithSkipGetMe(),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return b
}

func TestNew_RequiresToken(t *testing.T) {
	if _, err := New(config.TelegramConfig{}); !errors.Is(err, ErrNoToken) {
		t.Errorf("New() error = %v, want ErrNoToken", err)
	}
}

func TestOnUpdate_CommandAnswered(t *testing.T) {
	api, srv := newFakeAPI(t)
	b := newTestBot(t, srv)
	h := &recordingHandler{answer: "Device X has been bound to this group successfully."}
	b.SetHandler(h)

	b.onUpdate(context.Background(), nil, topicMessage("/bind X"))

	if len(h.commands) != 1 || h.commands[0].Name != "bind" {
		t.Fatalf("commands = %+v", h.commands)
	}
	calls := api.Calls()
	if len(calls) != 1 || calls[0].method != "sendMessage" {
		t.Fatalf("api calls = %+v, want one sendMessage", calls)
	}
	if calls[0].form["text"] != h.answer || calls[0].form["message_thread_id"] != "77" {
		t.Errorf("sendMessage form = %v", calls[0].form)
	}
}

func TestOnUpdate_UnknownCommandIgnored(t *testing.T) {
	api, srv := newFakeAPI(t)
	b := newTestBot(t, srv)
	b.SetHandler(&recordingHandler{})

	b.onUpdate(context.Background(), nil, topicMessage("/nope"))

	if n := len(api.Calls()); n != 0 {
		t.Errorf("api calls = %d, want 0", n)
	}
}

func TestOnUpdate_ReplyDispatched(t *testing.T) {
	_, srv := newFakeAPI(t)
	b := newTestBot(t, srv)
	h := &recordingHandler{}
	b.SetHandler(h)

	b.onUpdate(context.Background(), nil, topicMessage("hi"))

	if len(h.replies) != 1 || h.replies[0].Text != "hi" {
		t.Errorf("replies = %+v", h.replies)
	}
}

func TestOnUpdate_NoHandler(t *testing.T) {
	api, srv := newFakeAPI(t)
	b := newTestBot(t, srv)

	b.onUpdate(context.Background(), nil, topicMessage("/help"))

	if n := len(api.Calls()); n != 0 {
		t.Errorf("api calls = %d, want 0", n)
	}
}

// =============================================================================
// Platform Tests
// =============================================================================

func TestCreateTopic(t *testing.T) {
	api, srv := newFakeAPI(t)
	b := newTestBot(t, srv)

	id, ok, err := b.CreateTopic(context.Background(), -1001, "SMS: +15550001")
	if err != nil || !ok || id != 321 {
		t.Fatalf("CreateTopic() = (%d, %v, %v), want 321", id, ok, err)
	}
	call := api.Calls()[0]
	if call.method != "createForumTopic" || call.form["name"] != "SMS: +15550001" || call.form["chat_id"] != "-1001" {
		t.Errorf("call = %+v", call)
	}
}

func TestSendMessage(t *testing.T) {
	api, srv := newFakeAPI(t)
	b := newTestBot(t, srv)

	id, err := b.SendMessage(context.Background(), bridge.OutboundMessage{
		GroupID: -1001, TopicID: 77, Text: "From: +15550001\n\nhi",
	})
	if err != nil || id != 99 {
		t.Fatalf("SendMessage() = (%d, %v), want 99", id, err)
	}
	call := api.Calls()[0]
	if call.form["text"] != "From: +15550001\n\nhi" {
		t.Errorf("text = %q", call.form["text"])
	}
}

func TestSendMessage_Reply(t *testing.T) {
	api, srv := newFakeAPI(t)
	b := newTestBot(t, srv)

	if _, err := b.SendMessage(context.Background(), bridge.OutboundMessage{
		GroupID: -1001, ReplyTo: 5, Text: "delivered",
	}); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if rp := api.Calls()[0].form["reply_parameters"]; !strings.Contains(rp, `"message_id":5`) {
		t.Errorf("reply_parameters = %q", rp)
	}
}

func TestResolveUser(t *testing.T) {
	api, srv := newFakeAPI(t)
	b := newTestBot(t, srv)
	ctx := context.Background()

	if id, err := b.ResolveUser(ctx, " 1234 "); err != nil || id != 1234 {
		t.Errorf("ResolveUser(1234) = (%d, %v)", id, err)
	}
	if n := len(api.Calls()); n != 0 {
		t.Errorf("numeric reference hit the API %d time(s)", n)
	}

	if id, err := b.ResolveUser(ctx, "@alice"); err != nil || id != 555 {
		t.Errorf("ResolveUser(@alice) = (%d, %v), want 555", id, err)
	}

	for _, ref := range []string{"", "@", "alice"} {
		if _, err := b.ResolveUser(ctx, ref); err == nil {
			t.Errorf("ResolveUser(%q) should fail", ref)
		}
	}
}
