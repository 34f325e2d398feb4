package bridge

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/airrelay/internal/cache"
	"github.com/nerrad567/airrelay/internal/directory"
	"github.com/nerrad567/airrelay/internal/gateway"
	"github.com/nerrad567/airrelay/internal/infrastructure/config"
	"github.com/nerrad567/airrelay/internal/store"
	"github.com/nerrad567/airrelay/internal/store/sqlitekv"
)

// MockPlatform records what the bridge asks of the chat platform.
type MockPlatform struct {
	mu        sync.Mutex
	nextTopic int64
	nextMsg   int64
	topics    []string
	messages  []OutboundMessage
	resolved  []string

	createErr   error
	createNoID  bool
	sendErr     error
	createDelay time.Duration
}

func (m *MockPlatform) CreateTopic(_ context.Context, _ int64, title string) (int64, bool, error) {
	if m.createDelay > 0 {
		time.Sleep(m.createDelay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return 0, false, m.createErr
	}
	m.topics = append(m.topics, title)
	if m.createNoID {
		return 0, false, nil
	}
	m.nextTopic++
	return 1000 + m.nextTopic, true, nil
}

func (m *MockPlatform) SendMessage(_ context.Context, msg OutboundMessage) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return 0, m.sendErr
	}
	m.messages = append(m.messages, msg)
	m.nextMsg++
	return m.nextMsg, nil
}

func (m *MockPlatform) ResolveUser(_ context.Context, ref string) (int64, error) {
	m.mu.Lock()
	m.resolved = append(m.resolved, ref)
	m.mu.Unlock()
	return strconv.ParseInt(strings.TrimPrefix(ref, "@"), 10, 64)
}

func (m *MockPlatform) Topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.topics...)
}

func (m *MockPlatform) Resolved() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.resolved...)
}

func (m *MockPlatform) Messages() []OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]OutboundMessage(nil), m.messages...)
}

type sentSMS struct {
	IMEI, Recipient, Content string
}

// MockSender records SendSMS calls.
type MockSender struct {
	mu   sync.Mutex
	sent []sentSMS
	err  error
}

func (m *MockSender) SendSMS(_ context.Context, imei, recipient, content string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, sentSMS{imei, recipient, content})
	return "msg-" + strconv.Itoa(len(m.sent)), nil
}

func (m *MockSender) Sent() []sentSMS {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentSMS(nil), m.sent...)
}

type telemetryEvent struct {
	IMEI, Direction, Result string
}

// MockTelemetry records telemetry writes.
type MockTelemetry struct {
	mu      sync.Mutex
	events  []telemetryEvent
	devices []string
}

func (m *MockTelemetry) WriteDeviceStatus(imei, status string, _, _ int, _ time.Time) {
	m.mu.Lock()
	m.devices = append(m.devices, imei+"="+status)
	m.mu.Unlock()
}

func (m *MockTelemetry) WriteSMSEvent(imei, direction, result string) {
	m.mu.Lock()
	m.events = append(m.events, telemetryEvent{imei, direction, result})
	m.mu.Unlock()
}

func (m *MockTelemetry) Events() []telemetryEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]telemetryEvent(nil), m.events...)
}

var errPlatformDown = errors.New("platform unavailable")

type testEnv struct {
	svc       *Service
	dir       *directory.Directory
	platform  *MockPlatform
	sender    *MockSender
	telemetry *MockTelemetry
}

// newTestEnv wires a Service over the production directory stack: SQLite
// behind the LRU cache.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, nil)
}

// newTestEnvWith is newTestEnv with wrap applied to the cached store.
func newTestEnvWith(t *testing.T, wrap func(store.Store) store.Store) *testEnv {
	t.Helper()

	backend, err := sqlitekv.Open(context.Background(), config.StoreConfig{
		Backend: config.StoreBackendSQLite,
		SQLite: config.SQLiteConfig{
			Path:        filepath.Join(t.TempDir(), "bridge.db"),
			WALMode:     true,
			BusyTimeout: 5,
		},
	})
	if err != nil {
		t.Fatalf("sqlitekv.Open() error = %v", err)
	}
	kv, err := cache.New(backend, 64)
	if err != nil {
		t.Fatalf("cache.New() error = %v", err)
	}
	t.Cleanup(func() { kv.Close() }) //nolint:errcheck // Test cleanup

	var st store.Store = kv
	if wrap != nil {
		st = wrap(kv)
	}

	env := &testEnv{
		dir:       directory.New(st),
		platform:  &MockPlatform{},
		sender:    &MockSender{},
		telemetry: &MockTelemetry{},
	}
	env.svc = NewService(env.dir, env.platform)
	env.svc.SetSender(env.sender)
	env.svc.SetTelemetry(env.telemetry)
	return env
}

// run executes a command line as userID in groupID/topicID.
func (e *testEnv) run(t *testing.T, userID, groupID, topicID int64, line string) string {
	t.Helper()
	cmd, ok := ParseCommand(line)
	if !ok {
		t.Fatalf("ParseCommand(%q) not a command", line)
	}
	cmd.UserID = userID
	cmd.GroupID = groupID
	cmd.TopicID = topicID
	return e.svc.HandleCommand(context.Background(), cmd)
}

// brokenStore fails every call.
type brokenStore struct{}

var errBroken = errors.New("connection refused")

func (brokenStore) Get(context.Context, string) (string, bool, error) { return "", false, errBroken }
func (brokenStore) Put(context.Context, map[string]string) error      { return errBroken }
func (brokenStore) Delete(context.Context, ...string) error            { return errBroken }
func (brokenStore) CompareAndSwap(context.Context, string, string, string) (bool, error) {
	return false, errBroken
}
func (brokenStore) Close() error { return nil }

// slowStore delays every read, widening check-then-write windows.
type slowStore struct {
	store.Store
	delay time.Duration
}

func (s slowStore) Get(ctx context.Context, key string) (string, bool, error) {
	time.Sleep(s.delay)
	return s.Store.Get(ctx, key)
}

func directoryOver(kv store.Store) *directory.Directory {
	return directory.New(kv)
}

func gatewayStatus(status string, signal, battery int) gateway.DeviceStatus {
	return gateway.DeviceStatus{
		IMEI:           testIMEI,
		Status:         status,
		SignalStrength: signal,
		BatteryLevel:   battery,
	}
}
