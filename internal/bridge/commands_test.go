package bridge

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/airrelay/internal/store"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in       string
		wantOK   bool
		wantName string
		wantArgs string
	}{
		{"/bind 860000000000001", true, "bind", "860000000000001"},
		{"/bind@airrelay_bot 860000000000001", true, "bind", "860000000000001"},
		{"  /Status  ", true, "status", ""},
		{"/addadmin   @alice ", true, "addadmin", "@alice"},
		{"/", false, "", ""},
		{"/@bot", false, "", ""},
		{"hello", false, "", ""},
		{"", false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			cmd, ok := ParseCommand(tt.in)
			if ok != tt.wantOK {
				t.Fatalf("ParseCommand(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
			}
			if cmd.Name != tt.wantName || cmd.Args != tt.wantArgs {
				t.Errorf("ParseCommand(%q) = (%q, %q), want (%q, %q)",
					tt.in, cmd.Name, cmd.Args, tt.wantName, tt.wantArgs)
			}
		})
	}
}

func TestHandleCommand_Unknown(t *testing.T) {
	env := newTestEnv(t)
	if got := env.run(t, 1, testGroup, 0, "/nope"); got != "" {
		t.Errorf("unknown command reply = %q, want empty", got)
	}
	if got := env.run(t, 1, testGroup, 0, "/help"); !strings.Contains(got, "/bindphone <phone>") {
		t.Errorf("/help = %q", got)
	}
	if got := env.run(t, 1, testGroup, 0, "/start"); !strings.HasPrefix(got, "SMS to Telegram Bridge Bot") {
		t.Errorf("/start = %q", got)
	}
}

// =============================================================================
// Device binding
// =============================================================================

func TestBindCommand(t *testing.T) {
	env := newTestEnv(t)

	steps := []struct {
		group int64
		line  string
		want  string
	}{
		{-1, "/bind", "Please specify the device IMEI. Usage: /bind <imei>"},
		{-1, "/bind X", "Device X has been bound to this group successfully."},
		{-1, "/bind X", "Device X has been bound to this group successfully."},
		{-2, "/bind X", "Device X is already bound to another group. Unbind it first."},
		{-1, "/bind Y", "This group is already bound to device X. Unbind it first."},
		{-1, "/bind a/b", "\"a/b\" is not a valid device IMEI."},
	}
	for _, s := range steps {
		if got := env.run(t, 1, s.group, 0, s.line); got != s.want {
			t.Errorf("%s in %d = %q, want %q", s.line, s.group, got, s.want)
		}
	}

	imei, ok, err := env.dir.DeviceForGroup(context.Background(), -1)
	if err != nil || !ok || imei != "X" {
		t.Errorf("DeviceForGroup(-1) = (%q, %v, %v), want X", imei, ok, err)
	}
	if _, ok, _ := env.dir.DeviceForGroup(context.Background(), -2); ok {
		t.Error("rejected bind reached the directory")
	}
}

func TestBindCommand_ConcurrentGroupsOneDevice(t *testing.T) {
	env := newTestEnvWith(t, func(kv store.Store) store.Store {
		return slowStore{Store: kv, delay: 20 * time.Millisecond}
	})

	groups := []int64{-1001, -1002}
	replies := make([]string, len(groups))
	var wg sync.WaitGroup
	for i, g := range groups {
		wg.Add(1)
		go func() {
			defer wg.Done()
			replies[i] = env.run(t, 1, g, 0, "/bind IMEI1")
		}()
	}
	wg.Wait()

	const (
		bound    = "Device IMEI1 has been bound to this group successfully."
		conflict = "Device IMEI1 is already bound to another group. Unbind it first."
	)
	winner, loser := groups[0], groups[1]
	switch {
	case replies[0] == bound && replies[1] == conflict:
	case replies[0] == conflict && replies[1] == bound:
		winner, loser = loser, winner
	default:
		t.Fatalf("replies = %q, want one bind and one conflict", replies)
	}

	ctx := context.Background()
	group, ok, err := env.dir.GroupForDevice(ctx, "IMEI1")
	if err != nil || !ok || group != winner {
		t.Errorf("GroupForDevice(IMEI1) = (%d, %v, %v), want %d", group, ok, err, winner)
	}
	imei, ok, err := env.dir.DeviceForGroup(ctx, winner)
	if err != nil || !ok || imei != "IMEI1" {
		t.Errorf("DeviceForGroup(%d) = (%q, %v, %v), want IMEI1", winner, imei, ok, err)
	}
	if imei, ok, _ := env.dir.DeviceForGroup(ctx, loser); ok {
		t.Errorf("DeviceForGroup(%d) = %q, want absent", loser, imei)
	}
}

func TestUnbindCommand(t *testing.T) {
	env := newTestEnv(t)

	steps := []struct {
		group int64
		line  string
		want  string
	}{
		{-1, "/unbind", "No device is bound to this group."},
		{-1, "/bind X", "Device X has been bound to this group successfully."},
		{-2, "/unbind X", "Device X is not bound to this group."},
		{-1, "/unbind Y", "Device Y is not bound to this group."},
		{-1, "/unbind", "Device X has been unbound from this group."},
		{-1, "/unbind", "No device is bound to this group."},
		{-1, "/unbind X", "Device X is not bound to this group."},
	}
	for _, s := range steps {
		if got := env.run(t, 1, s.group, 0, s.line); got != s.want {
			t.Errorf("%s in %d = %q, want %q", s.line, s.group, got, s.want)
		}
	}
}

// =============================================================================
// Phone binding
// =============================================================================

func TestBindPhoneCommand(t *testing.T) {
	env := newTestEnv(t)

	steps := []struct {
		topic int64
		line  string
		want  string
	}{
		{77, "/bindphone", "Please specify the phone number. Usage: /bindphone <phone>"},
		{77, "/bindphone 15550001", "Phone +15550001 has been bound to this topic."},
		{77, "/bindphone +15550001", "Phone +15550001 has been bound to this topic."},
		{78, "/bindphone +15550001", "Phone +15550001 already has a topic in this group."},
		{77, "/bindphone +15550002", "This topic is already bound to +15550001."},
		{0, "/bindphone +15550003", "Phone +15550003 has been bound to a new topic."},
	}
	for _, s := range steps {
		if got := env.run(t, 1, testGroup, s.topic, s.line); got != s.want {
			t.Errorf("%s in topic %d = %q, want %q", s.line, s.topic, got, s.want)
		}
	}

	if topics := env.platform.Topics(); !slices.Equal(topics, []string{"SMS: +15550003"}) {
		t.Errorf("CreateTopic titles = %v", topics)
	}
}

func TestBindPhoneCommand_TopicUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.platform.createErr = errPlatformDown

	got := env.run(t, 1, testGroup, 0, "/bindphone +15550003")
	if got != "Error: Could not create a topic for this phone." {
		t.Errorf("reply = %q", got)
	}
}

func TestUnbindPhoneCommand(t *testing.T) {
	env := newTestEnv(t)

	steps := []struct {
		topic int64
		line  string
		want  string
	}{
		{0, "/unbindphone", "Run /unbindphone inside the topic of the phone to unbind."},
		{77, "/unbindphone", "No phone is bound to this topic."},
		{77, "/bindphone +15550001", "Phone +15550001 has been bound to this topic."},
		{77, "/unbindphone +15550002", "Phone +15550002 is not bound to this topic."},
		{77, "/unbindphone 15550001", "Phone +15550001 has been unbound from this topic."},
		{77, "/unbindphone", "No phone is bound to this topic."},
	}
	for _, s := range steps {
		if got := env.run(t, 1, testGroup, s.topic, s.line); got != s.want {
			t.Errorf("%s in topic %d = %q, want %q", s.line, s.topic, got, s.want)
		}
	}
}

// =============================================================================
// Status
// =============================================================================

func TestStatusCommand(t *testing.T) {
	env := newTestEnv(t)

	if got := env.run(t, 1, testGroup, 0, "/status"); got != "No device is bound to this group." {
		t.Errorf("/status unbound = %q", got)
	}

	env.bindDevice(t)
	if got := env.run(t, 1, testGroup, 0, "/status"); !strings.Contains(got, "Status: unknown") {
		t.Errorf("/status before report = %q", got)
	}

	env.svc.HandleDeviceStatus(context.Background(), gatewayStatus("online", 71, 93))
	got := env.run(t, 1, testGroup, 0, "/status")
	for _, want := range []string{"Device IMEI: X", "Status: online", "Signal: 71", "Battery: 93%"} {
		if !strings.Contains(got, want) {
			t.Errorf("/status = %q, missing %q", got, want)
		}
	}
}

// =============================================================================
// Authorization
// =============================================================================

func TestAuthorization(t *testing.T) {
	env := newTestEnv(t)

	// Open until the first admin exists.
	if got := env.run(t, 2, -1, 0, "/bind X"); got != "Device X has been bound to this group successfully." {
		t.Fatalf("/bind before any admin = %q", got)
	}
	if got := env.run(t, 1, -1, 0, "/admins"); !strings.HasPrefix(got, "No admins are configured.") {
		t.Errorf("/admins = %q", got)
	}

	if got := env.run(t, 1, -1, 0, "/addadmin"); got != "You (1) are now the first admin." {
		t.Fatalf("bootstrap /addadmin = %q", got)
	}

	denied := "This command requires admin privileges."
	for _, line := range []string{"/bind Y", "/unbind", "/bindphone +1555", "/unbindphone", "/addadmin 2"} {
		if got := env.run(t, 2, -1, 77, line); got != denied {
			t.Errorf("%s by non-admin = %q, want %q", line, got, denied)
		}
	}
	// Non-privileged commands stay open.
	if got := env.run(t, 2, -1, 0, "/status"); !strings.Contains(got, "Device IMEI: X") {
		t.Errorf("/status by non-admin = %q", got)
	}

	if got := env.run(t, 1, -1, 0, "/addadmin @2"); got != "User 2 is now an admin." {
		t.Errorf("/addadmin @2 = %q", got)
	}
	if got := env.run(t, 1, -1, 0, "/addadmin 2"); got != "User 2 is already an admin." {
		t.Errorf("repeat /addadmin 2 = %q", got)
	}
	if got := env.run(t, 1, -1, 0, "/addadmin nobody"); got != "Could not find user nobody." {
		t.Errorf("/addadmin nobody = %q", got)
	}
	if got := env.run(t, 2, -1, 0, "/unbind"); got != "Device X has been unbound from this group." {
		t.Errorf("/unbind by new admin = %q", got)
	}
	if got := env.run(t, 2, -1, 0, "/admins"); got != "Admins:\n1\n2" {
		t.Errorf("/admins = %q", got)
	}
}

func TestAddAdmin_DeniedBeforeResolvingTarget(t *testing.T) {
	env := newTestEnv(t)

	if got := env.run(t, 1, -1, 0, "/addadmin"); got != "You (1) are now the first admin." {
		t.Fatalf("bootstrap /addadmin = %q", got)
	}
	if got := env.run(t, 2, -1, 0, "/addadmin @notanumber"); got != "This command requires admin privileges." {
		t.Errorf("/addadmin @notanumber by non-admin = %q", got)
	}
	if got := env.run(t, 2, -1, 0, "/addadmin @3"); got != "This command requires admin privileges." {
		t.Errorf("/addadmin @3 by non-admin = %q", got)
	}
	if refs := env.platform.Resolved(); len(refs) != 0 {
		t.Errorf("ResolveUser called for a non-admin: %v", refs)
	}

	// The bootstrap claim ignores the target, so nothing is resolved either.
	fresh := newTestEnv(t)
	if got := fresh.run(t, 5, -1, 0, "/addadmin @9"); got != "You (5) are now the first admin." {
		t.Errorf("bootstrap /addadmin @9 = %q", got)
	}
	if refs := fresh.platform.Resolved(); len(refs) != 0 {
		t.Errorf("ResolveUser called during bootstrap: %v", refs)
	}
}

func TestAddAdmin_BootstrapRace(t *testing.T) {
	env := newTestEnv(t)
	auth := env.svc.Authorizer()

	const racers = 16
	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		bootstrapped []int64
		denied       int
	)
	for i := range racers {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			first, err := auth.Admit(context.Background(), id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && first:
				bootstrapped = append(bootstrapped, id)
			case errors.Is(err, ErrUnauthorized):
				denied++
			default:
				t.Errorf("Admit(%d) = (%v, %v)", id, first, err)
			}
		}(int64(i + 1))
	}
	wg.Wait()

	if len(bootstrapped) != 1 || denied != racers-1 {
		t.Fatalf("bootstrapped = %v, denied = %d; want exactly one winner", bootstrapped, denied)
	}
	admins, err := env.dir.ListAdmins(context.Background())
	if err != nil || !slices.Equal(admins, bootstrapped) {
		t.Errorf("ListAdmins() = (%v, %v), want %v", admins, err, bootstrapped)
	}
}

func TestCommand_StoreUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.svc = NewService(directoryOver(brokenStore{}), env.platform)

	if got := env.run(t, 1, -1, 0, "/bind X"); got != replyStoreFailure {
		t.Errorf("/bind with broken store = %q, want %q", got, replyStoreFailure)
	}
}
