package bridge

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/airrelay/internal/gateway"
)

// Command is a parsed chat command together with where it was issued.
type Command struct {
	Name      string
	Args      string
	GroupID   int64
	TopicID   int64
	UserID    int64
	MessageID int64
}

// ParseCommand splits "/name@bot args" into a Command with Name and Args
// set. ok is false when text is not a command.
func ParseCommand(text string) (Command, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") || len(text) == 1 {
		return Command{}, false
	}

	head, args, _ := strings.Cut(text[1:], " ")
	name, _, _ := strings.Cut(head, "@")
	if name == "" {
		return Command{}, false
	}
	return Command{
		Name: strings.ToLower(name),
		Args: strings.TrimSpace(args),
	}, true
}

// privileged commands require admin rights once an admin exists. addadmin
// is checked by Authorizer.Admit, before its target is resolved, so it can
// bootstrap.
var privileged = map[string]bool{
	"bind":        true,
	"unbind":      true,
	"bindphone":   true,
	"unbindphone": true,
	"addadmin":    true,
}

const helpText = "Available commands:\n" +
	"/bind <imei> - Bind a device to this group\n" +
	"/unbind [imei] - Remove the device binding\n" +
	"/bindphone <phone> - Bind a phone number to a topic\n" +
	"/unbindphone [phone] - Remove the phone binding of this topic\n" +
	"/addadmin [user] - Grant admin rights\n" +
	"/admins - List admins\n" +
	"/status - Show device status\n" +
	"/help - Show this help message"

const startText = "SMS to Telegram Bridge Bot\n\n" +
	"Use this bot to forward SMS messages to Telegram and reply to them.\n\n" +
	helpText

// HandleCommand executes cmd and returns the reply text. An empty reply
// means the command is unknown and should be ignored.
func (s *Service) HandleCommand(ctx context.Context, cmd Command) string {
	if privileged[cmd.Name] && cmd.Name != "addadmin" {
		if err := s.auth.Authorize(ctx, cmd.UserID); err != nil {
			return s.commandFailure(cmd, err)
		}
	}

	var (
		reply string
		err   error
	)
	switch cmd.Name {
	case "start":
		reply = startText
	case "help":
		reply = helpText
	case "status":
		reply, err = s.statusReply(ctx, cmd.GroupID)
	case "bind":
		reply, err = s.bindReply(ctx, cmd)
	case "unbind":
		reply, err = s.unbindReply(ctx, cmd)
	case "bindphone":
		reply, err = s.bindPhoneReply(ctx, cmd)
	case "unbindphone":
		reply, err = s.unbindPhoneReply(ctx, cmd)
	case "addadmin":
		reply, err = s.addAdminReply(ctx, cmd)
	case "admins":
		reply, err = s.adminsReply(ctx)
	default:
		return ""
	}
	if err != nil {
		return s.commandFailure(cmd, err)
	}

	s.getLogger().Info("command handled",
		"command", cmd.Name,
		"group_id", cmd.GroupID,
		"user_id", cmd.UserID,
	)
	return reply
}

// commandFailure turns err into reply text. Rule violations carry their
// own message; anything else is an infrastructure failure.
func (s *Service) commandFailure(cmd Command, err error) string {
	var cerr *CommandError
	if errors.As(err, &cerr) {
		s.getLogger().Debug("command rejected",
			"command", cmd.Name,
			"user_id", cmd.UserID,
			"reason", cerr.Kind,
		)
		return cerr.Msg
	}

	s.getLogger().Error("command failed",
		"command", cmd.Name,
		"group_id", cmd.GroupID,
		"error", err,
	)
	if errors.Is(err, ErrTopicUnavailable) {
		return "Error: Could not create a topic for this phone."
	}
	return replyStoreFailure
}

func (s *Service) statusReply(ctx context.Context, groupID int64) (string, error) {
	imei, ok, err := s.dir.DeviceForGroup(ctx, groupID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "No device is bound to this group.", nil
	}

	info, seen := s.Device(imei)
	if !seen {
		return fmt.Sprintf("Device IMEI: %s\nStatus: unknown (no report received yet)", imei), nil
	}
	st := info.Status
	return fmt.Sprintf("Device IMEI: %s\nStatus: %s\nSignal: %d\nBattery: %d%%\nLast report: %s",
		imei,
		st.Status,
		st.SignalStrength,
		st.BatteryLevel,
		info.ReceivedAt.UTC().Format(time.RFC3339),
	), nil
}

func (s *Service) bindReply(ctx context.Context, cmd Command) (string, error) {
	if err := s.binder.BindDevice(ctx, cmd.GroupID, cmd.Args); err != nil {
		return "", err
	}
	return fmt.Sprintf("Device %s has been bound to this group successfully.", strings.TrimSpace(cmd.Args)), nil
}

func (s *Service) unbindReply(ctx context.Context, cmd Command) (string, error) {
	imei, err := s.binder.UnbindDevice(ctx, cmd.GroupID, cmd.Args)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Device %s has been unbound from this group.", imei), nil
}

func (s *Service) bindPhoneReply(ctx context.Context, cmd Command) (string, error) {
	topicID, err := s.binder.BindPhone(ctx, cmd.GroupID, cmd.TopicID, cmd.Args)
	if err != nil {
		return "", err
	}
	phone := gateway.NormalizePhone(cmd.Args)
	if topicID == cmd.TopicID {
		return fmt.Sprintf("Phone %s has been bound to this topic.", phone), nil
	}
	return fmt.Sprintf("Phone %s has been bound to a new topic.", phone), nil
}

func (s *Service) unbindPhoneReply(ctx context.Context, cmd Command) (string, error) {
	phone, err := s.binder.UnbindPhone(ctx, cmd.GroupID, cmd.TopicID, cmd.Args)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Phone %s has been unbound from this topic.", phone), nil
}

func (s *Service) addAdminReply(ctx context.Context, cmd Command) (string, error) {
	bootstrapped, err := s.auth.Admit(ctx, cmd.UserID)
	if err != nil {
		return "", err
	}
	if bootstrapped {
		return fmt.Sprintf("You (%d) are now the first admin.", cmd.UserID), nil
	}

	target := cmd.UserID
	if cmd.Args != "" {
		id, err := s.platform.ResolveUser(ctx, cmd.Args)
		if err != nil {
			return "", reject(ErrInvalidArgument, "Could not find user %s.", cmd.Args)
		}
		target = id
	}

	added, err := s.dir.AddAdmin(ctx, target)
	if err != nil {
		return "", err
	}
	if !added {
		return fmt.Sprintf("User %d is already an admin.", target), nil
	}
	return fmt.Sprintf("User %d is now an admin.", target), nil
}

func (s *Service) adminsReply(ctx context.Context) (string, error) {
	ids, err := s.dir.ListAdmins(ctx)
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "No admins are configured. The first user to run /addadmin becomes admin.", nil
	}

	var b strings.Builder
	b.WriteString("Admins:")
	for _, id := range ids {
		b.WriteString("\n")
		b.WriteString(strconv.FormatInt(id, 10))
	}
	return b.String(), nil
}
