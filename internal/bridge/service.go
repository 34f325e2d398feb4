package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/airrelay/internal/directory"
	"github.com/nerrad567/airrelay/internal/gateway"
	"github.com/nerrad567/airrelay/internal/infrastructure/influxdb"
)

// Replies posted back into the chat when a reply cannot be relayed.
const (
	replyNoRecipient  = "Error: Could not determine the recipient for this message."
	replyNoDevice     = "Error: No device is bound to this group."
	replySendFailed   = "Failed to send SMS message."
	replyStoreFailure = "Error: The directory is unavailable. Please try again later."
)

// Reply is a chat message posted inside a topic that should go out as SMS.
type Reply struct {
	GroupID   int64
	TopicID   int64
	MessageID int64
	Text      string
}

// DeviceInfo is the last status report seen from a device.
type DeviceInfo struct {
	Status     gateway.DeviceStatus
	ReceivedAt time.Time
}

// Service relays SMS between devices and the chat platform. It implements
// gateway.Handler for device traffic and handles chat replies and commands.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Service struct {
	dir       *directory.Directory
	binder    *Binder
	auth      *Authorizer
	platform  Platform
	telemetry Telemetry
	now       func() time.Time

	senderMu sync.RWMutex
	sender   SMSSender

	devicesMu sync.RWMutex
	devices   map[string]DeviceInfo

	logger   Logger
	loggerMu sync.RWMutex
}

// NewService creates a Service. Set the SMS sender with SetSender before
// relaying replies.
func NewService(dir *directory.Directory, platform Platform) *Service {
	return &Service{
		dir:       dir,
		binder:    NewBinder(dir, platform),
		auth:      NewAuthorizer(dir),
		platform:  platform,
		telemetry: noopTelemetry{},
		now:       time.Now,
		devices:   make(map[string]DeviceInfo),
		logger:    noopLogger{},
	}
}

// SetSender sets the device channel used for outbound SMS.
func (s *Service) SetSender(sender SMSSender) {
	s.senderMu.Lock()
	s.sender = sender
	s.senderMu.Unlock()
}

func (s *Service) getSender() SMSSender {
	s.senderMu.RLock()
	defer s.senderMu.RUnlock()
	return s.sender
}

// SetTelemetry sets where relay events are recorded. Nil disables it.
func (s *Service) SetTelemetry(t Telemetry) {
	if t == nil {
		t = noopTelemetry{}
	}
	s.telemetry = t
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

func (s *Service) getLogger() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

// Binder returns the binding rules used by the service.
func (s *Service) Binder() *Binder { return s.binder }

// Authorizer returns the admin gate used by the service.
func (s *Service) Authorizer() *Authorizer { return s.auth }

// ForwardSMS posts an inbound SMS into the topic of its sender, creating
// and binding the topic on first contact. It returns the platform message
// id of the forwarded message.
func (s *Service) ForwardSMS(ctx context.Context, msg gateway.IncomingSMS) (int64, error) {
	sender := gateway.NormalizePhone(msg.Sender)

	groupID, ok, err := s.dir.GroupForDevice(ctx, msg.IMEI)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: no group for device %s", ErrNotBound, msg.IMEI)
	}

	topicID, err := s.binder.ensureTopic(ctx, groupID, sender)
	if err != nil {
		return 0, err
	}

	msgID, err := s.platform.SendMessage(ctx, OutboundMessage{
		GroupID: groupID,
		TopicID: topicID,
		Text:    formatForward(sender, msg.Content),
	})
	if err != nil {
		return 0, fmt.Errorf("forwarding sms to group %d: %w", groupID, err)
	}

	s.getLogger().Info("sms forwarded",
		"imei", msg.IMEI,
		"group_id", groupID,
		"topic_id", topicID,
	)
	return msgID, nil
}

func formatForward(sender, content string) string {
	return fmt.Sprintf("From: %s\n\n%s", sender, content)
}

// HandleIncomingSMS implements gateway.Handler.
func (s *Service) HandleIncomingSMS(ctx context.Context, msg gateway.IncomingSMS) {
	if _, err := s.ForwardSMS(ctx, msg); err != nil {
		s.telemetry.WriteSMSEvent(msg.IMEI, influxdb.DirectionInbound, "failed")
		if errors.Is(err, ErrNotBound) {
			s.getLogger().Warn("sms from unbound device dropped", "imei", msg.IMEI)
			return
		}
		s.getLogger().Error("sms forward failed", "imei", msg.IMEI, "error", err)
		return
	}
	s.telemetry.WriteSMSEvent(msg.IMEI, influxdb.DirectionInbound, "forwarded")
}

// HandleReply sends a chat reply as SMS to the phone bound to its topic
// and tracks it for the later status report. It returns the SMS message
// id; failures are also reported in the chat.
func (s *Service) HandleReply(ctx context.Context, r Reply) (string, error) {
	phone, ok, err := s.dir.PhoneForTopic(ctx, r.GroupID, r.TopicID)
	if err != nil {
		s.replyTo(ctx, r, replyStoreFailure)
		return "", err
	}
	if !ok {
		s.replyTo(ctx, r, replyNoRecipient)
		return "", fmt.Errorf("%w: no phone for topic %d", ErrNotBound, r.TopicID)
	}

	imei, ok, err := s.dir.DeviceForGroup(ctx, r.GroupID)
	if err != nil {
		s.replyTo(ctx, r, replyStoreFailure)
		return "", err
	}
	if !ok {
		s.replyTo(ctx, r, replyNoDevice)
		return "", fmt.Errorf("%w: no device for group %d", ErrNotBound, r.GroupID)
	}

	sender := s.getSender()
	if sender == nil {
		s.replyTo(ctx, r, replySendFailed)
		return "", ErrNoSender
	}

	messageID, err := sender.SendSMS(ctx, imei, phone, r.Text)
	if err != nil {
		s.telemetry.WriteSMSEvent(imei, influxdb.DirectionOutbound, "failed")
		s.replyTo(ctx, r, replySendFailed)
		return "", err
	}
	s.telemetry.WriteSMSEvent(imei, influxdb.DirectionOutbound, "queued")

	// The SMS is already queued; a tracking failure only loses the status
	// reply.
	if err := s.dir.TrackMessage(ctx, messageID, r.GroupID, r.MessageID); err != nil {
		s.getLogger().Error("tracking outbound sms failed",
			"message_id", messageID,
			"error", err,
		)
	}
	return messageID, nil
}

func (s *Service) replyTo(ctx context.Context, r Reply, text string) {
	if _, err := s.platform.SendMessage(ctx, OutboundMessage{
		GroupID: r.GroupID,
		TopicID: r.TopicID,
		ReplyTo: r.MessageID,
		Text:    text,
	}); err != nil {
		s.getLogger().Warn("posting reply failed", "group_id", r.GroupID, "error", err)
	}
}

// HandleSMSStatus implements gateway.Handler. The status is posted as a
// reply to the originating chat message and the tracking record is then
// deleted, whether or not the post succeeded.
func (s *Service) HandleSMSStatus(ctx context.Context, st gateway.SMSStatus) {
	rec, ok, err := s.dir.TrackedMessage(ctx, st.MessageID)
	if err != nil {
		s.getLogger().Error("reading tracked message failed", "message_id", st.MessageID, "error", err)
		return
	}
	if !ok {
		s.getLogger().Warn("status for untracked message", "message_id", st.MessageID)
		return
	}

	s.telemetry.WriteSMSEvent(st.IMEI, influxdb.DirectionStatus, st.Status)

	if _, err := s.platform.SendMessage(ctx, OutboundMessage{
		GroupID: rec.GroupID,
		ReplyTo: rec.MsgID,
		Text:    st.Status,
	}); err != nil {
		s.getLogger().Warn("posting sms status failed", "message_id", st.MessageID, "error", err)
	}

	if err := s.dir.DeleteTrackedMessage(ctx, st.MessageID); err != nil {
		s.getLogger().Error("deleting tracked message failed", "message_id", st.MessageID, "error", err)
	}
}

// HandleDeviceStatus implements gateway.Handler.
func (s *Service) HandleDeviceStatus(_ context.Context, st gateway.DeviceStatus) {
	now := s.now()
	s.devicesMu.Lock()
	s.devices[st.IMEI] = DeviceInfo{Status: st, ReceivedAt: now}
	s.devicesMu.Unlock()

	at := st.Time()
	if st.Timestamp == 0 {
		at = now
	}
	s.telemetry.WriteDeviceStatus(st.IMEI, st.Status, st.SignalStrength, st.BatteryLevel, at)
	s.getLogger().Debug("device status",
		"imei", st.IMEI,
		"status", st.Status,
		"signal_strength", st.SignalStrength,
		"battery_level", st.BatteryLevel,
	)
}

// Device returns the last status report received from imei.
func (s *Service) Device(imei string) (DeviceInfo, bool) {
	s.devicesMu.RLock()
	defer s.devicesMu.RUnlock()
	info, ok := s.devices[imei]
	return info, ok
}
