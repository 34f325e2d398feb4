package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/nerrad567/airrelay/internal/store"
)

// Logger defines the logging interface used by the Directory.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Tracking correlates an outbound SMS with the chat message it came from.
type Tracking struct {
	GroupID int64 `json:"group_id"`
	MsgID   int64 `json:"msg_id"`
}

// Directory maps devices to groups and phones to topics, tracks in-flight
// outbound messages and holds the admin set.
//
// Directory performs no retries and enforces no binding rules; callers
// check for conflicts before binding.
//
// Thread Safety:
//   - All methods are safe for concurrent use when the underlying store is.
type Directory struct {
	kv     store.Store
	logger Logger
}

// New creates a Directory on top of kv, normally a *cache.Cache.
func New(kv store.Store) *Directory {
	return &Directory{kv: kv, logger: noopLogger{}}
}

// SetLogger sets the logger for the directory.
func (d *Directory) SetLogger(logger Logger) {
	if logger != nil {
		d.logger = logger
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

func malformed(key, value string) error {
	return fmt.Errorf("%w: malformed value %q under %s", ErrStoreUnavailable, value, key)
}

func (d *Directory) getInt(ctx context.Context, op, key string) (int64, bool, error) {
	raw, ok, err := d.kv.Get(ctx, key)
	if err != nil {
		return 0, false, unavailable(op, err)
	}
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, malformed(key, raw)
	}
	return n, true, nil
}

func (d *Directory) getString(ctx context.Context, op, key string) (string, bool, error) {
	raw, ok, err := d.kv.Get(ctx, key)
	if err != nil {
		return "", false, unavailable(op, err)
	}
	if !ok || raw == "" {
		return "", false, nil
	}
	return raw, true, nil
}

// GroupForDevice returns the group bound to imei.
func (d *Directory) GroupForDevice(ctx context.Context, imei string) (int64, bool, error) {
	if imei == "" {
		return 0, false, fmt.Errorf("%w: empty imei", ErrInvalidIdentifier)
	}
	return d.getInt(ctx, "group for device", deviceToGroupKey(imei))
}

// DeviceForGroup returns the imei bound to groupID.
func (d *Directory) DeviceForGroup(ctx context.Context, groupID int64) (string, bool, error) {
	return d.getString(ctx, "device for group", groupToDeviceKey(groupID))
}

// BindDeviceGroup writes both directions of the device/group pair in a
// single multi-key write.
func (d *Directory) BindDeviceGroup(ctx context.Context, imei string, groupID int64) error {
	if imei == "" {
		return fmt.Errorf("%w: empty imei", ErrInvalidIdentifier)
	}
	err := d.kv.Put(ctx, map[string]string{
		deviceToGroupKey(imei):    strconv.FormatInt(groupID, 10),
		groupToDeviceKey(groupID): imei,
	})
	if err != nil {
		return unavailable("bind device", err)
	}
	d.logger.Info("device bound", "imei", imei, "group_id", groupID)
	return nil
}

// UnbindDeviceGroup deletes both directions. Missing keys are ignored.
func (d *Directory) UnbindDeviceGroup(ctx context.Context, imei string, groupID int64) error {
	if imei == "" {
		return fmt.Errorf("%w: empty imei", ErrInvalidIdentifier)
	}
	if err := d.kv.Delete(ctx, deviceToGroupKey(imei), groupToDeviceKey(groupID)); err != nil {
		return unavailable("unbind device", err)
	}
	d.logger.Info("device unbound", "imei", imei, "group_id", groupID)
	return nil
}

// TopicForPhone returns the topic bound to phone within groupID.
func (d *Directory) TopicForPhone(ctx context.Context, groupID int64, phone string) (int64, bool, error) {
	if phone == "" {
		return 0, false, fmt.Errorf("%w: empty phone", ErrInvalidIdentifier)
	}
	return d.getInt(ctx, "topic for phone", phoneToTopicKey(groupID, phone))
}

// PhoneForTopic returns the phone bound to topicID within groupID.
func (d *Directory) PhoneForTopic(ctx context.Context, groupID, topicID int64) (string, bool, error) {
	return d.getString(ctx, "phone for topic", topicToPhoneKey(groupID, topicID))
}

// BindPhoneTopic writes both directions of the phone/topic pair in a single
// multi-key write.
func (d *Directory) BindPhoneTopic(ctx context.Context, groupID int64, phone string, topicID int64) error {
	if phone == "" {
		return fmt.Errorf("%w: empty phone", ErrInvalidIdentifier)
	}
	err := d.kv.Put(ctx, map[string]string{
		phoneToTopicKey(groupID, phone):   strconv.FormatInt(topicID, 10),
		topicToPhoneKey(groupID, topicID): phone,
	})
	if err != nil {
		return unavailable("bind phone", err)
	}
	d.logger.Info("phone bound", "group_id", groupID, "phone", phone, "topic_id", topicID)
	return nil
}

// UnbindPhoneTopic deletes both directions. Missing keys are ignored.
func (d *Directory) UnbindPhoneTopic(ctx context.Context, groupID int64, phone string, topicID int64) error {
	if phone == "" {
		return fmt.Errorf("%w: empty phone", ErrInvalidIdentifier)
	}
	if err := d.kv.Delete(ctx, phoneToTopicKey(groupID, phone), topicToPhoneKey(groupID, topicID)); err != nil {
		return unavailable("unbind phone", err)
	}
	d.logger.Info("phone unbound", "group_id", groupID, "phone", phone, "topic_id", topicID)
	return nil
}

// TrackMessage records the chat message an outbound SMS originated from.
func (d *Directory) TrackMessage(ctx context.Context, messageID string, groupID, msgID int64) error {
	if messageID == "" {
		return fmt.Errorf("%w: empty message id", ErrInvalidIdentifier)
	}
	data, err := json.Marshal(Tracking{GroupID: groupID, MsgID: msgID})
	if err != nil {
		return fmt.Errorf("encoding tracking record: %w", err)
	}
	if err := d.kv.Put(ctx, map[string]string{messageKey(messageID): string(data)}); err != nil {
		return unavailable("track message", err)
	}
	d.logger.Debug("message tracked", "message_id", messageID, "group_id", groupID, "msg_id", msgID)
	return nil
}

// TrackedMessage returns the tracking record for messageID.
func (d *Directory) TrackedMessage(ctx context.Context, messageID string) (Tracking, bool, error) {
	if messageID == "" {
		return Tracking{}, false, fmt.Errorf("%w: empty message id", ErrInvalidIdentifier)
	}
	key := messageKey(messageID)
	raw, ok, err := d.kv.Get(ctx, key)
	if err != nil {
		return Tracking{}, false, unavailable("tracked message", err)
	}
	if !ok {
		return Tracking{}, false, nil
	}

	var t Tracking
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return Tracking{}, false, malformed(key, raw)
	}
	return t, true, nil
}

// DeleteTrackedMessage removes the tracking record for messageID.
func (d *Directory) DeleteTrackedMessage(ctx context.Context, messageID string) error {
	if messageID == "" {
		return fmt.Errorf("%w: empty message id", ErrInvalidIdentifier)
	}
	if err := d.kv.Delete(ctx, messageKey(messageID)); err != nil {
		return unavailable("delete tracked message", err)
	}
	return nil
}
