package bridge

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/airrelay/internal/directory"
	"github.com/nerrad567/airrelay/internal/gateway"
	"github.com/nerrad567/airrelay/internal/infrastructure/mqtt"
)

// Binder enforces the binding rules before touching the directory: one
// device per group, one topic per phone and group.
//
// Rule checks and the write that follows are serialised per group, so two
// commands in the same group cannot both pass a conflict check. Device
// commands also lock the imei, always after the group, so two groups
// cannot both claim one device.
type Binder struct {
	dir      *directory.Directory
	platform Platform
	locks    keyedMutex
}

// NewBinder creates a Binder.
func NewBinder(dir *directory.Directory, platform Platform) *Binder {
	return &Binder{dir: dir, platform: platform}
}

func groupKey(groupID int64) string { return "group:" + strconv.FormatInt(groupID, 10) }

func deviceKey(imei string) string { return "imei:" + imei }

// BindDevice binds imei to groupID. Re-binding an existing identical pair
// is a no-op.
func (b *Binder) BindDevice(ctx context.Context, groupID int64, imei string) error {
	imei = strings.TrimSpace(imei)
	if imei == "" {
		return reject(ErrInvalidArgument, "Please specify the device IMEI. Usage: /bind <imei>")
	}
	if err := mqtt.ValidateTopicLevel(imei); err != nil {
		return reject(ErrInvalidArgument, "%q is not a valid device IMEI.", imei)
	}

	unlock := b.locks.Lock(groupKey(groupID))
	defer unlock()
	unlockDevice := b.locks.Lock(deviceKey(imei))
	defer unlockDevice()

	boundGroup, ok, err := b.dir.GroupForDevice(ctx, imei)
	if err != nil {
		return err
	}
	if ok && boundGroup != groupID {
		return reject(ErrConflict, "Device %s is already bound to another group. Unbind it first.", imei)
	}

	boundDevice, ok, err := b.dir.DeviceForGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if ok && boundDevice != imei {
		return reject(ErrConflict, "This group is already bound to device %s. Unbind it first.", boundDevice)
	}
	if ok {
		return nil
	}

	return b.dir.BindDeviceGroup(ctx, imei, groupID)
}

// UnbindDevice removes the device binding of groupID and returns the imei
// that was unbound. With an empty imei the group's device is resolved;
// otherwise imei must be bound to this group.
func (b *Binder) UnbindDevice(ctx context.Context, groupID int64, imei string) (string, error) {
	imei = strings.TrimSpace(imei)

	unlock := b.locks.Lock(groupKey(groupID))
	defer unlock()

	if imei == "" {
		bound, ok, err := b.dir.DeviceForGroup(ctx, groupID)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", reject(ErrNotBound, "No device is bound to this group.")
		}
		imei = bound
	} else {
		boundGroup, ok, err := b.dir.GroupForDevice(ctx, imei)
		if err != nil {
			return "", err
		}
		if !ok || boundGroup != groupID {
			return "", reject(ErrMismatch, "Device %s is not bound to this group.", imei)
		}
	}

	unlockDevice := b.locks.Lock(deviceKey(imei))
	defer unlockDevice()

	if err := b.dir.UnbindDeviceGroup(ctx, imei, groupID); err != nil {
		return "", err
	}
	return imei, nil
}

// BindPhone binds phone to a topic of groupID and returns the topic id.
//
// Inside a topic (topicID != 0) the phone is bound to that topic. Outside
// any topic a new topic is provisioned through the platform.
func (b *Binder) BindPhone(ctx context.Context, groupID, topicID int64, phone string) (int64, error) {
	phone = gateway.NormalizePhone(phone)
	if phone == "" {
		return 0, reject(ErrInvalidArgument, "Please specify the phone number. Usage: /bindphone <phone>")
	}

	unlock := b.locks.Lock(groupKey(groupID))
	defer unlock()

	existing, ok, err := b.dir.TopicForPhone(ctx, groupID, phone)
	if err != nil {
		return 0, err
	}
	if ok {
		if existing == topicID {
			return existing, nil
		}
		return 0, reject(ErrConflict, "Phone %s already has a topic in this group.", phone)
	}

	if topicID != 0 {
		other, ok, err := b.dir.PhoneForTopic(ctx, groupID, topicID)
		if err != nil {
			return 0, err
		}
		if ok {
			return 0, reject(ErrConflict, "This topic is already bound to %s.", other)
		}
		if err := b.dir.BindPhoneTopic(ctx, groupID, phone, topicID); err != nil {
			return 0, err
		}
		return topicID, nil
	}

	return b.provisionTopicLocked(ctx, groupID, phone)
}

// ensureTopic returns the topic bound to phone, provisioning one on first
// contact.
func (b *Binder) ensureTopic(ctx context.Context, groupID int64, phone string) (int64, error) {
	if topicID, ok, err := b.dir.TopicForPhone(ctx, groupID, phone); err != nil || ok {
		return topicID, err
	}

	unlock := b.locks.Lock(groupKey(groupID))
	defer unlock()

	// Re-check under the lock: a concurrent SMS from the same phone may
	// have provisioned the topic meanwhile.
	if topicID, ok, err := b.dir.TopicForPhone(ctx, groupID, phone); err != nil || ok {
		return topicID, err
	}
	return b.provisionTopicLocked(ctx, groupID, phone)
}

// provisionTopicLocked must be called with the group lock held.
func (b *Binder) provisionTopicLocked(ctx context.Context, groupID int64, phone string) (int64, error) {
	topicID, ok, err := b.platform.CreateTopic(ctx, groupID, topicTitle(phone))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrTopicUnavailable, err)
	}
	if !ok {
		return 0, ErrTopicUnavailable
	}
	if err := b.dir.BindPhoneTopic(ctx, groupID, phone, topicID); err != nil {
		return 0, err
	}
	return topicID, nil
}

// UnbindPhone removes the phone binding of the current topic and returns
// the phone that was unbound. With an empty phone the topic's phone is
// resolved; otherwise it must match the topic's binding.
func (b *Binder) UnbindPhone(ctx context.Context, groupID, topicID int64, phone string) (string, error) {
	if topicID == 0 {
		return "", reject(ErrNoTopicContext, "Run /unbindphone inside the topic of the phone to unbind.")
	}

	unlock := b.locks.Lock(groupKey(groupID))
	defer unlock()

	bound, ok, err := b.dir.PhoneForTopic(ctx, groupID, topicID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", reject(ErrNotBound, "No phone is bound to this topic.")
	}

	if phone = gateway.NormalizePhone(phone); phone != "" && phone != bound {
		return "", reject(ErrMismatch, "Phone %s is not bound to this topic.", phone)
	}

	if err := b.dir.UnbindPhoneTopic(ctx, groupID, bound, topicID); err != nil {
		return "", err
	}
	return bound, nil
}

func topicTitle(phone string) string {
	return "SMS: " + phone
}
