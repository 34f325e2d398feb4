package directory

import "strconv"

// Persisted key layout. Values are decimal integers or plain strings except
// msg:{id}, which holds a JSON Tracking record, and admins, which holds a
// comma-joined list of user ids.
const (
	prefixDeviceToGroup = "device_to_group:"
	prefixGroupToDevice = "group_to_device:"
	prefixPhoneToTopic  = "phone_to_topic:"
	prefixTopicToPhone  = "topic_to_phone:"
	prefixMessage       = "msg:"
	keyAdmins           = "admins"
)

func deviceToGroupKey(imei string) string {
	return prefixDeviceToGroup + imei
}

func groupToDeviceKey(groupID int64) string {
	return prefixGroupToDevice + strconv.FormatInt(groupID, 10)
}

func phoneToTopicKey(groupID int64, phone string) string {
	return prefixPhoneToTopic + strconv.FormatInt(groupID, 10) + ":" + phone
}

func topicToPhoneKey(groupID, topicID int64) string {
	return prefixTopicToPhone + strconv.FormatInt(groupID, 10) + ":" + strconv.FormatInt(topicID, 10)
}

func messageKey(messageID string) string {
	return prefixMessage + messageID
}
