// Package directory stores the bindings that route SMS traffic.
//
// Four relations are kept as pairs of keys that must be written and removed
// together:
//
//	device_to_group:{imei}               -> group_id
//	group_to_device:{group_id}           -> imei
//	phone_to_topic:{group_id}:{phone}    -> topic_id
//	topic_to_phone:{group_id}:{topic_id} -> phone
//
// plus one-shot tracking records (msg:{message_id}) and the admin set
// (admins). Pair writes go to the store as a single multi-key Put, which
// both backends apply atomically.
//
// Admin bootstrap is first-writer-wins: ClaimFirstAdmin swaps the admins key
// from empty to a single id, so concurrent claimers cannot both succeed.
package directory
