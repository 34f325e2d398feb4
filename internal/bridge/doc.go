// Package bridge relays SMS between cellular gateway devices and chat
// groups, and owns the binding and admin rules behind the chat commands.
//
// A group is bound to exactly one device, and inside a group each phone
// number gets its own topic:
//
//	device (imei) ──1:1── group ──1:N── topic ──1:1── phone
//
// Flows:
//
//   - Inbound SMS: the device's group is looked up, the sender's topic is
//     found or created, and the message is posted there as
//     "From: {sender}\n\n{content}".
//   - Reply: a message posted in a topic goes out as SMS through the
//     group's device to the topic's phone. The outbound message id is
//     tracked until the device reports a delivery status.
//   - Status: the status text is posted as a reply to the chat message it
//     belongs to and the tracking record is dropped.
//
// Privileged commands are open to everyone until the first admin exists.
// The first /addadmin claims the empty admin set atomically.
package bridge
