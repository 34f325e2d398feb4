// Package telegram is the chat platform adapter: a long-polling Telegram
// bot working in forum-enabled supergroups.
//
// Commands (in any topic or the general chat) go to the bridge's command
// handler and the answer is posted as a reply. Other text posted inside a
// topic is a reply to that topic's phone and is relayed as SMS.
package telegram
