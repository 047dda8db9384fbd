// Package ws streams health reports to WebSocket clients. A client receives
// the current report (or a pending notice) on connect and then each newly
// published report once.
package ws
