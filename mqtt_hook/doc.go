// Package mqtthook is a SmartQueue extension that drives waiting room
// displays over MQTT. Every status change republishes the token's status
// and its queue's board as retained messages, so a display that connects
// late immediately receives the current state.
package mqtthook
