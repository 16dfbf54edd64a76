// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

/*
Package websocket streams client events and zone changes to admin API
clients over gorilla/websocket.

A Hub owns the connected clients. A Relay subscribes to the client event
log and the zone store and broadcasts what they publish. Both run under
the supervisor tree's api layer.

Each Client has two goroutines:
  - readPump: answers ping messages and notices disconnects
  - writePump: writes queued messages and keepalive pings

Messages are JSON:

	{"type":"client_event","data":{"id":"...","date":"...","text":"...","type":"locationUpdate"}}
	{"type":"zone_change","data":{"kind":"membership","key":"home/zone.work","zone":{...}}}
	{"type":"pong","data":null}

A client that cannot keep up is dropped rather than allowed to stall the
hub.
*/
package websocket
