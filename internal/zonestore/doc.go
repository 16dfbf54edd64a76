// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

// Package zonestore persists zones in BadgerDB and publishes a change feed.
//
// Zone definitions are owned by whoever imports them (the zones file, the
// admin API). The only field the engine writes is membership, through
// [Store.SwapMembership], which reads and writes in one serializable badger
// transaction so two concurrent transitions for the same zone cannot
// interleave.
//
// # Change Feed
//
// [Store.Subscribe] registers a callback that runs synchronously after every
// committed change, outside any store lock, in commit order per writer.
// Callbacks may read from and write to the store.
//
// # Keys
//
//	zone:<server>/<entity>   JSON-encoded zone.Zone
package zonestore
