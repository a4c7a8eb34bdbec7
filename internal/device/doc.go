// Package device maintains the local device catalog: user-facing records
// optionally bound to remote controller entities.
//
// The catalog is the durable side of the system. Discovery turns unbound
// controller entities into catalog candidates using room and type
// heuristics; a later synchronization pass mirrors live state onto bound
// devices without ever touching user-owned fields (name, room, isCommon,
// visibility). Devices are created by discovery or user action and only
// removed by explicit user action.
//
// Persistence goes through Repository, backed by SQLite. Catalog is the
// cached front door that the API serves from.
package device
