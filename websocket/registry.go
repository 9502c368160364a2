package websocket

import (
	"slices"
	"sync"

	"github.com/samber/lo"

	"batchchat/utils"
)

// Conn 是 Registry 與 Relay 看到的連線，與底層傳輸無關
type Conn interface {
	ID() string
	Identity() utils.Identity
	// Send 非阻塞地放入送出緩衝，緩衝已滿或連線已關閉時回傳 false
	Send(payload []byte) bool
	Close()
}

// Registry 記錄每個批次聊天室目前有哪些連線
// 同時維護反向索引 (連線 -> 聊天室)，斷線時才能一次清乾淨
type Registry struct {
	mu        sync.RWMutex
	conns     map[string]Conn                // 所有存活的連線，包含尚未加入聊天室的
	rooms     map[string]map[string]Conn     // batchID -> connID -> conn
	connRooms map[string]map[string]struct{} // connID -> batchIDs
}

func NewRegistry() *Registry {
	return &Registry{
		conns:     make(map[string]Conn),
		rooms:     make(map[string]map[string]Conn),
		connRooms: make(map[string]map[string]struct{}),
	}
}

// Register 記錄一條剛建立、尚未加入任何聊天室的連線
func (r *Registry) Register(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn.ID()] = conn
}

// Join 將連線加入聊天室，重複加入與加入一次效果相同
func (r *Registry) Join(conn Conn, batchID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[conn.ID()] = conn

	room, ok := r.rooms[batchID]
	if !ok {
		room = make(map[string]Conn)
		r.rooms[batchID] = room
	}
	room[conn.ID()] = conn

	memberships, ok := r.connRooms[conn.ID()]
	if !ok {
		memberships = make(map[string]struct{})
		r.connRooms[conn.ID()] = memberships
	}
	memberships[batchID] = struct{}{}
}

// Leave 將連線移出聊天室，不在其中時不做任何事
func (r *Registry) Leave(connID, batchID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(connID, batchID)
}

// RemoveConnection 將連線移出所有聊天室，回傳它原本所在的聊天室
func (r *Registry) RemoveConnection(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	left := lo.Keys(r.connRooms[connID])
	for _, batchID := range left {
		r.leaveLocked(connID, batchID)
	}
	delete(r.connRooms, connID)
	delete(r.conns, connID)

	slices.Sort(left)
	return left
}

// MembersOf 回傳聊天室成員的快照，呼叫端可以在不持有鎖的情況下逐一送出
func (r *Registry) MembersOf(batchID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Values(r.rooms[batchID])
}

// ActiveRooms 回傳連線目前所在的聊天室，依字母排序
func (r *Registry) ActiveRooms(connID string) []string {
	r.mu.RLock()
	rooms := lo.Keys(r.connRooms[connID])
	r.mu.RUnlock()

	slices.Sort(rooms)
	return rooms
}

// IsMember 回報連線是否在聊天室中
func (r *Registry) IsMember(connID, batchID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[batchID][connID]
	return ok
}

func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// ConnectionCount 回傳存活的連線數，不論是否已加入聊天室
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Registry) leaveLocked(connID, batchID string) {
	if room, ok := r.rooms[batchID]; ok {
		delete(room, connID)
		if len(room) == 0 {
			delete(r.rooms, batchID) // 如果房間沒有連線了，就刪除房間
		}
	}
	if memberships, ok := r.connRooms[connID]; ok {
		delete(memberships, batchID)
		if len(memberships) == 0 {
			delete(r.connRooms, connID)
		}
	}
}
