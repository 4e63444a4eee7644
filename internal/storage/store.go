package storage

// Store 调用记录持久化接口
// Store persists session and call metadata. Conversation content is never stored.
type Store interface {
	// Session 操作 / Session operations
	CreateSession(meta SessionMeta) error
	LoadSession(id string) (SessionMeta, error)
	ListSessions() ([]SessionMeta, error)

	// Call 操作 / Call operations
	RecordCall(rec CallRecord) error
	ListCalls(sessionID string) ([]CallRecord, error)

	// 生命周期 / Lifecycle
	Close() error
}
