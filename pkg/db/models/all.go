package models

// All lists every persisted model. Used for sqlite schema bootstrap, where the
// Postgres goose migrations do not apply.
func All() []any {
	return []any{
		&Capture{},
		&AuditEntry{},
		&CaptureLike{},
		&DownloadLog{},
		&ControlSetting{},
		&OutboxEvent{},
		&OutboxDLQ{},
		&RemovalRequest{},
		&RemovalResolution{},
	}
}
