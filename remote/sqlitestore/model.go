package sqlitestore

// Entry is one mirrored cache value. Namespace lets several named caches
// share a table.
type Entry struct {
	Namespace string `gorm:"column:namespace;type:text;primaryKey"`
	Key       string `gorm:"column:cache_key;type:text;primaryKey"`
	Value     []byte `gorm:"column:value;type:blob;not null"`
	ExpiresAt int64  `gorm:"column:expires_at;not null;default:0;index"` // unix nanos, 0 => no TTL
	UpdatedAt string `gorm:"column:updated_at;type:text;not null"`
}

func (Entry) TableName() string {
	return "cache_entries"
}
