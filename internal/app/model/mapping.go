package model

import "time"

// Mapping is the persisted short key → target URL record.
//
// Rows are insert/delete only; liveness (Expires >= now) is computed at query time.
type Mapping struct {
	ID        uint64    `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	Key       string    `json:"key" gorm:"column:key;size:64;not null;uniqueIndex:idx_urls_key"`
	TargetURL string    `json:"url" gorm:"column:url;type:text;not null"`
	Expires   time.Time `json:"expires" gorm:"column:expires;index:idx_urls_expires"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;not null"`
}

func (Mapping) TableName() string {
	return "urls"
}

// IsLiveAt reports whether the mapping is still resolvable at now.
func (m *Mapping) IsLiveAt(now time.Time) bool {
	return !m.Expires.Before(now)
}
