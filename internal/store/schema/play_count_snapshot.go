package schema

import "time"

// PlayCountSnapshot is the ranking subsystem's last known play count for a
// maker. Overwritten wholesale on each recompute cycle, never partially merged.
type PlayCountSnapshot struct {
	MakerID   int64     `gorm:"column:maker_id;primaryKey"`
	PlayCount int64     `gorm:"column:play_count;not null;default:0"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (PlayCountSnapshot) TableName() string {
	return "play_count_snapshots"
}
