package schema

// MakerPlayCount is the authoritative running distinct-player counter per maker.
// Mutated only through the atomic increment upsert; never decremented. Item
// deletions do not adjust it - the gap closes on the next full recompute.
type MakerPlayCount struct {
	MakerID   int64 `gorm:"column:maker_id;primaryKey"`
	PlayCount int64 `gorm:"column:play_count;not null;default:0"`
}

func (MakerPlayCount) TableName() string {
	return "maker_play_counts"
}
