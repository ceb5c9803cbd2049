package schema

import "time"

// Item represents the items table - one play event submitted by a maker's content.
// Immutable once created; removed only by explicit administrative deletion.
type Item struct {
	// ID is the 16-character generated key
	ID string `gorm:"column:id;primaryKey;type:text"`
	// Text is the opaque play-result payload
	Text string `gorm:"column:text;not null;type:text"`
	// MakerID identifies the content creator whose content was played
	MakerID int64 `gorm:"column:maker_id;not null;index:idx_items_maker_created,priority:1"`
	// PlayerHash is the anonymized identity of the player
	PlayerHash string `gorm:"column:player_hash;not null;type:text"`
	// CreatedAt is the play timestamp supplied at ingestion
	CreatedAt time.Time `gorm:"column:created_at;not null;index:idx_items_maker_created,priority:2;index:idx_items_created"`
}

// TableName specifies the table name for the Item model
func (Item) TableName() string {
	return "items"
}
