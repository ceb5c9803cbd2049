package rest

// createItemRequest is the POST /items body. All fields are required;
// created_at is unix seconds. user_hash is the caller-supplied anonymized
// player identity.
type createItemRequest struct {
	Text      string `json:"text" binding:"required"`
	CreatedAt int64  `json:"created_at" binding:"required"`
	MakerID   int64  `json:"maker_id" binding:"required"`
	UserHash  string `json:"user_hash" binding:"required"`
}

type createItemResponse struct {
	ID string `json:"id"`
}

// itemResponse is the GET /items/:key body; the player hash is deliberately
// not exposed
type itemResponse struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"created_at"`
	MakerID   int64  `json:"maker_id"`
}

type playCountResponse struct {
	Count int64 `json:"count"`
}

type makerPlayCountResponse struct {
	MakerID   int64 `json:"maker_id"`
	PlayCount int64 `json:"play_count"`
}

type rankingResponse struct {
	MakerIDList []int64 `json:"maker_id_list"`
}

// updateRankingRequest is the POST /ranking/update body, ISO-8601 timestamps
type updateRankingRequest struct {
	Since string `json:"since"`
	Until string `json:"until"`
}

type messageResponse struct {
	Message string `json:"message"`
}
