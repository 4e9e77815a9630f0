package req

type GetRankingRequest struct {
	Type  string `form:"type"`
	Limit int    `form:"limit"`
}
