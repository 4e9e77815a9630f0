package resp

type RankingProduct struct {
	Rank        int    `json:"rank"`
	ProductID   int64  `json:"productId"`
	ProductName string `json:"productName"`
	Category    string `json:"category"`
	Status      string `json:"status"`
	SalesCount  int    `json:"salesCount"`
}

type RealtimeRankingResponse struct {
	Rankings    []RankingProduct `json:"rankings"`
	RankingType string           `json:"rankingType"`
	TotalCount  int              `json:"totalCount"`
}
