package dto

// QueueStatsResponse 分析队列统计
type QueueStatsResponse struct {
	Queue     string `json:"queue" example:"analysis"`
	Size      int    `json:"size" example:"12"`
	Pending   int    `json:"pending" example:"8"`
	Active    int    `json:"active" example:"4"`
	Scheduled int    `json:"scheduled" example:"0"`
	Retry     int    `json:"retry" example:"0"`
	Archived  int    `json:"archived" example:"1"`
	Completed int    `json:"completed" example:"120"`
	Paused    bool   `json:"paused" example:"false"`
}
