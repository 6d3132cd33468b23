package dto

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error string `json:"error" example:"错误信息"`
}

// SuccessResponse 通用成功响应
type SuccessResponse struct {
	Status  string `json:"status" example:"ok"`
	Message string `json:"message,omitempty" example:"操作成功"`
}
