package controllers

import (
	"net/http"

	"github.com/go-chi/render"
)

// APIResponse 统一API响应结构
type APIResponse struct {
	Status int         `json:"status" example:"0"`
	Msg    string      `json:"msg" example:"操作成功"`
	Data   interface{} `json:"data,omitempty"`
}

// SuccessResponse 成功响应
func SuccessResponse(w http.ResponseWriter, r *http.Request, msg string, data interface{}) {
	render.JSON(w, r, APIResponse{Status: 0, Msg: msg, Data: data})
}

// BadRequestResponse 参数错误响应
func BadRequestResponse(w http.ResponseWriter, r *http.Request, msg string) {
	render.JSON(w, r, APIResponse{Status: http.StatusBadRequest, Msg: msg})
}

// InternalErrorResponse 服务器内部错误响应
func InternalErrorResponse(w http.ResponseWriter, r *http.Request, msg string) {
	render.JSON(w, r, APIResponse{Status: http.StatusInternalServerError, Msg: msg})
}
