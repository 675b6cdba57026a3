package v1

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func HandleSuccess(ctx *gin.Context, data interface{}) {
	if data == nil {
		data = map[string]interface{}{}
	}
	resp := Response{Code: errorCodeMap[ErrSuccess], Message: ErrSuccess.Error(), Data: data}
	ctx.JSON(http.StatusOK, resp)
}

func HandleError(ctx *gin.Context, httpCode int, err error, data interface{}) {
	if data == nil {
		data = map[string]string{}
	}
	code, ok := lookupCode(err)
	if !ok {
		resp := Response{Code: 500, Message: "unknown error", Data: data}
		ctx.JSON(httpCode, resp)
		return
	}
	resp := Response{Code: code, Message: err.Error(), Data: data}
	ctx.JSON(httpCode, resp)
}

type Error struct {
	Code    int
	Message string
}

var errorCodeMap = map[error]int{}

func newError(code int, msg string) error {
	err := errors.New(msg)
	errorCodeMap[err] = code
	return err
}

// lookupCode 支持被 fmt.Errorf("%w") 包装过的业务错误
func lookupCode(err error) (int, bool) {
	for e, code := range errorCodeMap {
		if errors.Is(err, e) {
			return code, true
		}
	}
	return 0, false
}

func (e Error) Error() string {
	return e.Message
}
