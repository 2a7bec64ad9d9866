package video

import "errors"

// エラー分類コード。ジョブレコードとAPIレスポンスにそのまま載ります。
const (
	CodeInvalidInput  = "INVALID_INPUT"
	CodeUpstream      = "UPSTREAM_ERROR"
	CodeNoAssets      = "NO_ASSETS"
	CodeRenderError   = "RENDER_ERROR"
	CodeRenderTimeout = "RENDER_TIMEOUT"
	CodeInternal      = "INTERNAL_ERROR"
)

// Error は分類コード付きのドメインエラーです。
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ErrCancelled はステージ境界で検出されたキャンセル要求を示します。
var ErrCancelled = errors.New("job cancelled")
