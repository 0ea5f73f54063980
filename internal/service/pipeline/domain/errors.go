// internal/service/pipeline/domain/errors.go
package domain

import "github.com/pkg/errors"

// 领域错误分类。各操作用 errors.Wrapf 附加上下文，接口层用 errors.Is 映射为 HTTP 状态码。
var (
	ErrValidation = errors.New("validation error") // 400
	ErrNotFound   = errors.New("not found")        // 404
	ErrConflict   = errors.New("conflict")         // 409
)
