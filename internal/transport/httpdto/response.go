package httpdto

// Response is the envelope every endpoint returns. Data carries the payload
// on success; Error and Code describe the failure otherwise. Code is the
// machine-readable half, stable across message wording changes.
type Response[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

func NewSuccessResponse[T any](data T) Response[T] {
	return Response[T]{
		Success: true,
		Data:    data,
	}
}

func NewErrorResponse(err string, code string) Response[any] {
	return Response[any]{
		Success: false,
		Error:   err,
		Code:    code,
	}
}

// NewFieldErrorResponse reports a validation failure with the per-field
// reasons in Data, so automated clients can correct each field.
func NewFieldErrorResponse(fields map[string]string, err string, code string) Response[map[string]string] {
	return Response[map[string]string]{
		Success: false,
		Data:    fields,
		Error:   err,
		Code:    code,
	}
}
