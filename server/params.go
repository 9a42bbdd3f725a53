package server

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	countParam = "count"
	minCount   = 1
)

// BatchRequest is a validated v2 batch request.
type BatchRequest struct {
	Count int
}

// ParamError reports an invalid request parameter.
type ParamError struct {
	Param   string
	Message string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("%s: %s", e.Param, e.Message)
}

// ParseBatchRequest reads the count parameter from q. An absent or empty
// count means 1. Values outside [1, maxCount] are rejected.
func ParseBatchRequest(q url.Values, maxCount int) (BatchRequest, error) {
	raw := strings.TrimSpace(q.Get(countParam))
	if raw == "" {
		return BatchRequest{Count: minCount}, nil
	}
	count, err := strconv.Atoi(raw)
	if err != nil {
		return BatchRequest{}, &ParamError{Param: countParam, Message: "must be an integer"}
	}
	if count < minCount || count > maxCount {
		return BatchRequest{}, &ParamError{
			Param:   countParam,
			Message: fmt.Sprintf("must be between %d and %d", minCount, maxCount),
		}
	}
	return BatchRequest{Count: count}, nil
}
