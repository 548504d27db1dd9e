package fetcher

import (
	"encoding/json"
	"fmt"
	"strings"
)

const dateLayout = "2006-01-02"

type apiErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"message"`
	Errors           []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

func parseAPIError(source string, status int, payload []byte) error {
	var apiErr apiErrorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if len(apiErr.Errors) > 0 {
			detail := apiErr.Errors[0].Detail
			if detail == "" {
				detail = apiErr.Errors[0].Title
			}
			if detail != "" {
				return fmt.Errorf("%s api error (%d): %s", source, status, detail)
			}
		}
		if apiErr.ErrorDescription != "" {
			return fmt.Errorf("%s api error (%d): %s", source, status, apiErr.ErrorDescription)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("%s api error (%d): %s", source, status, apiErr.Message)
		}
		if apiErr.Error != "" {
			return fmt.Errorf("%s api error (%d): %s", source, status, apiErr.Error)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("%s api error (%d): %s", source, status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("%s api error (%d)", source, status)
}
