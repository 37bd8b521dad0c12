package handlers

import "fmt"

func errMissingField(field string, cause error) error {
	if cause != nil {
		return cause
	}
	return fmt.Errorf("%s is required", field)
}
