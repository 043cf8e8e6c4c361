package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

var ErrorBusinessIdRequired = errors.New("business id is required")
