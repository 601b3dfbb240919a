package captcha

import "errors"

var ErrValidationFailed = errors.New("CAPTCHA validation failed")
