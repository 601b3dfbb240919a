package ws

import (
	"fmt"

	"github.com/JMURv/session-core/internal/admission"
)

var errTooManyFrames = fmt.Errorf("too many frames: %w", admission.ErrRateLimited)
