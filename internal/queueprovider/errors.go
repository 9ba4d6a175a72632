package queueprovider

import (
	"errors"

	"github.com/oriys/callmq/internal/errs"
)

// ErrNoDeadLetterQueue is returned by DeadLetter when queueName has no
// configured dead-letter sink. The retry/DLQ shell treats this as "log and
// drop" rather than a TransportError.
var ErrNoDeadLetterQueue = errors.New("queueprovider: no dead-letter queue configured for this queue")

// ErrDelayTooLong is returned by EnqueueDelayed when the requested delay
// exceeds what the transport can honor. It is classified as a transport
// error.
var ErrDelayTooLong = errs.Transport("queueprovider: requested delay exceeds the transport's maximum delay", nil)
