package errors

import "github.com/pkg/errors"

func WrappedErrNewLogger(err error) error {
	return errors.WithMessage(err, "new logger")
}

func WrappedErrOpenAuditLog(err error) error {
	return errors.WithMessage(err, "open audit log")
}

func WrappedErrQueryProcesses(err error) error {
	return errors.WithMessage(err, "query process table")
}

func WrappedErrQueryMemory(err error, pid int32) error {
	return errors.WithMessagef(err, "get memory info for pid '%d'", pid)
}

func WrappedErrRenderMessage(err error) error {
	return errors.WithMessage(err, "render message")
}

func WrappedErrSendMessage(err error) error {
	return errors.WithMessage(err, "send message")
}

func WrappedErrEncodePayload(err error) error {
	return errors.WithMessage(err, "encode payload")
}

func WrappedErrLoadSettings(err error) error {
	return errors.WithMessage(err, "load settings")
}

func WrappedErrSaveSettings(err error) error {
	return errors.WithMessage(err, "save settings")
}
