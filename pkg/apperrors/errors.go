package apperrors

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrNotInstalled       = errors.New("app not installed")
	ErrAlreadyInstalled   = errors.New("app already installed")
	ErrInactiveDefinition = errors.New("app definition is not active")
	ErrInstallNotActive   = errors.New("install is not active")
	ErrUntrustedExtension = errors.New("extension implementation path is not trusted")
)
