package service

import "errors"

var (
	ErrValidation       = errors.New("validation error")
	ErrMappingNotFound  = errors.New("pair-up mapping not found")
	ErrGroupExists      = errors.New("resource group already exists")
	ErrGroupNotFound    = errors.New("resource group not found")
	ErrInstanceNotFound = errors.New("matching run not found")
	ErrMatchingRunning  = errors.New("matching run already in progress")
)
