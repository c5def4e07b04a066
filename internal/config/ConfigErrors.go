package config

import (
	"fmt"

	"github.com/pkg/errors"
)

type FileNotFoundError struct {
	Path string
}

func (fileNotFound *FileNotFoundError) Error() string {
	return fmt.Sprintf("configuration file not found at %s", fileNotFound.Path)
}

func (fileNotFound *FileNotFoundError) Is(target error) bool {
	var t *FileNotFoundError
	ok := errors.As(target, &t)
	if !ok {
		return false
	}
	return t.Path == fileNotFound.Path
}

type FileInvalidError struct {
	Err error
}

func (fileInvalid *FileInvalidError) Error() string {
	return fmt.Sprintf("configuration file is not valid JSON: %v", fileInvalid.Err)
}

func (fileInvalid *FileInvalidError) Unwrap() error {
	return fileInvalid.Err
}
