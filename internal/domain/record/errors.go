package record

import "errors"

var (
	ErrRecordNotFound      = errors.New("record not found")
	ErrFileUnavailable     = errors.New("record file is not available")
	ErrFileRequired        = errors.New("prescription file is required")
	ErrFileTooLarge        = errors.New("the maximum file size that can be uploaded is 10MB")
	ErrUnsupportedFileType = errors.New("unsupported file type: upload PDF, JPG, JPEG, or PNG files")
	ErrShareTargetInvalid  = errors.New("records can only be shared with doctors")
)
