package rekognition

import "errors"

var (
	// ErrInvalidCredentials indicates that AWS credentials are invalid or missing
	ErrInvalidCredentials = errors.New("invalid or missing AWS credentials")

	// ErrInvalidImage indicates that the image is empty, too large or not JPEG/PNG
	ErrInvalidImage = errors.New("invalid image for rekognition")
)
