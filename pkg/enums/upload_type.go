package enums

import "fmt"

// UploadType distinguishes directly published captures from batch members
// still waiting for promotion.
type UploadType string

const (
	UploadTypeDirect UploadType = "direct"
	UploadTypeBatch  UploadType = "batch"
)

var validUploadTypes = []UploadType{
	UploadTypeDirect,
	UploadTypeBatch,
}

// String implements fmt.Stringer.
func (u UploadType) String() string {
	return string(u)
}

// IsValid reports whether the value is a known upload type.
func (u UploadType) IsValid() bool {
	for _, candidate := range validUploadTypes {
		if candidate == u {
			return true
		}
	}
	return false
}

// ParseUploadType converts raw input into UploadType.
func ParseUploadType(value string) (UploadType, error) {
	for _, candidate := range validUploadTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid upload type %q", value)
}
