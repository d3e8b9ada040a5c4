//go:build !linux

package subjects

import "fmt"

func ownerNames(path string) (string, string, error) {
	return "", "", fmt.Errorf("ownership is only managed on linux")
}
